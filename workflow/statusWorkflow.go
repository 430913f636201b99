package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// UpdateOrderStatus moves an order along PENDING -> PREPARING -> READY -> COMPLETED,
// or to CANCELLED from PENDING or PREPARING. actorId is recorded on any restock entries.
func (e *OrderEngine) UpdateOrderStatus(ctx context.Context, orderId int, next models.OrderStatus, actorId *int) (order *models.Order, err error) {
	ctx, span := e.startSpan(ctx, "UpdateOrderStatus", trace.WithAttributes(
		attribute.Int("order.id", orderId),
		attribute.String("order.status", string(next)),
	))
	defer func() { endSpan(span, err) }()

	if !next.IsValid() {
		return nil, models.NewValidationError("status", "oneof")
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	var restocked []models.StockMovement
	err = e.transact(ctx, "UpdateOrderStatus", func(tx *gorm.DB) error {
		restocked = nil
		locked, err := models.LockOrder(tx, orderId)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: order status %s -> %s", models.ErrInvalidTransition, locked.Status, next)
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", orderId).Update("status", next).Error; err != nil {
			return err
		}
		if next == models.OrderStatusCancelled && e.RestockOnCancel {
			restocked, err = models.RestoreOrderStock(tx, orderId, actorId)
			if err != nil {
				return err
			}
		}
		if e.OutboxEnabled {
			locked.Status = next
			if err := models.RecordOrderEvent(tx, locked, models.OrderEventStatusChanged, correlationId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(restocked) > 0 && e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"field":    "OrderEngine",
			"funcName": "UpdateOrderStatus",
			"order_id": orderId,
			"products": len(restocked),
		}).Info("restocked cancelled order")
	}

	order, err = models.GetOrder(ctx, e.DB, orderId)
	if err != nil {
		return nil, err
	}
	e.announceStatusChange(ctx, order)
	return order, nil
}
