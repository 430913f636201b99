package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const VerifyStatusPaid = "paid"

type VerifyResult struct {
	Status string        `json:"status"`
	Order  *models.Order `json:"order"`
}

// VerifyPayment settles a gateway order once its intent has succeeded. Calling it again
// on a PAID order returns the current state without touching stock.
func (e *OrderEngine) VerifyPayment(ctx context.Context, orderId int) (result *VerifyResult, err error) {
	ctx, span := e.startSpan(ctx, "VerifyPayment", trace.WithAttributes(attribute.Int("order.id", orderId)))
	defer func() { endSpan(span, err) }()

	order, err := models.GetOrder(ctx, e.DB, orderId)
	if err != nil {
		return nil, err
	}
	if order.PaymentId == nil || *order.PaymentId == "" {
		return nil, fmt.Errorf("%w: id=%d: %v", models.ErrOrderNotFound, orderId, errNoPaymentIntent)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return &VerifyResult{Status: VerifyStatusPaid, Order: order}, nil
	}
	if e.Payments == nil {
		return nil, fmt.Errorf("%w: no payment gateway configured", models.ErrPaymentAdapter)
	}

	if e.Locker != nil {
		lock, lockErr := utils.ObtainLock(ctx, e.Locker, "verify_payment", strconv.Itoa(orderId), 15*time.Second)
		if lockErr == nil {
			defer lock.Release(context.Background())
		} else if !errors.Is(lockErr, utils.ErrLockNotObtained) {
			e.logWarn("VerifyPayment", logrus.Fields{"order_id": orderId}, "verify lock unavailable: "+lockErr.Error())
		}
	}

	intent, err := e.Payments.RetrieveIntent(ctx, *order.PaymentId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentAdapter, err)
	}
	span.SetAttributes(attribute.String("payment.intent_status", intent.Status))
	if !intent.Succeeded() {
		return &VerifyResult{Status: intent.Status, Order: order}, nil
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	settled := false
	err = e.transact(ctx, "VerifyPayment", func(tx *gorm.DB) error {
		settled = false
		locked, err := models.LockOrder(tx, orderId)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == models.PaymentStatusPaid {
			return nil
		}

		updates := map[string]interface{}{"payment_status": models.PaymentStatusPaid}
		if locked.Status == models.OrderStatusCancelled {
			// Money arrived after an operator cancelled; record it but keep the order cancelled.
			e.logWarn("VerifyPayment", logrus.Fields{"order_id": orderId}, "payment succeeded for a cancelled order; stock left untouched")
		} else {
			// Only a PENDING order advances; later statuses were set by an operator and stay.
			if locked.Status == models.OrderStatusPending {
				updates["status"] = models.OrderStatusPreparing
			}
			if err := deductOrderStock(tx, locked, models.StockReasonSale, locked.UserId); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", orderId).Updates(updates).Error; err != nil {
			return err
		}
		if e.OutboxEnabled {
			locked.PaymentStatus = models.PaymentStatusPaid
			if s, ok := updates["status"].(models.OrderStatus); ok {
				locked.Status = s
			}
			if err := models.RecordOrderEvent(tx, locked, models.OrderEventPaid, correlationId); err != nil {
				return err
			}
		}
		settled = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err = models.GetOrder(ctx, e.DB, orderId)
	if err != nil {
		return nil, err
	}
	if settled {
		e.announcePaid(ctx, order)
	}
	return &VerifyResult{Status: VerifyStatusPaid, Order: order}, nil
}

// UpdatePaymentStatus is the operator override. It never touches stock.
// Moving PAID back to PENDING is rejected; setting the current value is a no-op.
func (e *OrderEngine) UpdatePaymentStatus(ctx context.Context, orderId int, next models.PaymentStatus) (order *models.Order, err error) {
	ctx, span := e.startSpan(ctx, "UpdatePaymentStatus", trace.WithAttributes(
		attribute.Int("order.id", orderId),
		attribute.String("payment.status", string(next)),
	))
	defer func() { endSpan(span, err) }()

	if !next.IsValid() {
		return nil, models.NewValidationError("payment_status", "oneof")
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	changed := false
	err = e.transact(ctx, "UpdatePaymentStatus", func(tx *gorm.DB) error {
		changed = false
		locked, err := models.LockOrder(tx, orderId)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == next {
			return nil
		}
		if !locked.PaymentStatus.CanTransitionTo(next) {
			return fmt.Errorf("%w: payment status %s -> %s", models.ErrInvalidTransition, locked.PaymentStatus, next)
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", orderId).Update("payment_status", next).Error; err != nil {
			return err
		}
		if e.OutboxEnabled {
			locked.PaymentStatus = next
			if err := models.RecordOrderEvent(tx, locked, models.OrderEventPaymentStatusChanged, correlationId); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err = models.GetOrder(ctx, e.DB, orderId)
	if err != nil {
		return nil, err
	}
	if changed {
		e.announceStatusChange(ctx, order)
	}
	return order, nil
}
