package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/payment"
	"github.com/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type CreateOrderResult struct {
	Order        *models.Order `json:"order"`
	ClientSecret string        `json:"client_secret,omitempty"`
}

// CreateOrder validates availability for every line, snapshots prices and persists the order.
// Cash orders consume stock in the same transaction; gateway orders open a payment intent first
// and leave stock untouched until verifyPayment.
func (e *OrderEngine) CreateOrder(ctx context.Context, input *models.NewOrder) (result *CreateOrderResult, err error) {
	ctx, span := e.startSpan(ctx, "CreateOrder")
	defer func() { endSpan(span, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	method, err := e.resolvePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.payment_method", string(method)))

	items, total, err := e.priceOrder(ctx, input)
	if err != nil {
		return nil, err
	}

	newOrder := func(paymentId *string) *models.Order {
		lines := make([]models.OrderItem, len(items))
		copy(lines, items)
		return &models.Order{
			UserId:          input.UserId,
			CustomerName:    input.CustomerName,
			CustomerPhone:   input.CustomerPhone,
			CustomerAddress: input.CustomerAddress,
			PaymentMethod:   method,
			PaymentId:       paymentId,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			Total:           total,
			Items:           lines,
		}
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var orderId int
	var clientSecret string
	if method.IsCash() {
		err = e.transact(ctx, "CreateOrder", func(tx *gorm.DB) error {
			order := newOrder(nil)
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			if err := deductOrderStock(tx, order, models.StockReasonCashSalePending, input.UserId); err != nil {
				return err
			}
			if e.OutboxEnabled {
				if err := models.RecordOrderEvent(tx, order, models.OrderEventCreated, correlationId); err != nil {
					return err
				}
			}
			orderId = order.ID
			return nil
		})
	} else {
		intent, intentErr := e.Payments.CreateIntent(ctx, payment.IntentRequest{
			AmountMinor: payment.ToMinorUnits(total),
			Currency:    e.Currency,
			Description: "Order regarding food items for User ID: " + ownerLabel(input.UserId),
			Metadata:    map[string]string{"user_id": ownerLabel(input.UserId)},
		})
		if intentErr != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPaymentAdapter, intentErr)
		}
		paymentId := intent.ID
		clientSecret = intent.ClientSecret

		err = e.transact(ctx, "CreateOrder", func(tx *gorm.DB) error {
			order := newOrder(&paymentId)
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			if e.OutboxEnabled {
				if err := models.RecordOrderEvent(tx, order, models.OrderEventCreated, correlationId); err != nil {
					return err
				}
			}
			orderId = order.ID
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.id", orderId))

	order, err := models.GetOrder(ctx, e.DB, orderId)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, staffGroups(), fanout.EventNewOrder, order)
	if method.IsCash() {
		// Cash orders are actionable right away; card orders notify the kitchen once paid.
		e.publish(ctx, staffGroups(), fanout.EventNotification, fanout.Notification{
			Title:   "New Order Received",
			Message: fmt.Sprintf("Order #%d (cash) has been placed and is ready for preparation.", order.ID),
			Type:    fanout.NotificationNewOrder,
		})
	}

	return &CreateOrderResult{Order: order, ClientSecret: clientSecret}, nil
}

func (e *OrderEngine) resolvePaymentMethod(requested models.PaymentMethod) (models.PaymentMethod, error) {
	if requested.IsCash() {
		return requested, nil
	}
	if e.Payments == nil {
		return "", models.NewValidationError("payment_method", "oneof")
	}
	gateway := models.PaymentMethod(e.Payments.Name())
	if requested == "" || requested == gateway {
		return gateway, nil
	}
	return "", models.NewValidationError("payment_method", "oneof")
}

// priceOrder is the advisory availability check. It reads products without locking;
// the ledger clamp is what keeps stock non-negative under races.
func (e *OrderEngine) priceOrder(ctx context.Context, input *models.NewOrder) ([]models.OrderItem, decimal.Decimal, error) {
	wanted := input.QuantitiesByProduct()
	ids := make([]int, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	ids = utils.UniqueSortedInts(ids)

	var products []models.Product
	if err := e.DB.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, decimal.Zero, err
	}
	byId := make(map[int]models.Product, len(products))
	for _, p := range products {
		byId[p.ID] = p
	}

	for _, id := range ids {
		p, ok := byId[id]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: id=%d", models.ErrProductNotFound, id)
		}
		if !p.IsAvailable {
			return nil, decimal.Zero, &models.StockError{Err: models.ErrProductUnavailable, ProductId: p.ID, ProductName: p.Name, Requested: wanted[id], Available: p.Stock}
		}
		if wanted[id] > p.Stock {
			return nil, decimal.Zero, &models.StockError{Err: models.ErrInsufficientStock, ProductId: p.ID, ProductName: p.Name, Requested: wanted[id], Available: p.Stock}
		}
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		p := byId[line.ProductId]
		item := models.OrderItem{
			ProductId: p.ID,
			Quantity:  line.Quantity,
			Price:     p.Price,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	return items, total, nil
}

// deductOrderStock consumes stock for every product on the order, in product id order
// so concurrent orders lock rows in the same sequence.
func deductOrderStock(tx *gorm.DB, order *models.Order, reason models.StockChangeReason, userId *int) error {
	quantities := order.QuantitiesByProduct()
	ids := make([]int, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	orderId := order.ID
	for _, productId := range utils.UniqueSortedInts(ids) {
		_, err := models.ReserveAndCommit(tx, models.StockChange{
			ProductId: productId,
			Delta:     -quantities[productId],
			Reason:    reason,
			OrderId:   &orderId,
			UserId:    userId,
			Notes:     fmt.Sprintf("Order #%d", orderId),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetOrders lists orders visible to the caller, newest first.
func (e *OrderEngine) GetOrders(ctx context.Context, filter models.OrderFilter) (orders []*models.Order, err error) {
	ctx, span := e.startSpan(ctx, "GetOrders", trace.WithAttributes(attribute.String("user.role", string(filter.Role))))
	defer func() { endSpan(span, err) }()
	return models.GetOrders(ctx, e.DB, filter)
}

// GetOrder returns one order if the caller may see it.
func (e *OrderEngine) GetOrder(ctx context.Context, orderId int, filter models.OrderFilter) (*models.Order, error) {
	filter.OrderIds = []int{orderId}
	orders, err := models.GetOrders(ctx, e.DB, filter)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: id=%d", models.ErrOrderNotFound, orderId)
	}
	return orders[0], nil
}

func ownerLabel(userId *int) string {
	if userId == nil {
		return "Guest"
	}
	return strconv.Itoa(*userId)
}

func staffGroups() []string {
	return []string{fanout.AdminRoom, fanout.StaffRoom}
}

// orderGroups are the customer-facing groups for an order.
func orderGroups(order *models.Order) []string {
	groups := []string{fanout.OrderRoom(order.ID)}
	if order.UserId != nil {
		groups = append(groups, fanout.UserRoom(*order.UserId))
	}
	return groups
}

var errNoPaymentIntent = errors.New("order has no payment intent")
