package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func validOrder() *models.NewOrder {
	return &models.NewOrder{
		CustomerName:    "  Jane Doe ",
		CustomerPhone:   "0412345678",
		CustomerAddress: "12 Harbour Street",
		PaymentMethod:   "cash",
		Items:           []models.NewOrderItem{{ProductId: 1, Quantity: 2}},
	}
}

func TestNewOrderValidate(t *testing.T) {
	input := validOrder()
	require.NoError(t, input.Validate())
	assert.Equal(t, "Jane Doe", input.CustomerName)
	assert.Equal(t, models.PaymentMethodCash, input.PaymentMethod)

	tests := []struct {
		name   string
		mutate func(o *models.NewOrder)
		field  string
	}{
		{"missing name", func(o *models.NewOrder) { o.CustomerName = " " }, "customer_name"},
		{"short phone", func(o *models.NewOrder) { o.CustomerPhone = "12345" }, "customer_phone"},
		{"phone with letters", func(o *models.NewOrder) { o.CustomerPhone = "04123abc78" }, "customer_phone"},
		{"single word address", func(o *models.NewOrder) { o.CustomerAddress = "Somewhere" }, "customer_address"},
		{"short address", func(o *models.NewOrder) { o.CustomerAddress = "a b" }, "customer_address"},
		{"no items", func(o *models.NewOrder) { o.Items = nil }, "items"},
		{"zero quantity", func(o *models.NewOrder) { o.Items[0].Quantity = 0 }, "quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validOrder()
			tt.mutate(input)
			err := input.Validate()
			require.ErrorIs(t, err, models.ErrValidation)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestNewOrderQuantitiesByProduct(t *testing.T) {
	input := &models.NewOrder{Items: []models.NewOrderItem{
		{ProductId: 1, Quantity: 2},
		{ProductId: 2, Quantity: 1},
		{ProductId: 1, Quantity: 3},
	}}
	assert.Equal(t, map[int]int{1: 5, 2: 1}, input.QuantitiesByProduct())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, models.OrderStatusPending.CanTransitionTo(models.OrderStatusPreparing))
	assert.True(t, models.OrderStatusPreparing.CanTransitionTo(models.OrderStatusCancelled))
	assert.True(t, models.OrderStatusReady.CanTransitionTo(models.OrderStatusCompleted))
	assert.False(t, models.OrderStatusPending.CanTransitionTo(models.OrderStatusReady))
	assert.False(t, models.OrderStatusCompleted.CanTransitionTo(models.OrderStatusCancelled))
	assert.False(t, models.OrderStatusCancelled.CanTransitionTo(models.OrderStatusPending))

	assert.True(t, models.PaymentStatusPending.CanTransitionTo(models.PaymentStatusPaid))
	assert.False(t, models.PaymentStatusPaid.CanTransitionTo(models.PaymentStatusPending))
}

func seedOrder(t *testing.T, db *gorm.DB, userId *int, method models.PaymentMethod, status models.OrderStatus, total string) *models.Order {
	t.Helper()
	p := testutil.SeedProduct(t, db, "Item", total, 10)
	order := &models.Order{
		UserId:          userId,
		CustomerName:    "Jane Doe",
		CustomerPhone:   "0412345678",
		CustomerAddress: "12 Harbour Street",
		PaymentMethod:   method,
		Status:          status,
		PaymentStatus:   models.PaymentStatusPending,
		Total:           decimal.RequireFromString(total),
		Items:           []models.OrderItem{{ProductId: p.ID, Quantity: 1, Price: p.Price}},
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestGetOrdersScopesByCaller(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	alice := testutil.IntPtr(1)
	bob := testutil.IntPtr(2)

	a1 := seedOrder(t, db, alice, "CASH", models.OrderStatusPending, "10.00")
	seedOrder(t, db, bob, "CASH", models.OrderStatusReady, "12.00")
	guest := seedOrder(t, db, nil, "STRIPE", models.OrderStatusPending, "8.00")

	all, err := models.GetOrders(ctx, db, models.OrderFilter{Role: models.UserRoleStaff})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, guest.ID, all[0].ID)

	mine, err := models.GetOrders(ctx, db, models.OrderFilter{Role: models.UserRoleCustomer, UserId: alice})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a1.ID, mine[0].ID)
	require.Len(t, mine[0].Items, 1)
	assert.NotNil(t, mine[0].Items[0].Product)

	_, err = models.GetOrders(ctx, db, models.OrderFilter{})
	assert.ErrorIs(t, err, models.ErrValidation)

	// A guest can only look up guest orders, even when naming another customer's id.
	guestView, err := models.GetOrders(ctx, db, models.OrderFilter{OrderIds: []int{a1.ID, guest.ID}})
	require.NoError(t, err)
	require.Len(t, guestView, 1)
	assert.Equal(t, guest.ID, guestView[0].ID)

	ready := models.OrderStatusReady
	filtered, err := models.GetOrders(ctx, db, models.OrderFilter{Role: models.UserRoleAdmin, Status: &ready})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestGetOrderNotFound(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := models.GetOrder(context.Background(), db, 99)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestGetOrderStats(t *testing.T) {
	db := testutil.NewDB(t)
	seedOrder(t, db, nil, "CASH", models.OrderStatusCompleted, "10.50")
	seedOrder(t, db, nil, "STRIPE", models.OrderStatusCompleted, "20.00")
	seedOrder(t, db, nil, "STRIPE", models.OrderStatusPending, "99.00")
	seedOrder(t, db, nil, "CASH", models.OrderStatusCancelled, "5.00")

	stats, err := models.GetOrderStats(context.Background(), db)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.TotalOrders)
	assert.EqualValues(t, 1, stats.PendingOrders)
	assert.EqualValues(t, 2, stats.CompletedOrders)
	assert.True(t, decimal.RequireFromString("30.50").Equal(stats.Revenue), stats.Revenue.String())
	assert.True(t, decimal.RequireFromString("15.25").Equal(stats.AvgOrderValue), stats.AvgOrderValue.String())

	require.Len(t, stats.ByPaymentMethod, 2)
	assert.Equal(t, models.PaymentMethod("CASH"), stats.ByPaymentMethod[0].PaymentMethod)
	assert.EqualValues(t, 2, stats.ByPaymentMethod[0].Orders)
	assert.True(t, decimal.RequireFromString("10.50").Equal(stats.ByPaymentMethod[0].Revenue))
}

func TestRecordAndReplayOrderEvent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	order := seedOrder(t, db, nil, "CASH", models.OrderStatusPending, "10.00")

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return models.RecordOrderEvent(tx, order, models.OrderEventCreated, "cid-1")
	}))
	var rec models.OrderEventRecord
	require.NoError(t, db.First(&rec).Error)
	assert.Equal(t, models.OutboxPublishStatusPending, rec.PublishStatus)

	msg := models.ConvertToOrderEventMessage(rec)
	assert.Equal(t, order.ID, msg.OrderId)
	assert.Equal(t, "ORDER_CREATED", msg.EventType)
	assert.Equal(t, "cid-1", msg.CorrelationId)
	assert.Contains(t, string(msg.Payload), `"customer_name":"Jane Doe"`)

	// Only FAILED and DEAD rows may be replayed.
	_, err := models.ReplayOrderEvent(ctx, db, rec.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	require.NoError(t, db.Model(&rec).Updates(map[string]interface{}{
		"publish_status":   models.OutboxPublishStatusDead,
		"publish_attempts": 20,
	}).Error)
	replayed, err := models.ReplayOrderEvent(ctx, db, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPublishStatusFailed, replayed.PublishStatus)
	assert.Equal(t, 0, replayed.PublishAttempts)
	require.NotNil(t, replayed.NextAttemptAt)
	assert.WithinDuration(t, time.Now().UTC(), *replayed.NextAttemptAt, time.Minute)
}

func TestExportStockHistory(t *testing.T) {
	product := &models.Product{ID: 3, Name: "Classic Burger", Stock: 4}
	entries := []*models.StockHistory{
		{ID: 2, ProductId: 3, Change: -1, RequestedChange: -1, Reason: models.StockReasonSale, PreviousStock: 5, NewStock: 4, OrderId: testutil.IntPtr(9), CreatedAt: time.Now()},
		{ID: 1, ProductId: 3, Change: 5, RequestedChange: 5, Reason: models.StockReasonManualAdjustment, PreviousStock: 0, NewStock: 5, Notes: "delivery", CreatedAt: time.Now()},
	}

	f, err := models.ExportStockHistory(product, entries)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Stock History", "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Classic Burger")

	rows, err := f.GetRows("Stock History")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Reason", rows[1][1])
	assert.Equal(t, "SALE", rows[2][1])
	assert.Equal(t, "9", rows[2][7])
	assert.Equal(t, "delivery", rows[3][9])
}
