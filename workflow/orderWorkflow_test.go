package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCashOrderConsumesStock(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 3)
	fries := testutil.SeedProduct(t, f.db, "Fries", "3.25", 10)

	res, err := f.engine.CreateOrder(context.Background(), orderInput("cash", testutil.IntPtr(5), line(burger.ID, 2), line(fries.ID, 1), line(burger.ID, 1)))
	require.NoError(t, err)

	order := res.Order
	assert.Empty(t, res.ClientSecret)
	assert.Equal(t, models.PaymentMethodCash, order.PaymentMethod)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Nil(t, order.PaymentId)
	assert.True(t, decimal.RequireFromString("31.75").Equal(order.Total), order.Total.String())
	require.Len(t, order.Items, 3)
	assert.True(t, decimal.RequireFromString("9.50").Equal(order.Items[0].Price))

	p := testutil.ReloadProduct(t, f.db, burger.ID)
	assert.Equal(t, 0, p.Stock)
	assert.False(t, p.IsAvailable)
	assert.Equal(t, 9, testutil.ReloadProduct(t, f.db, fries.ID).Stock)

	history := testutil.History(t, f.db, burger.ID)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockReasonCashSalePending, history[0].Reason)
	assert.Equal(t, -3, history[0].Change)
	assert.Equal(t, order.ID, *history[0].OrderId)

	events := f.events.take()
	require.Len(t, events, 2)
	assert.Equal(t, fanout.EventNewOrder, events[0].Event)
	assert.Equal(t, staffRooms, events[0].Groups)
	assert.Equal(t, fanout.EventNotification, events[1].Event)
	assert.Equal(t, fanout.NotificationNewOrder, events[1].Payload.(fanout.Notification).Type)
}

func TestCreateOrderInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 2)

	_, err := f.engine.CreateOrder(context.Background(), orderInput("CASH", nil, line(burger.ID, 3)))
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	var stockErr *models.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, burger.ID, stockErr.ProductId)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))
	assert.Zero(t, f.countRows(t, &models.StockHistory{}))
	assert.Equal(t, 2, testutil.ReloadProduct(t, f.db, burger.ID).Stock)
	assert.Empty(t, f.events.take())
}

func TestCreateOrderAggregatesRepeatedLines(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 3)

	_, err := f.engine.CreateOrder(context.Background(), orderInput("CASH", nil, line(burger.ID, 2), line(burger.ID, 2)))
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
}

func TestCreateOrderUnavailableProduct(t *testing.T) {
	f := newFixture(t)
	disabled := testutil.SeedProduct(t, f.db, "Seasonal", "4.00", 10)
	require.NoError(t, f.db.Model(disabled).Updates(map[string]interface{}{"is_disabled": true, "is_available": false}).Error)

	_, err := f.engine.CreateOrder(context.Background(), orderInput("CASH", nil, line(disabled.ID, 1)))
	assert.ErrorIs(t, err, models.ErrProductUnavailable)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateOrder(context.Background(), orderInput("CASH", nil, line(404, 1)))
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	input := orderInput("CASH", nil)
	_, err := f.engine.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrValidation)

	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 3)
	_, err = f.engine.CreateOrder(context.Background(), orderInput("PAYPAL", nil, line(burger.ID, 1)))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateGatewayOrderLeavesStock(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "12.345", 3)

	res, err := f.engine.CreateOrder(context.Background(), orderInput("", nil, line(burger.ID, 2)))
	require.NoError(t, err)

	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, models.PaymentMethod("STRIPE"), res.Order.PaymentMethod)
	require.NotNil(t, res.Order.PaymentId)
	assert.Equal(t, "pi_1", *res.Order.PaymentId)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, int64(2469), req.AmountMinor)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "Order regarding food items for User ID: Guest", req.Description)

	assert.Equal(t, 3, testutil.ReloadProduct(t, f.db, burger.ID).Stock)
	assert.Empty(t, testutil.History(t, f.db, burger.ID))
	assert.Equal(t, []string{fanout.EventNewOrder}, f.events.names())
}

func TestCreateGatewayOrderDescribesOwner(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 3)
	f.createGatewayOrder(t, testutil.IntPtr(17), line(burger.ID, 1))
	assert.Equal(t, "Order regarding food items for User ID: 17", f.gateway.requests[0].Description)
}

func TestCreateGatewayOrderAdapterFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 3)
	f.gateway.createErr = errors.New("card network down")

	_, err := f.engine.CreateOrder(context.Background(), orderInput("STRIPE", nil, line(burger.ID, 1)))
	assert.ErrorIs(t, err, models.ErrPaymentAdapter)
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Empty(t, f.events.take())
}

func TestGetOrdersThroughEngine(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 10)
	mine := f.createGatewayOrder(t, testutil.IntPtr(1), line(burger.ID, 1))
	f.createGatewayOrder(t, testutil.IntPtr(2), line(burger.ID, 1))

	orders, err := f.engine.GetOrders(context.Background(), models.OrderFilter{Role: models.UserRoleCustomer, UserId: testutil.IntPtr(1)})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mine.Order.ID, orders[0].ID)

	_, err = f.engine.GetOrder(context.Background(), mine.Order.ID, models.OrderFilter{Role: models.UserRoleCustomer, UserId: testutil.IntPtr(2)})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
