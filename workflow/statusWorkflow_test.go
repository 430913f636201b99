package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeCashOrder(t *testing.T, f *fixture, userId *int, lines ...models.NewOrderItem) int {
	t.Helper()
	res, err := f.engine.CreateOrder(context.Background(), orderInput("CASH", userId, lines...))
	require.NoError(t, err)
	f.events.take()
	return res.Order.ID
}

func TestUpdateOrderStatusFollowsKitchenFlow(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 5)
	orderId := placeCashOrder(t, f, testutil.IntPtr(4), line(burger.ID, 1))
	ctx := context.Background()

	order, err := f.engine.UpdateOrderStatus(ctx, orderId, models.OrderStatusPreparing, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, order.Status)
	assert.Equal(t, []string{fanout.EventOrderStatusUpdate, fanout.EventOrderUpdated}, f.events.names())
	f.events.take()

	_, err = f.engine.UpdateOrderStatus(ctx, orderId, models.OrderStatusReady, nil)
	require.NoError(t, err)
	events := f.events.take()
	require.Len(t, events, 3)
	assert.Equal(t, fanout.EventOrderStatusUpdate, events[0].Event)
	assert.Equal(t, fanout.EventNotification, events[1].Event)
	assert.Equal(t, []string{fanout.UserRoom(4)}, events[1].Groups)
	ready := events[1].Payload.(fanout.Notification)
	assert.Equal(t, fanout.NotificationOrderReady, ready.Type)
	assert.Equal(t, "Food is Ready!", ready.Title)
	assert.Equal(t, fanout.EventOrderUpdated, events[2].Event)
	assert.Equal(t, staffRooms, events[2].Groups)

	order, err = f.engine.UpdateOrderStatus(ctx, orderId, models.OrderStatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}

func TestUpdateOrderStatusRejectsIllegalMoves(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 5)
	orderId := placeCashOrder(t, f, nil, line(burger.ID, 1))
	ctx := context.Background()

	_, err := f.engine.UpdateOrderStatus(ctx, orderId, models.OrderStatusReady, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	for _, next := range []models.OrderStatus{models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted} {
		_, err = f.engine.UpdateOrderStatus(ctx, orderId, next, nil)
		require.NoError(t, err)
	}
	f.events.take()

	_, err = f.engine.UpdateOrderStatus(ctx, orderId, models.OrderStatusCancelled, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = f.engine.UpdateOrderStatus(ctx, orderId, "DELIVERED", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.engine.UpdateOrderStatus(ctx, 999, models.OrderStatusPreparing, nil)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	order, err := models.GetOrder(ctx, f.db, orderId)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Empty(t, f.events.take())
}

func TestCancelRestocksWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.engine.RestockOnCancel = true
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 5)
	orderId := placeCashOrder(t, f, nil, line(burger.ID, 3))
	require.Equal(t, 2, testutil.ReloadProduct(t, f.db, burger.ID).Stock)

	_, err := f.engine.UpdateOrderStatus(context.Background(), orderId, models.OrderStatusCancelled, testutil.IntPtr(1))
	require.NoError(t, err)

	assert.Equal(t, 5, testutil.ReloadProduct(t, f.db, burger.ID).Stock)
	history := testutil.History(t, f.db, burger.ID)
	require.Len(t, history, 2)
	assert.Equal(t, models.StockReasonOrderCancelled, history[1].Reason)
	assert.Equal(t, 3, history[1].Change)
	assert.Equal(t, orderId, *history[1].OrderId)
	assert.Equal(t, 1, *history[1].UserId)
}

func TestCancelKeepsStockByDefault(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 5)
	orderId := placeCashOrder(t, f, nil, line(burger.ID, 3))

	order, err := f.engine.UpdateOrderStatus(context.Background(), orderId, models.OrderStatusCancelled, nil)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 2, testutil.ReloadProduct(t, f.db, burger.ID).Stock)
	assert.Len(t, testutil.History(t, f.db, burger.ID), 1)
}
