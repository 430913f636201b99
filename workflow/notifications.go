package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/models"
)

func orderPaidNotification(orderId int) fanout.Notification {
	return fanout.Notification{
		Title:   "New Order Received",
		Message: fmt.Sprintf("Order #%d has been paid and is ready for preparation.", orderId),
		Type:    fanout.NotificationOrderPaid,
	}
}

func paymentReceivedNotification(orderId int) fanout.Notification {
	return fanout.Notification{
		Title:   "Payment Received",
		Message: fmt.Sprintf("Payment for Order #%d was received. We are preparing your food.", orderId),
		Type:    fanout.NotificationOrderPaid,
	}
}

func orderReadyNotification(orderId int) fanout.Notification {
	return fanout.Notification{
		Title:   "Food is Ready!",
		Message: fmt.Sprintf("Order #%d is ready for pickup/delivery.", orderId),
		Type:    fanout.NotificationOrderReady,
	}
}

// announceStatusChange sends the customer-facing status event, the ready notice when
// relevant, then the staff dashboard refresh.
func (e *OrderEngine) announceStatusChange(ctx context.Context, order *models.Order) {
	e.publish(ctx, orderGroups(order), fanout.EventOrderStatusUpdate, order)
	if order.Status == models.OrderStatusReady && order.UserId != nil {
		e.publish(ctx, []string{fanout.UserRoom(*order.UserId)}, fanout.EventNotification, orderReadyNotification(order.ID))
	}
	e.publish(ctx, staffGroups(), fanout.EventOrderUpdated, order)
}

func (e *OrderEngine) announcePaid(ctx context.Context, order *models.Order) {
	e.publish(ctx, staffGroups(), fanout.EventNewOrder, order)
	e.publish(ctx, staffGroups(), fanout.EventNotification, orderPaidNotification(order.ID))
	e.publish(ctx, orderGroups(order), fanout.EventOrderStatusUpdate, order)
	if order.UserId != nil {
		e.publish(ctx, []string{fanout.UserRoom(*order.UserId)}, fanout.EventNotification, paymentReceivedNotification(order.ID))
	}
}
