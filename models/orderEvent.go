package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/kitchen_backend/config"
	"gorm.io/gorm"
)

type OrderEventType string

const (
	OrderEventCreated              OrderEventType = "ORDER_CREATED"
	OrderEventPaid                 OrderEventType = "ORDER_PAID"
	OrderEventStatusChanged        OrderEventType = "ORDER_STATUS_CHANGED"
	OrderEventPaymentStatusChanged OrderEventType = "PAYMENT_STATUS_CHANGED"
)

// Outbox publish statuses for OrderEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// OrderEventRecord is the transactional outbox row written alongside an order mutation
// and later published to Pub/Sub by the dispatcher.
type OrderEventRecord struct {
	ID               int            `gorm:"primary_key" json:"id"`
	OrderId          int            `gorm:"index;not null" json:"order_id"`
	EventType        OrderEventType `gorm:"size:40;not null" json:"event_type"`
	Payload          []byte         `gorm:"type:text" json:"payload"`
	CorrelationId    string         `gorm:"size:64" json:"correlation_id"`
	PublishStatus    string         `gorm:"size:20;not null;index" json:"publish_status"`
	PublishAttempts  int            `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time     `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time     `json:"locked_at"`
	LockedBy         *string        `gorm:"size:64" json:"locked_by"`
	LastPublishError *string        `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time     `json:"published_at"`
	PubSubMessageId  *string        `gorm:"size:128" json:"pub_sub_message_id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordOrderEvent appends an outbox row in tx. The order snapshot is the payload.
func RecordOrderEvent(tx *gorm.DB, order *Order, eventType OrderEventType, correlationId string) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	rec := OrderEventRecord{
		OrderId:       order.ID,
		EventType:     eventType,
		Payload:       payload,
		CorrelationId: correlationId,
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.Create(&rec).Error
}

func ConvertToOrderEventMessage(rec OrderEventRecord) config.OrderEventMessage {
	return config.OrderEventMessage{
		ID:            rec.ID,
		OrderId:       rec.OrderId,
		EventType:     string(rec.EventType),
		OccurredAt:    rec.CreatedAt,
		Payload:       json.RawMessage(rec.Payload),
		CorrelationId: rec.CorrelationId,
	}
}

// ReplayOrderEvent re-queues a FAILED or DEAD outbox row for immediate publishing.
func ReplayOrderEvent(ctx context.Context, db *gorm.DB, recordId int) (*OrderEventRecord, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&OrderEventRecord{}).
		Where("id = ? AND publish_status IN ?", recordId, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: outbox record %d is not FAILED or DEAD", ErrInvalidTransition, recordId)
	}
	var rec OrderEventRecord
	if err := db.WithContext(ctx).First(&rec, recordId).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
