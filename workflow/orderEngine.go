package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/kitchen_backend/config"
	"github.com/mmdatafocus/kitchen_backend/payment"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("kitchen-backend/workflow")

// EventPublisher is the fanout router as seen by the engine.
type EventPublisher interface {
	Publish(ctx context.Context, groups []string, event string, payload any)
}

// OrderEngine is the only component that mutates orders and stock together.
// Every order + stock + journal write goes through one transaction; fanout happens after commit.
type OrderEngine struct {
	DB       *gorm.DB
	Payments payment.Gateway
	Fanout   EventPublisher
	Logger   *logrus.Logger

	// Locker is optional. verifyPayment takes a short per-order lock to avoid duplicate
	// gateway calls; correctness never depends on it.
	Locker *redislock.Client

	Currency        string
	MaxAttempts     int
	RetryBackoff    time.Duration
	RestockOnCancel bool
	OutboxEnabled   bool
}

func NewOrderEngine(db *gorm.DB, payments payment.Gateway, fanout EventPublisher, logger *logrus.Logger) *OrderEngine {
	return &OrderEngine{
		DB:              db,
		Payments:        payments,
		Fanout:          fanout,
		Logger:          logger,
		Currency:        config.PaymentCurrency(),
		MaxAttempts:     config.PersistenceRetryLimit(),
		RetryBackoff:    50 * time.Millisecond,
		RestockOnCancel: config.RestockOnCancel(),
		OutboxEnabled:   config.OrderEventsTopic() != "",
	}
}

func (e *OrderEngine) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, "OrderEngine."+name, opts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *OrderEngine) publish(ctx context.Context, groups []string, event string, payload any) {
	if e.Fanout == nil || len(groups) == 0 {
		return
	}
	e.Fanout.Publish(ctx, groups, event, payload)
}

func (e *OrderEngine) logWarn(funcName string, fields logrus.Fields, msg string) {
	if e.Logger == nil {
		return
	}
	f := logrus.Fields{"field": "OrderEngine", "funcName": funcName}
	for k, v := range fields {
		f[k] = v
	}
	e.Logger.WithFields(f).Warn(msg)
}
