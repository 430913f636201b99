package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// transact runs fn in a transaction and re-runs the whole transaction when it loses to a
// concurrent writer (deadlock, lock wait timeout). fn must be safe to run more than once.
func (e *OrderEngine) transact(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.DB.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !models.IsPersistenceConflict(err) {
			return err
		}
		e.logWarn(op, logrus.Fields{"attempt": attempt}, "transaction conflict: "+err.Error())
		if attempt == attempts {
			break
		}

		backoff := e.RetryBackoff * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w: %s gave up after %d attempts: %v", models.ErrPersistenceConflict, op, attempts, err)
}
