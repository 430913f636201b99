package workflow

import (
	"context"
	"errors"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTransactRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.engine.transact(context.Background(), "test", func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTransactGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.engine.transact(context.Background(), "test", func(tx *gorm.DB) error {
		calls++
		return &mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	})
	assert.ErrorIs(t, err, models.ErrPersistenceConflict)
	assert.Equal(t, 3, calls)
}

func TestTransactDoesNotRetryOtherErrors(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	calls := 0
	err := f.engine.transact(context.Background(), "test", func(tx *gorm.DB) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
