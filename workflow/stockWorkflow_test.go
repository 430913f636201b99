package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpdateStock(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 0)
	fries := testutil.SeedProduct(t, f.db, "Fries", "3.00", 7)
	shake := testutil.SeedProduct(t, f.db, "Shake", "4.00", 2)

	res, err := f.engine.BulkUpdateStock(context.Background(), &models.BulkStockUpdate{Updates: []models.StockUpdate{
		{ProductId: burger.ID, Stock: 12},
		{ProductId: fries.ID, Stock: 7},
		{ProductId: 999, Stock: 3},
		{ProductId: shake.ID, Stock: 1, Reason: "Spilled"},
	}}, testutil.IntPtr(2))
	require.NoError(t, err)

	require.Len(t, res.Updated, 2)
	assert.ElementsMatch(t, []SkippedStockUpdate{
		{ProductId: fries.ID, Reason: "unchanged"},
		{ProductId: 999, Reason: "not_found"},
	}, res.Skipped)

	p := testutil.ReloadProduct(t, f.db, burger.ID)
	assert.Equal(t, 12, p.Stock)
	assert.True(t, p.IsAvailable)
	assert.NotNil(t, p.LastRestocked)

	history := testutil.History(t, f.db, burger.ID)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockReasonManualAdjustment, history[0].Reason)
	assert.Equal(t, defaultBulkUpdateNote, history[0].Notes)
	assert.Equal(t, 2, *history[0].UserId)

	shakeHistory := testutil.History(t, f.db, shake.ID)
	require.Len(t, shakeHistory, 1)
	assert.Equal(t, "Spilled", shakeHistory[0].Notes)
	assert.Equal(t, -1, shakeHistory[0].Change)

	assert.Empty(t, testutil.History(t, f.db, fries.ID))
}

func TestBulkUpdateStockValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.BulkUpdateStock(context.Background(), &models.BulkStockUpdate{}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.engine.BulkUpdateStock(context.Background(), &models.BulkStockUpdate{Updates: []models.StockUpdate{
		{ProductId: 1, Stock: -4},
	}}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetStockHistory(t *testing.T) {
	f := newFixture(t)
	burger := testutil.SeedProduct(t, f.db, "Classic Burger", "9.50", 5)
	placeCashOrder(t, f, nil, line(burger.ID, 2))

	product, entries, err := f.engine.GetStockHistory(context.Background(), burger.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StockReasonCashSalePending, entries[0].Reason)

	_, _, err = f.engine.GetStockHistory(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}
