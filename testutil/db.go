// Package testutil opens throwaway SQLite databases and seeds catalog rows for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated database file under t.TempDir. A single connection keeps
// SQLite writers serialized the way row locks serialize them in MySQL.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "kitchen.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.MigrateTable(db))
	return db
}

// SeedProduct inserts a product priced at price with the given stock.
func SeedProduct(t *testing.T, db *gorm.DB, name string, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:              name,
		Price:             decimal.RequireFromString(price),
		Category:          models.ProductCategoryBeefBurgers,
		Stock:             stock,
		LowStockThreshold: 5,
		PrepTime:          10,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// ReloadProduct reads the current row.
func ReloadProduct(t *testing.T, db *gorm.DB, id int) *models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return &p
}

// History returns a product's journal in commit order.
func History(t *testing.T, db *gorm.DB, productId int) []models.StockHistory {
	t.Helper()
	var entries []models.StockHistory
	require.NoError(t, db.Where("product_id = ?", productId).Order("id ASC").Find(&entries).Error)
	return entries
}

func IntPtr(v int) *int { return &v }
