package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockChange describes one ledger mutation. Delta is signed: negative consumes stock.
type StockChange struct {
	ProductId int
	Delta     int
	Reason    StockChangeReason
	OrderId   *int
	UserId    *int
	Notes     string
}

// StockMovement is what the ledger actually applied.
type StockMovement struct {
	ProductId      int  `json:"product_id"`
	PreviousStock  int  `json:"previous_stock"`
	NewStock       int  `json:"new_stock"`
	Change         int  `json:"change"`
	Clamped        bool `json:"clamped"`
	StockHistoryId int  `json:"stock_history_id"`
}

func inTransaction(tx *gorm.DB) bool {
	if tx == nil || tx.Statement == nil {
		return false
	}
	_, ok := tx.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// lockProduct reads the product row with SELECT ... FOR UPDATE so concurrent
// ledger mutations of the same product serialize on the row.
func lockProduct(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrProductNotFound, productId)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ReserveAndCommit applies change to the product's cached stock and appends the matching
// journal entry. It must run inside the caller's transaction. A decrement past zero is
// clamped to zero and flagged on the entry instead of failing.
func ReserveAndCommit(tx *gorm.DB, change StockChange) (*StockMovement, error) {
	if !inTransaction(tx) {
		return nil, ErrLedgerNeedsTransaction
	}
	product, err := lockProduct(tx, change.ProductId)
	if err != nil {
		return nil, err
	}
	return applyStockChange(tx, product, change)
}

func applyStockChange(tx *gorm.DB, product *Product, change StockChange) (*StockMovement, error) {
	if !change.Reason.IsValid() {
		return nil, NewValidationError("reason", "oneof")
	}

	previous := product.Stock
	newStock := previous + change.Delta
	clamped := false
	if newStock < 0 {
		newStock = 0
		clamped = true
	}
	applied := newStock - previous

	updates := map[string]interface{}{
		"stock":        newStock,
		"is_available": availableFor(newStock, product.IsDisabled),
	}
	if newStock > previous {
		updates["last_restocked"] = time.Now().UTC()
	}
	if err := tx.Model(&Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	notes := change.Notes
	if clamped {
		if notes != "" {
			notes += "; "
		}
		notes += fmt.Sprintf("clamped: requested %d, applied %d", change.Delta, applied)
	}
	entry := StockHistory{
		ProductId:       product.ID,
		Change:          applied,
		RequestedChange: change.Delta,
		Reason:          change.Reason,
		PreviousStock:   previous,
		NewStock:        newStock,
		Clamped:         clamped,
		OrderId:         change.OrderId,
		UserId:          change.UserId,
		Notes:           notes,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	product.Stock = newStock
	product.IsAvailable = availableFor(newStock, product.IsDisabled)

	return &StockMovement{
		ProductId:      product.ID,
		PreviousStock:  previous,
		NewStock:       newStock,
		Change:         applied,
		Clamped:        clamped,
		StockHistoryId: entry.ID,
	}, nil
}

// SetStockLevel moves a product to an absolute stock level. It returns nil, nil when
// the level is unchanged, since the journal records changes only.
func SetStockLevel(tx *gorm.DB, productId int, level int, userId *int, notes string) (*StockMovement, error) {
	if !inTransaction(tx) {
		return nil, ErrLedgerNeedsTransaction
	}
	if level < 0 {
		return nil, NewValidationError("stock", "min")
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return nil, err
	}
	diff := level - product.Stock
	if diff == 0 {
		return nil, nil
	}
	return applyStockChange(tx, product, StockChange{
		ProductId: productId,
		Delta:     diff,
		Reason:    StockReasonManualAdjustment,
		UserId:    userId,
		Notes:     notes,
	})
}

// RestoreOrderStock returns whatever the order's sales entries actually deducted,
// net of earlier restores, so calling it twice is harmless.
func RestoreOrderStock(tx *gorm.DB, orderId int, userId *int) ([]StockMovement, error) {
	if !inTransaction(tx) {
		return nil, ErrLedgerNeedsTransaction
	}
	type netRow struct {
		ProductId int
		Net       int
	}
	var rows []netRow
	err := tx.Model(&StockHistory{}).
		Select("product_id, SUM(stock_change) AS net").
		Where("order_id = ? AND reason IN ?", orderId, []StockChangeReason{
			StockReasonSale, StockReasonCashSalePending, StockReasonOrderCancelled,
		}).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductId < rows[j].ProductId })

	var movements []StockMovement
	for _, row := range rows {
		if row.Net >= 0 {
			continue
		}
		oid := orderId
		m, err := ReserveAndCommit(tx, StockChange{
			ProductId: row.ProductId,
			Delta:     -row.Net,
			Reason:    StockReasonOrderCancelled,
			OrderId:   &oid,
			UserId:    userId,
			Notes:     fmt.Sprintf("Order #%d cancelled", orderId),
		})
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, nil
}

func GetProduct(ctx context.Context, db *gorm.DB, productId int) (*Product, error) {
	var product Product
	err := db.WithContext(ctx).First(&product, productId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrProductNotFound, productId)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetStockHistory lists a product's journal, newest first.
func GetStockHistory(ctx context.Context, db *gorm.DB, productId int) ([]*StockHistory, error) {
	if _, err := GetProduct(ctx, db, productId); err != nil {
		return nil, err
	}
	var results []*StockHistory
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetLowStockProducts(ctx context.Context, db *gorm.DB) ([]*Product, error) {
	var results []*Product
	err := db.WithContext(ctx).
		Where("stock <= low_stock_threshold").
		Order("stock ASC").
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StockReplay is the result of replaying one product's journal in commit order.
type StockReplay struct {
	ProductId     int             `json:"product_id"`
	CachedStock   int             `json:"cached_stock"`
	ReplayedStock int             `json:"replayed_stock"`
	Entries       int             `json:"entries"`
	ChainBreaks   []int           `json:"chain_breaks"`
	Clamped       []*StockHistory `json:"clamped"`
}

// Consistent is true when the journal chains without gaps and ends at the cached stock.
func (r *StockReplay) Consistent() bool {
	return len(r.ChainBreaks) == 0 && r.ReplayedStock == r.CachedStock
}

// ReplayStockHistory walks the journal by id. The first entry's previous stock is the
// opening balance, since catalog creation may seed stock without a journal entry.
func ReplayStockHistory(ctx context.Context, db *gorm.DB, productId int) (*StockReplay, error) {
	product, err := GetProduct(ctx, db, productId)
	if err != nil {
		return nil, err
	}
	var entries []*StockHistory
	if err := db.WithContext(ctx).Where("product_id = ?", productId).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}

	replay := &StockReplay{
		ProductId:     productId,
		CachedStock:   product.Stock,
		ReplayedStock: product.Stock,
		Entries:       len(entries),
	}
	if len(entries) == 0 {
		return replay, nil
	}

	running := entries[0].PreviousStock
	for _, e := range entries {
		if e.PreviousStock != running {
			replay.ChainBreaks = append(replay.ChainBreaks, e.ID)
		}
		running = e.PreviousStock + e.Change
		if running < 0 {
			replay.ChainBreaks = append(replay.ChainBreaks, e.ID)
		}
		if e.Clamped {
			replay.Clamped = append(replay.Clamped, e)
		}
	}
	replay.ReplayedStock = running
	return replay, nil
}
