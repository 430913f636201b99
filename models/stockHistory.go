package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StockHistory is one immutable journal entry of the stock ledger.
// Change is the quantity actually applied; RequestedChange differs from it only when
// a decrement was clamped at zero.
type StockHistory struct {
	ID              int               `gorm:"primary_key" json:"id"`
	ProductId       int               `gorm:"index;not null" json:"product_id"`
	Change          int               `gorm:"column:stock_change;not null" json:"change"`
	RequestedChange int               `gorm:"not null" json:"requested_change"`
	Reason          StockChangeReason `gorm:"size:30;not null;index" json:"reason"`
	PreviousStock   int               `gorm:"not null" json:"previous_stock"`
	NewStock        int               `gorm:"not null" json:"new_stock"`
	Clamped         bool              `gorm:"not null;index" json:"clamped"`
	OrderId         *int              `gorm:"index" json:"order_id"`
	UserId          *int              `gorm:"index" json:"user_id"`
	Notes           string            `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

// BeforeCreate enforces the journal arithmetic: newStock = previousStock + change, never negative.
func (h *StockHistory) BeforeCreate(tx *gorm.DB) error {
	if h.NewStock != h.PreviousStock+h.Change {
		return fmt.Errorf("stock history for product %d does not balance: %d + %d != %d",
			h.ProductId, h.PreviousStock, h.Change, h.NewStock)
	}
	if h.NewStock < 0 {
		return fmt.Errorf("stock history for product %d would leave negative stock %d", h.ProductId, h.NewStock)
	}
	if !h.Reason.IsValid() {
		return fmt.Errorf("invalid stock change reason %q", h.Reason)
	}
	return nil
}

func (h *StockHistory) BeforeUpdate(tx *gorm.DB) error {
	return ErrStockHistoryImmutable
}

func (h *StockHistory) BeforeDelete(tx *gorm.DB) error {
	return ErrStockHistoryImmutable
}
