package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is owned by catalog management, except Stock, IsAvailable and LastRestocked,
// which only the stock ledger writes once the product is on sale.
type Product struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Name              string          `gorm:"size:100;not null" json:"name"`
	Description       string          `gorm:"type:text" json:"description"`
	Price             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Category          ProductCategory `gorm:"size:30;index" json:"category"`
	Stock             int             `gorm:"not null" json:"stock"`
	LowStockThreshold int             `gorm:"not null" json:"low_stock_threshold"`
	IsAvailable       bool            `gorm:"not null" json:"is_available"`
	IsDisabled        bool            `gorm:"not null" json:"is_disabled"`
	IsPopular         bool            `gorm:"not null" json:"is_popular"`
	PrepTime          int             `gorm:"not null" json:"prep_time"`
	LastRestocked     *time.Time      `json:"last_restocked"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Stock < 0 {
		return errors.New("product stock cannot be negative")
	}
	if p.Category != "" && !p.Category.IsValid() {
		return errors.New("invalid product category " + string(p.Category))
	}
	p.IsAvailable = availableFor(p.Stock, p.IsDisabled)
	return nil
}

func availableFor(stock int, disabled bool) bool {
	return stock > 0 && !disabled
}

// IsLowStock mirrors the low_stock_threshold query filter for a loaded row.
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}
