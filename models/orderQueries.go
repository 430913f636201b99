package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderFilter scopes getOrders by the caller's role and identity.
// Admin and staff see every order; customers see their own; guests must name the order ids.
type OrderFilter struct {
	Role     UserRole
	UserId   *int
	OrderIds []int
	Status   *OrderStatus
	Limit    int
}

func GetOrder(ctx context.Context, db *gorm.DB, orderId int) (*Order, error) {
	var order Order
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		First(&order, orderId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrOrderNotFound, orderId)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// lockOrder reads the order row with SELECT ... FOR UPDATE inside tx.
func lockOrder(tx *gorm.DB, orderId int) (*Order, error) {
	var order Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, orderId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrOrderNotFound, orderId)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder is lockOrder for callers outside the package; it requires a transaction.
func LockOrder(tx *gorm.DB, orderId int) (*Order, error) {
	if !inTransaction(tx) {
		return nil, ErrLedgerNeedsTransaction
	}
	return lockOrder(tx, orderId)
}

func GetOrders(ctx context.Context, db *gorm.DB, filter OrderFilter) ([]*Order, error) {
	q := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product")

	switch {
	case filter.Role.SeesAllOrders():
	case filter.UserId != nil:
		q = q.Where("user_id = ?", *filter.UserId)
	default:
		if len(filter.OrderIds) == 0 {
			return nil, NewValidationError("order_ids", "required")
		}
		q = q.Where("user_id IS NULL")
	}
	if len(filter.OrderIds) > 0 {
		q = q.Where("id IN ?", filter.OrderIds)
	}
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, NewValidationError("status", "oneof")
		}
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var results []*Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type PaymentMethodStats struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Orders        int64           `json:"orders"`
	Revenue       decimal.Decimal `json:"revenue"`
}

type OrderStats struct {
	Revenue         decimal.Decimal      `json:"revenue"`
	TotalOrders     int64                `json:"total_orders"`
	PendingOrders   int64                `json:"pending_orders"`
	CompletedOrders int64                `json:"completed_orders"`
	AvgOrderValue   decimal.Decimal      `json:"avg_order_value"`
	ByPaymentMethod []PaymentMethodStats `json:"by_payment_method"`
}

// GetOrderStats summarises orders for the admin dashboard. Revenue counts COMPLETED orders only.
func GetOrderStats(ctx context.Context, db *gorm.DB) (*OrderStats, error) {
	db = db.WithContext(ctx)
	stats := &OrderStats{}

	if err := db.Model(&Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Order{}).Where("status = ?", OrderStatusPending).Count(&stats.PendingOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Order{}).Where("status = ?", OrderStatusCompleted).Count(&stats.CompletedOrders).Error; err != nil {
		return nil, err
	}

	var revenue struct {
		Revenue decimal.Decimal
	}
	if err := db.Model(&Order{}).
		Select("COALESCE(SUM(total), 0) AS revenue").
		Where("status = ?", OrderStatusCompleted).
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	stats.Revenue = revenue.Revenue
	if stats.CompletedOrders > 0 {
		stats.AvgOrderValue = stats.Revenue.Div(decimal.NewFromInt(stats.CompletedOrders)).Round(2)
	}

	if err := db.Model(&Order{}).
		Select("payment_method, COUNT(*) AS orders, COALESCE(SUM(CASE WHEN status = ? THEN total ELSE 0 END), 0) AS revenue", OrderStatusCompleted).
		Group("payment_method").
		Order("payment_method ASC").
		Scan(&stats.ByPaymentMethod).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
