package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentAdapter      = errors.New("payment adapter error")
	ErrPersistenceConflict = errors.New("persistence conflict")

	ErrStockHistoryImmutable  = errors.New("stock history entries are append-only")
	ErrLedgerNeedsTransaction = errors.New("stock ledger mutations must run inside a transaction")
)

// ValidationError carries per-field detail (field name -> failed rule).
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field string, rule string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StockError is returned by order creation when a line item cannot be served.
// Err is ErrInsufficientStock or ErrProductUnavailable.
type StockError struct {
	Err         error
	ProductId   int
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	if errors.Is(e.Err, ErrProductUnavailable) {
		return fmt.Sprintf("%s: %s (id=%d)", e.Err, e.ProductName, e.ProductId)
	}
	return fmt.Sprintf("%s: %s (id=%d) requested %d, available %d", e.Err, e.ProductName, e.ProductId, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// IsPersistenceConflict reports whether err is a transaction that lost to a concurrent writer
// and can be retried as a whole.
func IsPersistenceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPersistenceConflict) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213: deadlock found, 1205: lock wait timeout exceeded
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
