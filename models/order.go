package models

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/kitchen_backend/utils"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              int             `gorm:"primary_key" json:"id"`
	UserId          *int            `gorm:"index" json:"user_id"`
	CustomerName    string          `gorm:"size:100;not null" json:"customer_name"`
	CustomerPhone   string          `gorm:"size:20;not null" json:"customer_phone"`
	CustomerAddress string          `gorm:"size:255;not null" json:"customer_address"`
	PaymentMethod   PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	PaymentId       *string         `gorm:"size:255;index" json:"payment_id"`
	Status          OrderStatus     `gorm:"size:20;not null;index" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"size:20;not null" json:"payment_status"`
	Total           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	Items           []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem prices are a snapshot taken when the order was placed.
type OrderItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"index;not null" json:"order_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Product   *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
}

func (item OrderItem) LineTotal() decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// IsGuest is true for orders placed without an account.
func (o *Order) IsGuest() bool {
	return o.UserId == nil
}

// QuantitiesByProduct folds repeated lines for the same product together.
func (o *Order) QuantitiesByProduct() map[int]int {
	out := make(map[int]int, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductId] += item.Quantity
	}
	return out
}

type NewOrderItem struct {
	ProductId int `json:"product_id" validate:"required,gt=0"`
	Quantity  int `json:"quantity" validate:"required,gt=0"`
}

type NewOrder struct {
	UserId          *int           `json:"-"`
	CustomerName    string         `json:"customer_name" validate:"required,max=100"`
	CustomerPhone   string         `json:"customer_phone" validate:"required,len=10,number"`
	CustomerAddress string         `json:"customer_address" validate:"required,min=5,max=255,twowords"`
	PaymentMethod   PaymentMethod  `json:"payment_method"`
	Items           []NewOrderItem `json:"items" validate:"required,min=1,dive"`
}

// QuantitiesByProduct folds repeated lines for the same product together.
func (input *NewOrder) QuantitiesByProduct() map[int]int {
	out := make(map[int]int, len(input.Items))
	for _, item := range input.Items {
		out[item.ProductId] += item.Quantity
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("twowords", func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) >= 2
	})
	return v
}

// Validate trims the contact fields and checks the request shape.
func (input *NewOrder) Validate() error {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	input.CustomerAddress = strings.TrimSpace(input.CustomerAddress)
	input.PaymentMethod = PaymentMethod(strings.ToUpper(strings.TrimSpace(string(input.PaymentMethod))))

	if err := validate.Struct(input); err != nil {
		return validationErrorFrom(err)
	}
	return nil
}

type StockUpdate struct {
	ProductId int    `json:"product_id" validate:"required,gt=0"`
	Stock     int    `json:"stock" validate:"min=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

type BulkStockUpdate struct {
	Updates []StockUpdate `json:"updates" validate:"required,min=1,dive"`
}

func (input *BulkStockUpdate) Validate() error {
	if err := validate.Struct(input); err != nil {
		return validationErrorFrom(err)
	}
	return nil
}

func validationErrorFrom(err error) error {
	return &ValidationError{Fields: utils.ProcessValidationErrors(err)}
}
