package models

type UserRole string

const (
	UserRoleAdmin    UserRole = "ADMIN"
	UserRoleStaff    UserRole = "STAFF"
	UserRoleCustomer UserRole = "USER"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleStaff, UserRoleCustomer:
		return true
	}
	return false
}

// SeesAllOrders is true for kitchen and back-office roles.
func (r UserRole) SeesAllOrders() bool {
	return r == UserRoleAdmin || r == UserRoleStaff
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is independent of OrderStatus and only moves forward.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !next.IsValid() {
		return false
	}
	return !(s == PaymentStatusPaid && next == PaymentStatusPending)
}

// PaymentMethod is CASH or the name of the configured payment gateway (e.g. STRIPE).
type PaymentMethod string

const PaymentMethodCash PaymentMethod = "CASH"

func (m PaymentMethod) IsCash() bool {
	return m == PaymentMethodCash
}

type StockChangeReason string

const (
	StockReasonManualAdjustment StockChangeReason = "MANUAL_ADJUSTMENT"
	StockReasonSale             StockChangeReason = "SALE"
	StockReasonCashSalePending  StockChangeReason = "CASH_SALE_PENDING"
	StockReasonOrderCancelled   StockChangeReason = "ORDER_CANCELLED"
)

func (r StockChangeReason) IsValid() bool {
	switch r {
	case StockReasonManualAdjustment, StockReasonSale, StockReasonCashSalePending, StockReasonOrderCancelled:
		return true
	}
	return false
}

// IsOrderDeduction marks the reasons that consume stock on behalf of an order.
func (r StockChangeReason) IsOrderDeduction() bool {
	return r == StockReasonSale || r == StockReasonCashSalePending
}

type ProductCategory string

const (
	ProductCategoryBeefBurgers     ProductCategory = "BEEF_BURGERS"
	ProductCategorySteakSandwiches ProductCategory = "STEAK_SANDWICHES"
	ProductCategoryChickenBurgers  ProductCategory = "CHICKEN_BURGERS"
	ProductCategoryFishBurgers     ProductCategory = "FISH_BURGERS"
	ProductCategoryVeggieBurgers   ProductCategory = "VEGGIE_BURGERS"
	ProductCategoryRolls           ProductCategory = "ROLLS"
	ProductCategoryWraps           ProductCategory = "WRAPS"
	ProductCategoryHotFood         ProductCategory = "HOT_FOOD"
	ProductCategorySalads          ProductCategory = "SALADS"
	ProductCategorySeafood         ProductCategory = "SEAFOOD"
	ProductCategoryLoadedFries     ProductCategory = "LOADED_FRIES"
	ProductCategoryChickenWings    ProductCategory = "CHICKEN_WINGS"
	ProductCategoryKidsMenu        ProductCategory = "KIDS_MENU"
	ProductCategorySides           ProductCategory = "SIDES"
	ProductCategoryMilkshakes      ProductCategory = "MILKSHAKES"
	ProductCategorySoftDrinks      ProductCategory = "SOFT_DRINKS"
)

func (c ProductCategory) IsValid() bool {
	switch c {
	case ProductCategoryBeefBurgers, ProductCategorySteakSandwiches, ProductCategoryChickenBurgers, ProductCategoryFishBurgers, ProductCategoryVeggieBurgers, ProductCategoryRolls, ProductCategoryWraps, ProductCategoryHotFood, ProductCategorySalads, ProductCategorySeafood, ProductCategoryLoadedFries, ProductCategoryChickenWings, ProductCategoryKidsMenu, ProductCategorySides, ProductCategoryMilkshakes, ProductCategorySoftDrinks:
		return true
	}
	return false
}
