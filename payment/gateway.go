// Package payment is the boundary to the external card gateway. It only creates
// intents and reads their status; it never touches stock or orders.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Intent statuses reported by the gateway. Only StatusSucceeded is interpreted;
// everything else is passed through to callers unchanged.
const (
	StatusSucceeded             = "succeeded"
	StatusProcessing            = "processing"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusCanceled              = "canceled"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == StatusSucceeded
}

type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type Gateway interface {
	// Name is the payment method recorded on orders paid through this gateway.
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentId string) (*Intent, error)
}

// ToMinorUnits converts a major-unit amount (e.g. 12.34) to minor units (1234), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
