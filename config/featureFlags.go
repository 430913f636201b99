package config

import (
	"os"
	"strings"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func envString(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// RestockOnCancel returns net-deducted stock to the shelf when an order is cancelled.
//
// Set via env:
// - RESTOCK_ON_CANCEL=true
func RestockOnCancel() bool {
	return envBool("RESTOCK_ON_CANCEL")
}

// OrderEventsTopic enables the order-event outbox when non-empty.
func OrderEventsTopic() string {
	return envString("ORDER_EVENTS_TOPIC", "")
}

func PaymentCurrency() string {
	return strings.ToLower(envString("PAYMENT_CURRENCY", "usd"))
}

func PaymentGatewayName() string {
	return strings.ToUpper(envString("PAYMENT_GATEWAY", "STRIPE"))
}

func StripeSecretKey() string {
	return envString("STRIPE_SECRET_KEY", "")
}

func StripeAPIURL() string {
	return envString("STRIPE_API_URL", "https://api.stripe.com")
}

// PersistenceRetryLimit bounds how many times a conflicting transaction is attempted.
func PersistenceRetryLimit() int {
	n := intFromEnv("PERSISTENCE_RETRY_LIMIT", 3)
	if n < 1 {
		return 1
	}
	return n
}

func FanoutRedisChannel() string {
	return envString("FANOUT_REDIS_CHANNEL", "kitchen:fanout")
}

func IsProduction() bool {
	return strings.EqualFold(envString("GO_ENV", ""), "production")
}
