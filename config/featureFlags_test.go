package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureFlagDefaults(t *testing.T) {
	for _, key := range []string{"RESTOCK_ON_CANCEL", "ORDER_EVENTS_TOPIC", "PAYMENT_CURRENCY", "PAYMENT_GATEWAY", "PERSISTENCE_RETRY_LIMIT", "GO_ENV"} {
		t.Setenv(key, "")
	}
	assert.False(t, RestockOnCancel())
	assert.Equal(t, "", OrderEventsTopic())
	assert.Equal(t, "usd", PaymentCurrency())
	assert.Equal(t, "STRIPE", PaymentGatewayName())
	assert.Equal(t, 3, PersistenceRetryLimit())
	assert.Equal(t, "kitchen:fanout", FanoutRedisChannel())
	assert.False(t, IsProduction())
}

func TestFeatureFlagOverrides(t *testing.T) {
	t.Setenv("RESTOCK_ON_CANCEL", "TRUE")
	t.Setenv("PAYMENT_CURRENCY", "AUD")
	t.Setenv("PERSISTENCE_RETRY_LIMIT", "0")
	t.Setenv("GO_ENV", "Production")

	assert.True(t, RestockOnCancel())
	assert.Equal(t, "aud", PaymentCurrency())
	assert.Equal(t, 1, PersistenceRetryLimit())
	assert.True(t, IsProduction())
}
