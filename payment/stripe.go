package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// StripeGateway talks to the Stripe REST API with form-encoded requests.
type StripeGateway struct {
	client *resty.Client
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewStripeGateway(baseURL string, secretKey string) *StripeGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(secretKey, "").
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only reads are retried; a repeated create could open a second intent.
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &StripeGateway{client: client}
}

func (g *StripeGateway) Name() string {
	return "STRIPE"
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountMinor <= 0 {
		return nil, errors.New("intent amount must be positive")
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", req.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var intent Intent
	var apiErr stripeErrorEnvelope
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		SetResult(&intent).
		SetError(&apiErr).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	if resp.IsError() {
		return nil, stripeError("create intent", resp.StatusCode(), apiErr)
	}
	return &intent, nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentId string) (*Intent, error) {
	if intentId == "" {
		return nil, errors.New("intent id is required")
	}
	var intent Intent
	var apiErr stripeErrorEnvelope
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", intentId).
		SetResult(&intent).
		SetError(&apiErr).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve intent: %w", err)
	}
	if resp.IsError() {
		return nil, stripeError("retrieve intent", resp.StatusCode(), apiErr)
	}
	return &intent, nil
}

func stripeError(op string, status int, env stripeErrorEnvelope) error {
	msg := env.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("stripe %s: status %d: %s", op, status, msg)
}
