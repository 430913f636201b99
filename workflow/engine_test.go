package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/payment"
	"github.com/mmdatafocus/kitchen_backend/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu          sync.Mutex
	seq         int
	intents     map[string]*payment.Intent
	requests    []payment.IntentRequest
	createErr   error
	retrieveErr error
	retrieves   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payment.Intent{}}
}

func (g *fakeGateway) Name() string { return "STRIPE" }

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	intent := &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payment.StatusRequiresPaymentMethod,
		Amount:       req.AmountMinor,
		Currency:     req.Currency,
	}
	g.intents[id] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieves++
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such intent")
	}
	copied := *intent
	return &copied, nil
}

func (g *fakeGateway) settle(id string, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = status
}

type published struct {
	Groups  []string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, groups []string, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Groups: groups, Event: event, Payload: payload})
}

func (p *recordingPublisher) take() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type fixture struct {
	db      *gorm.DB
	engine  *OrderEngine
	gateway *fakeGateway
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	gateway := newFakeGateway()
	events := &recordingPublisher{}
	engine := &OrderEngine{
		DB:          db,
		Payments:    gateway,
		Fanout:      events,
		Currency:    "usd",
		MaxAttempts: 3,
	}
	return &fixture{db: db, engine: engine, gateway: gateway, events: events}
}

func orderInput(method models.PaymentMethod, userId *int, lines ...models.NewOrderItem) *models.NewOrder {
	return &models.NewOrder{
		UserId:          userId,
		CustomerName:    "Jane Doe",
		CustomerPhone:   "0412345678",
		CustomerAddress: "12 Harbour Street",
		PaymentMethod:   method,
		Items:           lines,
	}
}

func line(productId, qty int) models.NewOrderItem {
	return models.NewOrderItem{ProductId: productId, Quantity: qty}
}

func (f *fixture) createGatewayOrder(t *testing.T, userId *int, lines ...models.NewOrderItem) *CreateOrderResult {
	t.Helper()
	res, err := f.engine.CreateOrder(context.Background(), orderInput("STRIPE", userId, lines...))
	require.NoError(t, err)
	return res
}

func (f *fixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

var staffRooms = []string{fanout.AdminRoom, fanout.StaffRoom}
