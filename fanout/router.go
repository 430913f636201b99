// Package fanout routes order state changes to live subscriber groups.
//
// Delivery is best-effort and at-most-once per connected session. Events published
// by one call sequence reach each subscriber in the order they were published,
// since every subscriber has a single FIFO send queue.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	AdminRoom = "admin_room"
	StaffRoom = "staff_room"
)

func UserRoom(userId int) string {
	return fmt.Sprintf("user_%d", userId)
}

func OrderRoom(orderId int) string {
	return fmt.Sprintf("order_%d", orderId)
}

const (
	EventNewOrder          = "new_order"
	EventOrderStatusUpdate = "order_status_update"
	EventOrderUpdated      = "order_updated"
	EventNotification      = "notification"
)

type NotificationType string

const (
	NotificationOrderPaid  NotificationType = "ORDER_PAID"
	NotificationOrderReady NotificationType = "ORDER_READY"
	NotificationNewOrder   NotificationType = "NEW_ORDER"
)

type Notification struct {
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`
}

// Event is the wire frame sent to subscribers.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Subscriber is one live session. Send must not block; it reports false when
// the event was dropped (queue full or session closed).
type Subscriber interface {
	ID() string
	Send(ev Event) bool
}

// Relay forwards published events to other instances of the service.
type Relay interface {
	Relay(ctx context.Context, groups []string, ev Event) error
}

type Router struct {
	mu      sync.RWMutex
	groups  map[string]map[string]Subscriber
	members map[string]map[string]struct{}
	relay   Relay
	logger  *logrus.Logger
}

func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		groups:  make(map[string]map[string]Subscriber),
		members: make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// SetRelay installs the cross-instance relay. Call before serving traffic.
func (r *Router) SetRelay(relay Relay) {
	r.mu.Lock()
	r.relay = relay
	r.mu.Unlock()
}

// Join adds sub to group. Joining a group twice is a no-op; the result reports
// whether membership changed.
func (r *Router) Join(sub Subscriber, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.groups[group]
	if !ok {
		subs = make(map[string]Subscriber)
		r.groups[group] = subs
	}
	if _, exists := subs[sub.ID()]; exists {
		return false
	}
	subs[sub.ID()] = sub

	joined, ok := r.members[sub.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.members[sub.ID()] = joined
	}
	joined[group] = struct{}{}
	return true
}

func (r *Router) Leave(sub Subscriber, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sub.ID(), group)
}

// Remove drops sub from every group, e.g. when its connection closes.
func (r *Router) Remove(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for group := range r.members[sub.ID()] {
		r.leaveLocked(sub.ID(), group)
	}
	delete(r.members, sub.ID())
}

func (r *Router) leaveLocked(subId string, group string) {
	if subs, ok := r.groups[group]; ok {
		delete(subs, subId)
		if len(subs) == 0 {
			delete(r.groups, group)
		}
	}
	if joined, ok := r.members[subId]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(r.members, subId)
		}
	}
}

// Members returns the number of subscribers currently in group.
func (r *Router) Members(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Groups returns the groups sub currently belongs to.
func (r *Router) Groups(sub Subscriber) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members[sub.ID()]))
	for g := range r.members[sub.ID()] {
		out = append(out, g)
	}
	return out
}

// Publish delivers payload to every local subscriber of groups and hands it to the
// relay for other instances. Failures are logged, never returned.
func (r *Router) Publish(ctx context.Context, groups []string, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.warn(event, "", "failed to encode event payload: "+err.Error())
		return
	}
	ev := Event{Name: event, Payload: data}
	r.DeliverLocal(groups, ev)

	r.mu.RLock()
	relay := r.relay
	r.mu.RUnlock()
	if relay != nil {
		if err := relay.Relay(ctx, groups, ev); err != nil {
			r.warn(event, "", "failed to relay event: "+err.Error())
		}
	}
}

// DeliverLocal sends ev once to each distinct subscriber in groups and returns how many accepted it.
// A subscriber in several of the target groups still receives the event once.
func (r *Router) DeliverLocal(groups []string, ev Event) int {
	r.mu.RLock()
	seen := make(map[string]struct{})
	var targets []Subscriber
	for _, g := range groups {
		for id, sub := range r.groups[g] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, sub)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.Send(ev) {
			delivered++
			continue
		}
		r.warn(ev.Name, sub.ID(), "dropped event for slow or closed subscriber")
	}
	return delivered
}

func (r *Router) warn(event string, subscriber string, msg string) {
	if r.logger == nil {
		return
	}
	fields := logrus.Fields{
		"field": "fanout",
		"event": event,
	}
	if subscriber != "" {
		fields["subscriber"] = subscriber
	}
	r.logger.WithFields(fields).Warn(msg)
}
