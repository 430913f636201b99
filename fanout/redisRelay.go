package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type relayEnvelope struct {
	Origin string   `json:"origin"`
	Groups []string `json:"groups"`
	Event  Event    `json:"event"`
}

// RedisRelay shares published events between service instances over a Redis pub/sub channel.
// Each instance delivers its own publishes locally and ignores their echo.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceId string
	router     *Router
	logger     *logrus.Logger
	subscribed chan struct{}
	subOnce    sync.Once
}

func NewRedisRelay(client *redis.Client, channel string, router *Router, logger *logrus.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceId: uuid.NewString(),
		router:     router,
		logger:     logger,
		subscribed: make(chan struct{}),
	}
}

func (b *RedisRelay) InstanceID() string {
	return b.instanceId
}

// Subscribed is closed once Run holds an active subscription.
func (b *RedisRelay) Subscribed() <-chan struct{} {
	return b.subscribed
}

func (b *RedisRelay) Relay(ctx context.Context, groups []string, ev Event) error {
	data, err := json.Marshal(relayEnvelope{Origin: b.instanceId, Groups: groups, Event: ev})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run consumes the channel until ctx is cancelled. It may be called again to resubscribe.
func (b *RedisRelay) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.subOnce.Do(func() { close(b.subscribed) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis relay subscription closed")
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				if b.logger != nil {
					b.logger.WithFields(logrus.Fields{"field": "fanout", "channel": b.channel}).Warn("invalid relay message: " + err.Error())
				}
				continue
			}
			if env.Origin == b.instanceId {
				continue
			}
			b.router.DeliverLocal(env.Groups, env.Event)
		}
	}
}
