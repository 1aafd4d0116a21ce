// Package notify hands core events to the notification collaborator.
// Delivery is fire-and-forget: the core never waits for it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindMatchCreated    Kind = "match_created"
	KindMessageReceived Kind = "message_received"
)

// Event is addressed to a single user.
type Event struct {
	Kind           Kind      `json:"kind"`
	UserID         string    `json:"user_id"`
	OtherUserID    string    `json:"other_user_id,omitempty"`
	MatchID        string    `json:"match_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	At             time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.With("component", "notify"),
	}
}

// Notify publishes in the background. Failures are logged and dropped.
func (p *RedisPublisher) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encode event failed", "kind", e.Kind, "err", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// detached from the request: the caller may already have returned
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		if err := p.client.Publish(pubCtx, p.channel, payload).Err(); err != nil {
			p.logger.Warn("publish event failed", "kind", e.Kind, "user", e.UserID, "err", err)
		}
	}()
}

// Wait blocks until in-flight publishes finish. Called on shutdown.
func (p *RedisPublisher) Wait() {
	p.wg.Wait()
}
