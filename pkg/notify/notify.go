package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Topic names the kind of notification
type Topic string

const (
	TopicAdmissionCreated    Topic = "admission.created"
	TopicAdmissionTransition Topic = "admission.transition"
	TopicTransferCreated     Topic = "transfer.created"
	TopicTransferTransition  Topic = "transfer.transition"
)

// Notification is a message for the email and push delivery workers
type Notification struct {
	ID             uuid.UUID         `json:"id"`
	Topic          Topic             `json:"topic"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	SchoolID       *uuid.UUID        `json:"school_id,omitempty"`
	Recipients     []uuid.UUID       `json:"recipients,omitempty"`
	Subject        string            `json:"subject"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Notifier hands notifications to a delivery channel
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

func prepare(n *Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
}

// DefaultChannel is the Redis pub/sub channel notifications are published to
const DefaultChannel = "campus:notifications"

// RedisNotifier publishes notifications as JSON on a Redis channel
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a publisher on channel, DefaultChannel when empty
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes n
func (r *RedisNotifier) Notify(ctx context.Context, n *Notification) error {
	prepare(n)
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Memory records notifications in memory
type Memory struct {
	mu   sync.Mutex
	sent []*Notification
}

// NewMemory creates an empty in-memory notifier
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Notify(_ context.Context, n *Notification) error {
	prepare(n)
	copied := *n
	m.mu.Lock()
	m.sent = append(m.sent, &copied)
	m.mu.Unlock()
	return nil
}

// Sent returns the recorded notifications in order
func (m *Memory) Sent() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// Nop discards every notification
type Nop struct{}

func (Nop) Notify(context.Context, *Notification) error { return nil }
