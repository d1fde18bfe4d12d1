package store

import (
	"context"
	"errors"
	"time"

	"visitnav/internal/model"
)

// Store is the persistence interface used by the API server and the route
// cache. Every mutating call appends exactly one audit record inside the
// same transaction; a failed audit write rolls the whole mutation back.
type Store interface {
	// Overrides
	Overrides(ctx context.Context, vendor string) (map[model.Weekday][]model.OverrideEntry, error)
	AllOverrides(ctx context.Context) ([]model.OverrideEntry, error)
	SetPosition(ctx context.Context, vendor string, day model.Weekday, client string, order int) (model.AuditRecord, error)
	RemoveOverride(ctx context.Context, vendor string, day model.Weekday, client string) (rec model.AuditRecord, removed bool, err error)
	MoveClient(ctx context.Context, vendor, client string, fromDay, toDay model.Weekday, newOrder int) (model.AuditRecord, error)

	// Audit trail
	AuditRecent(ctx context.Context, vendor string, limit int) ([]model.AuditRecord, error)
	AuditForClient(ctx context.Context, client string, limit int) ([]model.AuditRecord, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string) error
	ListWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
}

// WebhookDelivery is one pending or finished webhook post.
type WebhookDelivery struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	EventType      string    `json:"eventType"`
	URL            string    `json:"url"`
	Secret         string    `json:"-"`
	Payload        []byte    `json:"-"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	NextAttemptAt  time.Time `json:"nextAttemptAt,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
}

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidOrder rejects writes with order < -1 before any I/O happens.
	ErrInvalidOrder = errors.New("invalid order: must be -1 (block) or >= 0")
	// ErrTimeout marks a durable-store call that exceeded its bound; the
	// mutation did not commit.
	ErrTimeout = errors.New("store operation timed out")
	// ErrDuplicateKey marks two persisted rows for one (vendor, weekday,
	// client) key, which the schema should make impossible.
	ErrDuplicateKey = errors.New("duplicate override rows for key")
)
