package store

import (
	"context"
	"errors"
	"time"

	"freightsched/internal/model"
)

// Store is the persistence interface used by the API server. Schedules and
// order batches are durable; scheduling run results are not persisted and
// live only in the server's run cache.
type Store interface {
	// Schedules
	SaveSchedule(ctx context.Context, tenantID, name string, flights []model.FlightRow) (string, error)
	GetScheduleFlights(ctx context.Context, tenantID, scheduleID string) ([]model.FlightRow, error)
	ListSchedules(ctx context.Context, tenantID string) ([]model.ScheduleInfo, error)

	// Order batches; row order is priority order and must survive a round trip.
	CreateOrderBatch(ctx context.Context, tenantID string, rows []model.OrderRow) (string, error)
	GetOrderBatch(ctx context.Context, tenantID, batchID string) ([]model.OrderRow, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one queued outbound notification.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
