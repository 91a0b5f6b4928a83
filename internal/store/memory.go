package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"freightsched/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is configured.
type Memory struct {
	mu         sync.Mutex
	schedules  map[string][]model.FlightRow // scheduleId -> ordered flights
	schedNames map[string]string
	schedTen   map[string][]string // tenant -> schedule ids, insertion order
	batches    map[string][]model.OrderRow
	batchTen   map[string]string // batchId -> tenant
	subs       map[string][]model.Subscription
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
}

// memDelivery augments WebhookDelivery with retry scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func NewMemory() *Memory {
	return &Memory{
		schedules:  map[string][]model.FlightRow{},
		schedNames: map[string]string{},
		schedTen:   map[string][]string{},
		batches:    map[string][]model.OrderRow{},
		batchTen:   map[string]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) SaveSchedule(ctx context.Context, tenantID, name string, flights []model.FlightRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	rows := make([]model.FlightRow, len(flights))
	copy(rows, flights)
	m.schedules[tenantKey(tenantID, id)] = rows
	m.schedNames[tenantKey(tenantID, id)] = name
	m.schedTen[tenantID] = append(m.schedTen[tenantID], id)
	return id, nil
}

func (m *Memory) GetScheduleFlights(ctx context.Context, tenantID, scheduleID string) ([]model.FlightRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.schedules[tenantKey(tenantID, scheduleID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.FlightRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *Memory) ListSchedules(ctx context.Context, tenantID string) ([]model.ScheduleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ScheduleInfo{}
	for _, id := range m.schedTen[tenantID] {
		rows := m.schedules[tenantKey(tenantID, id)]
		out = append(out, model.ScheduleInfo{
			ID:      id,
			Name:    m.schedNames[tenantKey(tenantID, id)],
			Flights: len(rows),
			Days:    countDays(rows),
		})
	}
	return out, nil
}

func (m *Memory) CreateOrderBatch(ctx context.Context, tenantID string, rows []model.OrderRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	cp := make([]model.OrderRow, len(rows))
	copy(cp, rows)
	m.batches[id] = cp
	m.batchTen[id] = tenantID
	return id, nil
}

func (m *Memory) GetOrderBatch(ctx context.Context, tenantID, batchID string) ([]model.OrderRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.batches[batchID]
	if !ok || m.batchTen[batchID] != tenantID {
		return nil, ErrNotFound
	}
	out := make([]model.OrderRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, ev := range s.Events {
			if ev == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, len(m.subs[tenantID]))
	copy(out, m.subs[tenantID])
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d == nil || (d.Status != "pending" && d.Status != "retry") || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		return nil
	}
	d.Status = "retry"
	d.Attempts++
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func tenantKey(tenantID, id string) string { return tenantID + "/" + id }

func countDays(rows []model.FlightRow) int {
	seen := map[int]struct{}{}
	for _, r := range rows {
		seen[r.Day] = struct{}{}
	}
	return len(seen)
}
