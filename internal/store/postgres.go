package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"freightsched/internal/model"
)

// Postgres persists schedules, order batches, subscriptions and the webhook
// queue. Flight and order row order is kept explicit via a position column.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in name order. Dev helper; a
// missing directory is not an error.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		sqlText, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlText)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) SaveSchedule(ctx context.Context, tenantID, name string, flights []model.FlightRow) (string, error) {
	id := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil { return "", err }
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO schedules (id, tenant_id, name) VALUES ($1,$2,$3)`, id, tenantID, nullIfEmpty(name)); err != nil {
		return "", err
	}
	for pos, f := range flights {
		_, err := tx.ExecContext(ctx, `INSERT INTO schedule_flights (schedule_id, position, flight_number, departure, destination, day, capacity) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, pos, f.Number, f.Departure, f.Destination, f.Day, f.Capacity)
		if err != nil { return "", err }
	}
	if err := tx.Commit(); err != nil { return "", err }
	return id, nil
}

func (p *Postgres) GetScheduleFlights(ctx context.Context, tenantID, scheduleID string) ([]model.FlightRow, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT true FROM schedules WHERE tenant_id=$1 AND id=$2`, tenantID, scheduleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT flight_number, departure, destination, day, capacity FROM schedule_flights WHERE schedule_id=$1 ORDER BY position`, scheduleID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.FlightRow{}
	for rows.Next() {
		var f model.FlightRow
		if err := rows.Scan(&f.Number, &f.Departure, &f.Destination, &f.Day, &f.Capacity); err != nil { return nil, err }
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSchedules(ctx context.Context, tenantID string) ([]model.ScheduleInfo, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT s.id::text, COALESCE(s.name,''),
		(SELECT count(*) FROM schedule_flights f WHERE f.schedule_id=s.id),
		(SELECT count(DISTINCT f.day) FROM schedule_flights f WHERE f.schedule_id=s.id)
		FROM schedules s WHERE s.tenant_id=$1 ORDER BY s.created_at`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.ScheduleInfo{}
	for rows.Next() {
		var si model.ScheduleInfo
		if err := rows.Scan(&si.ID, &si.Name, &si.Flights, &si.Days); err != nil { return nil, err }
		out = append(out, si)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateOrderBatch(ctx context.Context, tenantID string, orderRows []model.OrderRow) (string, error) {
	id := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil { return "", err }
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO order_batches (id, tenant_id) VALUES ($1,$2)`, id, tenantID); err != nil {
		return "", err
	}
	for pos, o := range orderRows {
		_, err := tx.ExecContext(ctx, `INSERT INTO batch_orders (batch_id, position, order_id, origin, destination) VALUES ($1,$2,$3,$4,$5)`,
			id, pos, o.ID, o.Origin, o.Destination)
		if err != nil { return "", err }
	}
	if err := tx.Commit(); err != nil { return "", err }
	return id, nil
}

func (p *Postgres) GetOrderBatch(ctx context.Context, tenantID, batchID string) ([]model.OrderRow, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT true FROM order_batches WHERE tenant_id=$1 AND id=$2`, tenantID, batchID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT order_id, origin, destination FROM batch_orders WHERE batch_id=$1 ORDER BY position`, batchID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.OrderRow{}
	for rows.Next() {
		var o model.OrderRow
		if err := rows.Scan(&o.ID, &o.Origin, &o.Destination); err != nil { return nil, err }
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil { return model.Subscription{}, err }
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	want, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(want))
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil { return err }
	if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil { return "", err }
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 { limit = 50 }
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, next_attempt_at=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" { return nil }
	return s
}
