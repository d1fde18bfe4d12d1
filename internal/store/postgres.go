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

	"visitnav/internal/model"
)

// Postgres is the durable store: one route_overrides table with a primary
// key on (vendor, weekday, client) and an append-only route_audit table.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres opens and pings the database. Every store call runs under a
// bounded timeout; on timeout the mutation is reported failed and nothing
// commits.
func NewPostgres(dsn string, timeout time.Duration) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Postgres{db: db, timeout: timeout}, nil
}

// DB exposes the underlying handle so the schedule sources can share the
// connection pool.
func (p *Postgres) DB() *sql.DB { return p.db }

// Ping checks DB connectivity; used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies db/migrations/*.sql in name order (dev helper; files
// are written to be re-runnable).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (p *Postgres) Overrides(ctx context.Context, vendor string) (map[model.Weekday][]model.OverrideEntry, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT weekday, client, position FROM route_overrides
		WHERE vendor=$1 ORDER BY weekday, position, client`, vendor)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := map[model.Weekday][]model.OverrideEntry{}
	for rows.Next() {
		var dayKey, client string
		var order int
		if err := rows.Scan(&dayKey, &client, &order); err != nil {
			return nil, err
		}
		day, err := model.ParseWeekday(dayKey)
		if err != nil {
			return nil, err
		}
		out[day] = append(out[day], model.OverrideEntry{Vendor: vendor, Day: day, Client: client, Order: order})
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) AllOverrides(ctx context.Context) ([]model.OverrideEntry, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT vendor, weekday, client, position FROM route_overrides
		ORDER BY vendor, weekday, position, client`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.OverrideEntry
	for rows.Next() {
		var e model.OverrideEntry
		var dayKey string
		if err := rows.Scan(&e.Vendor, &dayKey, &e.Client, &e.Order); err != nil {
			return nil, err
		}
		day, err := model.ParseWeekday(dayKey)
		if err != nil {
			return nil, err
		}
		e.Day = day
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

// SetPosition upserts the override for the key as delete-then-insert inside
// one transaction. The primary key on the triple guarantees no duplicate
// rows even when two editors race on the same key; last write wins.
func (p *Postgres) SetPosition(ctx context.Context, vendor string, day model.Weekday, client string, order int) (model.AuditRecord, error) {
	if order < model.BlockOrder {
		return model.AuditRecord{}, ErrInvalidOrder
	}
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := selectPosition(ctx, tx, vendor, day, client)
	if err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM route_overrides WHERE vendor=$1 AND weekday=$2 AND client=$3`,
		vendor, day.Key(), client); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO route_overrides (vendor, weekday, client, position) VALUES ($1,$2,$3,$4)`,
		vendor, day.Key(), client, order); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	rec := newAudit(vendor, client, changeFor(prev, order), dayPtr(day), nil, prev, intPtr(order), "")
	if err := insertAudit(ctx, tx, rec); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	return rec, nil
}

// RemoveOverride deletes the key and restores the natural assignment.
// Deleting a missing key is a no-op and writes no audit record.
func (p *Postgres) RemoveOverride(ctx context.Context, vendor string, day model.Weekday, client string) (model.AuditRecord, bool, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AuditRecord{}, false, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := selectPosition(ctx, tx, vendor, day, client)
	if err != nil {
		return model.AuditRecord{}, false, mapErr(err)
	}
	if prev == nil {
		return model.AuditRecord{}, false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM route_overrides WHERE vendor=$1 AND weekday=$2 AND client=$3`,
		vendor, day.Key(), client); err != nil {
		return model.AuditRecord{}, false, mapErr(err)
	}
	details := "block removed; natural assignment restored"
	if *prev != model.BlockOrder {
		details = "placement removed; natural assignment restored"
	}
	rec := newAudit(vendor, client, model.ChangeUnblock, dayPtr(day), nil, prev, nil, details)
	if err := insertAudit(ctx, tx, rec); err != nil {
		return model.AuditRecord{}, false, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return model.AuditRecord{}, false, mapErr(err)
	}
	return rec, true, nil
}

// MoveClient blocks the origin day and places the destination day as one
// atomic unit: no reader ever observes the client absent from both days or
// present on both.
func (p *Postgres) MoveClient(ctx context.Context, vendor, client string, fromDay, toDay model.Weekday, newOrder int) (model.AuditRecord, error) {
	if newOrder < 0 {
		return model.AuditRecord{}, ErrInvalidOrder
	}
	if fromDay == toDay {
		return model.AuditRecord{}, fmt.Errorf("move: origin and destination day must differ")
	}
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := selectPosition(ctx, tx, vendor, fromDay, client)
	if err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	for _, step := range []struct {
		day   model.Weekday
		order int
	}{{fromDay, model.BlockOrder}, {toDay, newOrder}} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM route_overrides WHERE vendor=$1 AND weekday=$2 AND client=$3`,
			vendor, step.day.Key(), client); err != nil {
			return model.AuditRecord{}, mapErr(err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO route_overrides (vendor, weekday, client, position) VALUES ($1,$2,$3,$4)`,
			vendor, step.day.Key(), client, step.order); err != nil {
			return model.AuditRecord{}, mapErr(err)
		}
	}
	rec := newAudit(vendor, client, model.ChangeMove, dayPtr(fromDay), dayPtr(toDay), prev, intPtr(newOrder),
		fmt.Sprintf("moved from %s to %s", fromDay, toDay))
	if err := insertAudit(ctx, tx, rec); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return model.AuditRecord{}, mapErr(err)
	}
	return rec, nil
}

func selectPosition(ctx context.Context, tx *sql.Tx, vendor string, day model.Weekday, client string) (*int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT position FROM route_overrides WHERE vendor=$1 AND weekday=$2 AND client=$3`,
		vendor, day.Key(), client).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, rec model.AuditRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO route_audit
		(id, ts, vendor, client, change_type, origin_day, destination_day, prev_position, new_position, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.TS, rec.Vendor, rec.Client, string(rec.Change),
		dayKey(rec.OriginDay), dayKey(rec.DestinationDay), rec.PrevPosition, rec.NewPosition, nullIfEmpty(rec.Details))
	return err
}

func dayKey(d *model.Weekday) any {
	if d == nil {
		return nil
	}
	return d.Key()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (p *Postgres) AuditRecent(ctx context.Context, vendor string, limit int) ([]model.AuditRecord, error) {
	return p.auditQuery(ctx, `SELECT id, ts, vendor, client, change_type, origin_day, destination_day, prev_position, new_position, COALESCE(details,'')
		FROM route_audit WHERE vendor=$1 ORDER BY ts DESC, id DESC LIMIT $2`, vendor, limit)
}

func (p *Postgres) AuditForClient(ctx context.Context, client string, limit int) ([]model.AuditRecord, error) {
	return p.auditQuery(ctx, `SELECT id, ts, vendor, client, change_type, origin_day, destination_day, prev_position, new_position, COALESCE(details,'')
		FROM route_audit WHERE client=$1 ORDER BY ts DESC, id DESC LIMIT $2`, client, limit)
}

func (p *Postgres) auditQuery(ctx context.Context, q, key string, limit int) ([]model.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, q, key, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []model.AuditRecord{}
	for rows.Next() {
		var rec model.AuditRecord
		var change string
		var origin, dest sql.NullString
		var prev, next sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Vendor, &rec.Client, &change, &origin, &dest, &prev, &next, &rec.Details); err != nil {
			return nil, err
		}
		rec.Change = model.ChangeType(change)
		if origin.Valid {
			d, err := model.ParseWeekday(origin.String)
			if err != nil {
				return nil, err
			}
			rec.OriginDay = &d
		}
		if dest.Valid {
			d, err := model.ParseWeekday(dest.String)
			if err != nil {
				return nil, err
			}
			rec.DestinationDay = &d
		}
		if prev.Valid {
			rec.PrevPosition = intPtr(int(prev.Int64))
		}
		if next.Valid {
			rec.NewPosition = intPtr(int(next.Int64))
		}
		out = append(out, rec)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		id, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, mapErr(err)
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return mapErr(err)
}

func (p *Postgres) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE events @> $1::jsonb`,
		fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
		id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now() WHERE id=$1`, id)
		return mapErr(err)
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now() WHERE id=$1`,
		id, nullIfEmpty(lastError), nextAttemptAt)
	return mapErr(err)
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,'')
		FROM webhook_deliveries ORDER BY next_attempt_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, mapErr(rows.Err())
}
