package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitnav/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set and in
// tests. It keeps the Postgres semantics: one row per key, one audit record
// per mutation, mutations applied atomically under the lock.
type Memory struct {
	mu          sync.Mutex
	overrides   map[overrideKey]int // key -> order
	audit       []model.AuditRecord
	subs        map[string]model.Subscription
	subOrder    []string
	deliveries  map[string]*WebhookDelivery
	deliveryIDs []string
}

type overrideKey struct {
	vendor string
	day    model.Weekday
	client string
}

func NewMemory() *Memory {
	return &Memory{
		overrides:  map[overrideKey]int{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*WebhookDelivery{},
	}
}

func (m *Memory) Overrides(ctx context.Context, vendor string) (map[model.Weekday][]model.OverrideEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.Weekday][]model.OverrideEntry{}
	for k, order := range m.overrides {
		if k.vendor != vendor {
			continue
		}
		out[k.day] = append(out[k.day], model.OverrideEntry{Vendor: k.vendor, Day: k.day, Client: k.client, Order: order})
	}
	for day := range out {
		sortEntries(out[day])
	}
	return out, nil
}

func (m *Memory) AllOverrides(ctx context.Context) ([]model.OverrideEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OverrideEntry, 0, len(m.overrides))
	for k, order := range m.overrides {
		out = append(out, model.OverrideEntry{Vendor: k.vendor, Day: k.day, Client: k.client, Order: order})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vendor != out[j].Vendor {
			return out[i].Vendor < out[j].Vendor
		}
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Client < out[j].Client
	})
	return out, nil
}

func sortEntries(entries []model.OverrideEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].Client < entries[j].Client
	})
}

func (m *Memory) SetPosition(ctx context.Context, vendor string, day model.Weekday, client string, order int) (model.AuditRecord, error) {
	if order < model.BlockOrder {
		return model.AuditRecord{}, ErrInvalidOrder
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := overrideKey{vendor: vendor, day: day, client: client}
	var prev *int
	if p, ok := m.overrides[k]; ok {
		prev = intPtr(p)
	}
	m.overrides[k] = order
	rec := newAudit(vendor, client, changeFor(prev, order), dayPtr(day), nil, prev, intPtr(order), "")
	m.audit = append(m.audit, rec)
	return rec, nil
}

func (m *Memory) RemoveOverride(ctx context.Context, vendor string, day model.Weekday, client string) (model.AuditRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := overrideKey{vendor: vendor, day: day, client: client}
	p, ok := m.overrides[k]
	if !ok {
		return model.AuditRecord{}, false, nil
	}
	delete(m.overrides, k)
	details := "block removed; natural assignment restored"
	if p != model.BlockOrder {
		details = "placement removed; natural assignment restored"
	}
	rec := newAudit(vendor, client, model.ChangeUnblock, dayPtr(day), nil, intPtr(p), nil, details)
	m.audit = append(m.audit, rec)
	return rec, true, nil
}

func (m *Memory) MoveClient(ctx context.Context, vendor, client string, fromDay, toDay model.Weekday, newOrder int) (model.AuditRecord, error) {
	if newOrder < 0 {
		return model.AuditRecord{}, ErrInvalidOrder
	}
	if fromDay == toDay {
		return model.AuditRecord{}, fmt.Errorf("move: origin and destination day must differ")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	from := overrideKey{vendor: vendor, day: fromDay, client: client}
	to := overrideKey{vendor: vendor, day: toDay, client: client}
	var prev *int
	if p, ok := m.overrides[from]; ok {
		prev = intPtr(p)
	}
	m.overrides[from] = model.BlockOrder
	m.overrides[to] = newOrder
	rec := newAudit(vendor, client, model.ChangeMove, dayPtr(fromDay), dayPtr(toDay), prev, intPtr(newOrder),
		fmt.Sprintf("moved from %s to %s", fromDay, toDay))
	m.audit = append(m.audit, rec)
	return rec, nil
}

func (m *Memory) AuditRecent(ctx context.Context, vendor string, limit int) ([]model.AuditRecord, error) {
	return m.auditFiltered(func(r model.AuditRecord) bool { return r.Vendor == vendor }, limit), nil
}

func (m *Memory) AuditForClient(ctx context.Context, client string, limit int) ([]model.AuditRecord, error) {
	return m.auditFiltered(func(r model.AuditRecord) bool { return r.Client == client }, limit), nil
}

func (m *Memory) auditFiltered(match func(model.AuditRecord) bool, limit int) []model.AuditRecord {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AuditRecord{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if match(m.audit[i]) {
			out = append(out, m.audit[i])
		}
	}
	return out
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[s.ID] = s
	m.subOrder = append(m.subOrder, s.ID)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subOrder {
		if s, ok := m.subs[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

func (m *Memory) SubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subOrder {
		s, ok := m.subs[id]
		if !ok {
			continue
		}
		for _, ev := range s.Events {
			if ev == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &WebhookDelivery{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
		NextAttemptAt:  time.Now(),
	}
	m.deliveries[d.ID] = d
	m.deliveryIDs = append(m.deliveryIDs, d.ID)
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	now := time.Now()
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil || (d.Status != "pending" && d.Status != "retry") || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *d)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	if success {
		d.Status = "delivered"
		return nil
	}
	d.Attempts++
	d.Status = "retry"
	d.LastError = lastError
	d.NextAttemptAt = nextAttemptAt
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	for i := len(m.deliveryIDs) - 1; i >= 0 && len(out) < limit; i-- {
		if d := m.deliveries[m.deliveryIDs[i]]; d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}
