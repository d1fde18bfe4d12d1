// Package cache holds the process-wide snapshot of override rows. The
// snapshot is immutable and replaced wholesale on reload, never patched
// field-by-field, so concurrent readers always observe a complete state.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"visitnav/internal/metrics"
	"visitnav/internal/model"
	"visitnav/internal/store"
)

// ErrReloadFailed marks a reload that could not complete; the previous
// snapshot stays authoritative and read paths are unaffected.
var ErrReloadFailed = errors.New("route cache reload failed")

// Snapshot is one fully built view of every override row, grouped by vendor
// and weekday and ordered by (position, client).
type Snapshot struct {
	byVendor map[string]map[model.Weekday][]model.OverrideEntry
	loadedAt time.Time
}

// Entries returns the overrides for a vendor/day. The returned slice is
// shared immutable snapshot data; callers must not mutate it.
func (s *Snapshot) Entries(vendor string, day model.Weekday) []model.OverrideEntry {
	return s.byVendor[vendor][day]
}

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Cache owns the current snapshot. Reads are pure in-memory lookups and
// never block on I/O; Reload swaps the snapshot reference under the lock.
type Cache struct {
	store store.Store

	mu   sync.RWMutex
	snap *Snapshot
}

func New(st store.Store) *Cache {
	return &Cache{
		store: st,
		snap:  &Snapshot{byVendor: map[string]map[model.Weekday][]model.OverrideEntry{}},
	}
}

// Snapshot returns the last fully built snapshot.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Entries returns the overrides for a vendor/day from the current snapshot.
func (c *Cache) Entries(vendor string, day model.Weekday) []model.OverrideEntry {
	return c.Snapshot().Entries(vendor, day)
}

// Reload re-reads the override store wholesale and atomically swaps the
// snapshot. On failure the previous snapshot is retained and the error is
// reported to the caller only; readers keep serving the old state.
func (c *Cache) Reload(ctx context.Context) error {
	entries, err := c.store.AllOverrides(ctx)
	if err != nil {
		metrics.CacheReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}
	snap := build(entries)
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	metrics.CacheReloads.WithLabelValues("ok").Inc()
	metrics.CacheEntries.Set(float64(len(entries)))
	return nil
}

func build(entries []model.OverrideEntry) *Snapshot {
	snap := &Snapshot{
		byVendor: map[string]map[model.Weekday][]model.OverrideEntry{},
		loadedAt: time.Now().UTC(),
	}
	type key struct {
		vendor string
		day    model.Weekday
		client string
	}
	seen := map[key]int{} // key -> index within its day slice
	for _, e := range entries {
		days := snap.byVendor[e.Vendor]
		if days == nil {
			days = map[model.Weekday][]model.OverrideEntry{}
			snap.byVendor[e.Vendor] = days
		}
		k := key{vendor: e.Vendor, day: e.Day, client: e.Client}
		if i, dup := seen[k]; dup {
			// The schema should make this impossible; repair by keeping
			// the last row scanned and flag the protocol violation.
			log.Printf("cache: %v: vendor=%s day=%s client=%s", store.ErrDuplicateKey, e.Vendor, e.Day, e.Client)
			days[e.Day][i] = e
			continue
		}
		days[e.Day] = append(days[e.Day], e)
		seen[k] = len(days[e.Day]) - 1
	}
	for _, days := range snap.byVendor {
		for day := range days {
			sort.Slice(days[day], func(i, j int) bool {
				if days[day][i].Order != days[day][j].Order {
					return days[day][i].Order < days[day][j].Order
				}
				return days[day][i].Client < days[day][j].Client
			})
		}
	}
	return snap
}
