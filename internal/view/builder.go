// Package view builds the natural and custom day views by merging the
// resolver output with the cached overrides. Purely read-side.
package view

import (
	"context"

	"visitnav/internal/cache"
	"visitnav/internal/model"
	"visitnav/internal/schedule"
)

type Builder struct {
	Resolver *schedule.Resolver
	Cache    *cache.Cache
}

func NewBuilder(r *schedule.Resolver, c *cache.Cache) *Builder {
	return &Builder{Resolver: r, Cache: c}
}

// NaturalView returns the resolver's true set for the day, ordered by
// client id. Blocks are annotated informationally; overrides never change
// the natural membership.
func (b *Builder) NaturalView(ctx context.Context, vendor string, day model.Weekday) ([]model.ViewEntry, error) {
	clients, err := b.Resolver.ClientsFor(ctx, vendor, day)
	if err != nil {
		return nil, err
	}
	blocked := map[string]bool{}
	for _, e := range b.Cache.Entries(vendor, day) {
		if e.Blocked() {
			blocked[e.Client] = true
		}
	}
	out := make([]model.ViewEntry, 0, len(clients))
	for _, c := range clients {
		out = append(out, model.ViewEntry{Client: c, Blocked: blocked[c], Source: model.SourceNatural})
	}
	return out, nil
}

// CustomView returns the curated list for the day: explicitly placed
// clients first, ascending by order with client-id tiebreak, then the
// remaining natural clients in id order. Blocked clients are excluded
// entirely.
func (b *Builder) CustomView(ctx context.Context, vendor string, day model.Weekday) ([]model.ViewEntry, error) {
	clients, err := b.Resolver.ClientsFor(ctx, vendor, day)
	if err != nil {
		return nil, err
	}
	handled := map[string]bool{} // placed or blocked
	out := []model.ViewEntry{}
	// snapshot entries are already ordered by (position, client); blocks
	// sort first with position -1 and are skipped
	for _, e := range b.Cache.Entries(vendor, day) {
		handled[e.Client] = true
		if e.Blocked() {
			continue
		}
		o := e.Order
		out = append(out, model.ViewEntry{Client: e.Client, Order: &o, Source: model.SourceOverride})
	}
	for _, c := range clients {
		if handled[c] {
			continue
		}
		out = append(out, model.ViewEntry{Client: c, Source: model.SourceNatural})
	}
	return out, nil
}
