package api

import (
	"context"
	"testing"

	"visitnav/internal/cache"
	"visitnav/internal/model"
	"visitnav/internal/store"
)

// cancelAwareStore surfaces context cancellation from the wholesale scan the
// way the Postgres store does.
type cancelAwareStore struct{ store.Store }

func (c cancelAwareStore) AllOverrides(ctx context.Context) ([]model.OverrideEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.AllOverrides(ctx)
}

func TestReloadAfterMutationSurvivesEditorDisconnect(t *testing.T) {
	mem := store.NewMemory()
	c := cache.New(cancelAwareStore{mem})
	s := &Server{Store: mem, Cache: c}

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := mem.SetPosition(ctx, "V1", model.Monday, "C1", 3); err != nil {
		t.Fatalf("place: %v", err)
	}
	cancel() // editor disconnects right after the commit

	if !s.reloadAfterMutation(ctx) {
		t.Fatalf("reload skipped on client disconnect")
	}
	entries := c.Entries("V1", model.Monday)
	if len(entries) != 1 || entries[0].Client != "C1" || entries[0].Order != 3 {
		t.Fatalf("snapshot missing committed mutation: %v", entries)
	}
}
