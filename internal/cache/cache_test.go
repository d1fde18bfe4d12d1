package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"visitnav/internal/model"
	"visitnav/internal/store"
)

// failingStore wraps Memory and fails AllOverrides on demand.
type failingStore struct {
	*store.Memory
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *failingStore) AllOverrides(ctx context.Context) ([]model.OverrideEntry, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return f.Memory.AllOverrides(ctx)
}

func TestReloadBuildsOrderedSnapshot(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "C2", 10)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "C1", 10)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "C3", model.BlockOrder)

	c := New(mem)
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries := c.Entries("V1", model.Monday)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	// block first at -1, then equal orders broken by client id
	if entries[0].Client != "C3" || entries[1].Client != "C1" || entries[2].Client != "C2" {
		t.Fatalf("order = [%s %s %s], want [C3 C1 C2]", entries[0].Client, entries[1].Client, entries[2].Client)
	}
}

func TestFailedReloadRetainsPreviousSnapshot(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	ctx := context.Background()
	_, _ = fs.SetPosition(ctx, "V1", model.Monday, "C1", 1)

	c := New(fs)
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	before := c.Snapshot()

	fs.setFail(true)
	err := c.Reload(ctx)
	if !errors.Is(err, ErrReloadFailed) {
		t.Fatalf("got %v, want ErrReloadFailed", err)
	}
	if c.Snapshot() != before {
		t.Fatalf("snapshot replaced after failed reload")
	}
	if got := c.Entries("V1", model.Monday); len(got) != 1 || got[0].Client != "C1" {
		t.Fatalf("reads degraded after failed reload: %v", got)
	}
}

func TestReloadSwapsWholeSnapshot(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "C1", 1)
	c := New(mem)
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	_, _, _ = mem.RemoveOverride(ctx, "V1", model.Monday, "C1")
	_, _ = mem.SetPosition(ctx, "V1", model.Tuesday, "C2", 2)

	// until reload, the old snapshot stays visible in full
	if got := c.Entries("V1", model.Monday); len(got) != 1 {
		t.Fatalf("stale snapshot changed without reload: %v", got)
	}
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := c.Entries("V1", model.Monday); len(got) != 0 {
		t.Fatalf("monday after reload = %v, want empty", got)
	}
	if got := c.Entries("V1", model.Tuesday); len(got) != 1 || got[0].Client != "C2" {
		t.Fatalf("tuesday after reload = %v, want [C2]", got)
	}
}

func TestConcurrentReadersDuringReload(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, _ = mem.SetPosition(ctx, "V1", model.Monday, string(rune('A'+i)), i)
	}
	c := New(mem)
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				entries := c.Entries("V1", model.Monday)
				// a reader sees a complete snapshot or nothing, never a
				// partially built one
				if len(entries) != 0 && len(entries) != 20 {
					t.Errorf("partial snapshot observed: %d entries", len(entries))
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if err := c.Reload(ctx); err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}
