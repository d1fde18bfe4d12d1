package view

import (
	"context"
	"fmt"
	"testing"

	"visitnav/internal/cache"
	"visitnav/internal/model"
	"visitnav/internal/schedule"
	"visitnav/internal/store"
)

func newFixture(t *testing.T) (*Builder, *schedule.MemorySource, *store.Memory, *cache.Cache) {
	t.Helper()
	master := schedule.NewMemorySource()
	history := schedule.NewMemorySource()
	mem := store.NewMemory()
	c := cache.New(mem)
	b := NewBuilder(schedule.NewResolver(master, history), c)
	return b, master, mem, c
}

func reload(t *testing.T, c *cache.Cache) {
	t.Helper()
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func mondays(n int) []schedule.Assignment {
	out := make([]schedule.Assignment, n)
	for i := range out {
		a := schedule.Assignment{Client: fmt.Sprintf("A%03d", i+1)}
		a.Days[model.Monday] = true
		out[i] = a
	}
	return out
}

func TestCustomViewInterleavesPlacedAndNatural(t *testing.T) {
	b, master, mem, c := newFixture(t)
	ctx := context.Background()

	// 140 natural Monday clients; A001 placed at 10, A002 blocked
	master.Put("V1", mondays(140)...)
	if _, err := mem.SetPosition(ctx, "V1", model.Monday, "A001", 10); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := mem.SetPosition(ctx, "V1", model.Monday, "A002", model.BlockOrder); err != nil {
		t.Fatalf("block: %v", err)
	}
	reload(t, c)

	got, err := b.CustomView(ctx, "V1", model.Monday)
	if err != nil {
		t.Fatalf("custom view: %v", err)
	}
	// A001 leads with its explicit order, A002 is gone, the other 138
	// natural clients follow in id order
	if len(got) != 139 {
		t.Fatalf("entries = %d, want 139", len(got))
	}
	if got[0].Client != "A001" || got[0].Source != model.SourceOverride || got[0].Order == nil || *got[0].Order != 10 {
		t.Fatalf("first entry = %+v, want placed A001 at 10", got[0])
	}
	for i, e := range got[1:] {
		if e.Client == "A002" {
			t.Fatalf("blocked client present at %d", i+1)
		}
		if e.Source != model.SourceNatural || e.Order != nil {
			t.Fatalf("natural tail entry = %+v", e)
		}
	}
	if got[1].Client != "A003" || got[len(got)-1].Client != "A140" {
		t.Fatalf("natural tail bounds = %s..%s, want A003..A140", got[1].Client, got[len(got)-1].Client)
	}
}

func TestCustomViewOrdersByPositionThenClient(t *testing.T) {
	b, master, mem, c := newFixture(t)
	ctx := context.Background()

	master.Put("V1", mondays(3)...)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "A003", 5)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "A001", 5)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "A002", 1)
	reload(t, c)

	got, err := b.CustomView(ctx, "V1", model.Monday)
	if err != nil {
		t.Fatalf("custom view: %v", err)
	}
	var order []string
	for _, e := range got {
		order = append(order, e.Client)
	}
	// 1 first, then the tied 5s broken by client id
	want := []string{"A002", "A001", "A003"}
	if len(order) != 3 {
		t.Fatalf("entries = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("entries = %v, want %v", order, want)
		}
	}
}

func TestCustomViewIncludesPlacedClientOutsideNaturalSet(t *testing.T) {
	b, master, mem, c := newFixture(t)
	ctx := context.Background()

	master.Put("V1", mondays(2)...)
	// Z999 has no natural Monday assignment but is explicitly placed
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "Z999", 0)
	reload(t, c)

	got, err := b.CustomView(ctx, "V1", model.Monday)
	if err != nil {
		t.Fatalf("custom view: %v", err)
	}
	if len(got) != 3 || got[0].Client != "Z999" {
		t.Fatalf("got %+v, want Z999 first of 3", got)
	}
}

func TestNaturalViewAnnotatesBlocksWithoutRemoving(t *testing.T) {
	b, master, mem, c := newFixture(t)
	ctx := context.Background()

	master.Put("V1", mondays(3)...)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "A002", model.BlockOrder)
	_, _ = mem.SetPosition(ctx, "V1", model.Monday, "A003", 0)
	reload(t, c)

	got, err := b.NaturalView(ctx, "V1", model.Monday)
	if err != nil {
		t.Fatalf("natural view: %v", err)
	}
	// membership untouched: all three clients, in id order
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	for i, want := range []string{"A001", "A002", "A003"} {
		if got[i].Client != want {
			t.Fatalf("entry %d = %s, want %s", i, got[i].Client, want)
		}
	}
	if got[0].Blocked || !got[1].Blocked || got[2].Blocked {
		t.Fatalf("blocked flags = [%v %v %v], want [false true false]", got[0].Blocked, got[1].Blocked, got[2].Blocked)
	}
}

func TestViewsSurfaceSourceFailure(t *testing.T) {
	b, master, _, c := newFixture(t)
	ctx := context.Background()
	reload(t, c)

	master.Fail(fmt.Errorf("connection refused"))
	if _, err := b.NaturalView(ctx, "V1", model.Monday); err == nil {
		t.Fatalf("natural view should fail when a source is down")
	}
	if _, err := b.CustomView(ctx, "V1", model.Monday); err == nil {
		t.Fatalf("custom view should fail when a source is down")
	}
}
