package schedule

import (
	"context"
	"errors"
	"testing"

	"visitnav/internal/model"
)

func days(ds ...model.Weekday) [model.NumWeekdays]bool {
	var out [model.NumWeekdays]bool
	for _, d := range ds {
		out[d] = true
	}
	return out
}

func TestMasterIsAuthoritativeOverHistory(t *testing.T) {
	master := NewMemorySource()
	history := NewMemorySource()
	// master says Monday only; history claims Monday and Tuesday for the
	// same client and must be ignored entirely
	master.Put("V1",
		Assignment{Client: "C1", Days: days(model.Monday)},
		Assignment{Client: "C2", Days: days(model.Tuesday)},
	)
	history.Put("V1",
		Assignment{Client: "C1", Days: days(model.Monday, model.Tuesday)},
		Assignment{Client: "C3", Days: days(model.Tuesday)},
	)
	r := NewResolver(master, history)

	mon, err := r.ClientsFor(context.Background(), "V1", model.Monday)
	if err != nil {
		t.Fatalf("monday: %v", err)
	}
	if len(mon) != 1 || mon[0] != "C1" {
		t.Fatalf("monday = %v, want [C1]", mon)
	}

	tue, err := r.ClientsFor(context.Background(), "V1", model.Tuesday)
	if err != nil {
		t.Fatalf("tuesday: %v", err)
	}
	// C2 from master, C3 from history fallback; C1 excluded because the
	// master row says Monday only
	if len(tue) != 2 || tue[0] != "C2" || tue[1] != "C3" {
		t.Fatalf("tuesday = %v, want [C2 C3]", tue)
	}
}

func TestMasterPresenceBlocksHistoryFallback(t *testing.T) {
	master := NewMemorySource()
	history := NewMemorySource()
	// a live master row with no days set still shadows the history entry
	master.Put("V1", Assignment{Client: "C1"})
	history.Put("V1", Assignment{Client: "C1", Days: days(model.Friday)})
	r := NewResolver(master, history)

	fri, err := r.ClientsFor(context.Background(), "V1", model.Friday)
	if err != nil {
		t.Fatalf("friday: %v", err)
	}
	if len(fri) != 0 {
		t.Fatalf("friday = %v, want empty", fri)
	}
}

func TestSourceFailureIsNotAnEmptyRoute(t *testing.T) {
	master := NewMemorySource()
	history := NewMemorySource()
	master.Put("V1", Assignment{Client: "C1", Days: days(model.Monday)})
	r := NewResolver(master, history)

	history.Fail(errors.New("connection refused"))
	if _, err := r.ClientsFor(context.Background(), "V1", model.Monday); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("history failure: got %v, want ErrSourceUnavailable", err)
	}

	history.Fail(nil)
	master.Fail(errors.New("connection refused"))
	if _, err := r.ClientsFor(context.Background(), "V1", model.Monday); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("master failure: got %v, want ErrSourceUnavailable", err)
	}
}

func TestClientsForRejectsInvalidDay(t *testing.T) {
	r := NewResolver(NewMemorySource(), NewMemorySource())
	if _, err := r.ClientsFor(context.Background(), "V1", model.Weekday(9)); err == nil {
		t.Fatalf("expected error for invalid weekday")
	}
}

func TestClientsForSortedAndDeterministic(t *testing.T) {
	master := NewMemorySource()
	history := NewMemorySource()
	master.Put("V1",
		Assignment{Client: "C9", Days: days(model.Wednesday)},
		Assignment{Client: "C1", Days: days(model.Wednesday)},
		Assignment{Client: "C5", Days: days(model.Wednesday)},
	)
	r := NewResolver(master, history)
	for i := 0; i < 5; i++ {
		got, err := r.ClientsFor(context.Background(), "V1", model.Wednesday)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(got) != 3 || got[0] != "C1" || got[1] != "C5" || got[2] != "C9" {
			t.Fatalf("got %v, want [C1 C5 C9]", got)
		}
	}
}
