// Package schedule derives each client's natural visit days for a vendor
// from the two historical sources: the editorially maintained schedule
// master and the delivery-history fallback.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"visitnav/internal/model"
)

// Assignment is one client's per-day inclusion flags as reported by a source.
type Assignment struct {
	Client string
	Days   [model.NumWeekdays]bool
}

// Source supplies natural assignments for one vendor.
type Source interface {
	Assignments(ctx context.Context, vendor string) ([]Assignment, error)
}

// ErrSourceUnavailable marks a resolve that could not read its sources.
// Callers must not conflate it with an empty route.
var ErrSourceUnavailable = errors.New("natural assignment sources unavailable")

// Resolver merges the schedule master (A) with the delivery-history
// fallback (B). A is authoritative for any client it holds a live row for;
// B answers only for clients absent from A.
type Resolver struct {
	Master  Source
	History Source
}

func NewResolver(master, history Source) *Resolver {
	return &Resolver{Master: master, History: history}
}

// ClientsFor returns the set of clients naturally assigned to the day,
// sorted by client id. Output is deterministic given current source data;
// nothing is cached at this layer. Any source failure surfaces as
// ErrSourceUnavailable rather than an empty set.
func (r *Resolver) ClientsFor(ctx context.Context, vendor string, day model.Weekday) ([]string, error) {
	if !day.Valid() {
		return nil, fmt.Errorf("invalid weekday: %d", int(day))
	}
	master, err := r.Master.Assignments(ctx, vendor)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule master: %v", ErrSourceUnavailable, err)
	}
	history, err := r.History.Assignments(ctx, vendor)
	if err != nil {
		return nil, fmt.Errorf("%w: delivery history: %v", ErrSourceUnavailable, err)
	}

	inMaster := map[string]struct{}{}
	include := map[string]struct{}{}
	for _, a := range master {
		inMaster[a.Client] = struct{}{}
		if a.Days[day] {
			include[a.Client] = struct{}{}
		}
	}
	for _, a := range history {
		if _, ok := inMaster[a.Client]; ok {
			continue
		}
		if a.Days[day] {
			include[a.Client] = struct{}{}
		}
	}

	out := make([]string, 0, len(include))
	for c := range include {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
