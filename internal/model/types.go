package model

import "time"

// BlockOrder is the persisted order value for an explicit block: the client
// is suppressed from the day's custom view regardless of its natural
// assignment.
const BlockOrder = -1

// OverrideEntry is one manually curated exception to the natural assignment.
// At most one entry exists per (vendor, day, client); Order is either
// BlockOrder or a non-negative position in the day's custom ordering.
type OverrideEntry struct {
	Vendor string  `json:"vendor"`
	Day    Weekday `json:"day"`
	Client string  `json:"client"`
	Order  int     `json:"order"`
}

// Blocked reports whether the entry suppresses the client for the day.
func (e OverrideEntry) Blocked() bool { return e.Order == BlockOrder }

// ChangeType enumerates the audited override mutations.
type ChangeType string

const (
	ChangePlace   ChangeType = "PLACE"
	ChangeReorder ChangeType = "REORDER"
	ChangeBlock   ChangeType = "BLOCK"
	ChangeUnblock ChangeType = "UNBLOCK"
	ChangeMove    ChangeType = "MOVE"
)

// AuditRecord is one append-only row describing an override mutation.
// Records are written in the same transaction as the mutation and never
// updated afterwards.
type AuditRecord struct {
	ID             string     `json:"id"`
	TS             time.Time  `json:"ts"`
	Vendor         string     `json:"vendor"`
	Client         string     `json:"client"`
	Change         ChangeType `json:"changeType"`
	OriginDay      *Weekday   `json:"originDay,omitempty"`
	DestinationDay *Weekday   `json:"destinationDay,omitempty"`
	PrevPosition   *int       `json:"previousPosition,omitempty"`
	NewPosition    *int       `json:"newPosition,omitempty"`
	Details        string     `json:"details,omitempty"`
}

// View entry sources.
const (
	SourceOverride = "override"
	SourceNatural  = "natural"
)

// ViewEntry is one client in a natural or custom day view.
type ViewEntry struct {
	Client  string `json:"client"`
	Order   *int   `json:"order,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
	Source  string `json:"source"`
}

// PlaceRequest places a client at an explicit position on a day.
type PlaceRequest struct {
	Client string `json:"client"`
	Order  int    `json:"order"`
}

// BlockRequest blocks or unblocks a client for a day.
type BlockRequest struct {
	Client string `json:"client"`
}

// MoveRequest moves a client from one day to another: a block on the origin
// day plus a placement on the destination day, applied atomically.
type MoveRequest struct {
	Client   string `json:"client"`
	FromDay  string `json:"fromDay"`
	ToDay    string `json:"toDay"`
	NewOrder int    `json:"newOrder"`
}

// SubscriptionRequest registers a webhook endpoint for route events.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
