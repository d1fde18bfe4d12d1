package store

import (
	"time"

	"github.com/google/uuid"

	"visitnav/internal/model"
)

// changeFor classifies a SetPosition mutation from the previous row state
// and the new order value.
func changeFor(prev *int, order int) model.ChangeType {
	switch {
	case order == model.BlockOrder:
		return model.ChangeBlock
	case prev != nil && *prev != model.BlockOrder:
		return model.ChangeReorder
	default:
		return model.ChangePlace
	}
}

func newAudit(vendor, client string, change model.ChangeType, origin, dest *model.Weekday, prev, next *int, details string) model.AuditRecord {
	return model.AuditRecord{
		ID:             uuid.New().String(),
		TS:             time.Now().UTC(),
		Vendor:         vendor,
		Client:         client,
		Change:         change,
		OriginDay:      origin,
		DestinationDay: dest,
		PrevPosition:   prev,
		NewPosition:    next,
		Details:        details,
	}
}

func intPtr(v int) *int { return &v }

func dayPtr(d model.Weekday) *model.Weekday { return &d }
