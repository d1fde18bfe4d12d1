package schedule

import (
	"context"
	"database/sql"
	"fmt"

	"visitnav/internal/model"
)

// MasterSource reads Source A: the visit-schedule master, one row per
// (vendor, client) with single-character day flags and a soft-delete marker.
// Rows are eligible only when neither the schedule row nor the client master
// carries a deletion tombstone; the two markers are independent and both
// must say "alive".
type MasterSource struct {
	db *sql.DB
}

func NewMasterSource(db *sql.DB) *MasterSource { return &MasterSource{db: db} }

func (s *MasterSource) Assignments(ctx context.Context, vendor string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.client, COALESCE(s.deleted,''), COALESCE(c.deleted,''),
		COALESCE(s.monday,''), COALESCE(s.tuesday,''), COALESCE(s.wednesday,''),
		COALESCE(s.thursday,''), COALESCE(s.friday,''), COALESCE(s.saturday,'')
		FROM visit_schedule s
		LEFT JOIN clients c ON c.client = s.client
		WHERE s.vendor = $1`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var client, rowDel, clientDel string
		var codes [model.NumWeekdays]string
		if err := rows.Scan(&client, &rowDel, &clientDel,
			&codes[0], &codes[1], &codes[2], &codes[3], &codes[4], &codes[5]); err != nil {
			return nil, err
		}
		rowDeleted, err := ParseFlag(rowDel)
		if err != nil {
			return nil, fmt.Errorf("schedule row for client %s: %w", client, err)
		}
		clientDeleted, err := ParseFlag(clientDel)
		if err != nil {
			return nil, fmt.Errorf("client master row for client %s: %w", client, err)
		}
		if rowDeleted || clientDeleted {
			continue
		}
		a := Assignment{Client: client}
		for i, code := range codes {
			v, err := ParseFlag(code)
			if err != nil {
				return nil, fmt.Errorf("schedule flags for client %s, %s: %w", client, model.Weekday(i), err)
			}
			a.Days[i] = v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HistorySource reads Source B: per-weekday flags inferred from historical
// delivery patterns, distinct per (vendor, client). It is consulted only for
// clients the master has no record of.
type HistorySource struct {
	db *sql.DB
}

func NewHistorySource(db *sql.DB) *HistorySource { return &HistorySource{db: db} }

func (s *HistorySource) Assignments(ctx context.Context, vendor string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT h.client,
		COALESCE(h.monday,''), COALESCE(h.tuesday,''), COALESCE(h.wednesday,''),
		COALESCE(h.thursday,''), COALESCE(h.friday,''), COALESCE(h.saturday,'')
		FROM delivery_history h
		WHERE h.vendor = $1`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var client string
		var codes [model.NumWeekdays]string
		if err := rows.Scan(&client, &codes[0], &codes[1], &codes[2], &codes[3], &codes[4], &codes[5]); err != nil {
			return nil, err
		}
		a := Assignment{Client: client}
		for i, code := range codes {
			v, err := ParseFlag(code)
			if err != nil {
				return nil, fmt.Errorf("delivery history for client %s, %s: %w", client, model.Weekday(i), err)
			}
			a.Days[i] = v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
