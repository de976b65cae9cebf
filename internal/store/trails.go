package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trailwatch.org/internal/risk"
)

// Trail is the read model served to hikers.
type Trail struct {
	ID             string     `json:"id"`
	Name           string     `json:"trail_name"`
	ForestID       string     `json:"forest_id"`
	ForestName     string     `json:"forest_name"`
	StartLatitude  float64    `json:"start_latitude"`
	StartLongitude float64    `json:"start_longitude"`
	LengthMiles    float64    `json:"length_miles"`
	Difficulty     string     `json:"difficulty_level"`
	TrailType      string     `json:"trail_type,omitempty"`
	DangerLevel    risk.Level `json:"current_danger_level"`
	LastUpdated    time.Time  `json:"last_updated"`
	Closed         bool       `json:"is_closed"`
	ClosureReason  string     `json:"closure_reason,omitempty"`
}

const trailSelect = `
	select t.id, t.trail_name, t.forest_id, f.forest_name,
	       t.start_latitude, t.start_longitude, t.length_miles, t.difficulty_level,
	       coalesce(t.trail_type, ''), t.current_danger_level, t.last_updated,
	       t.is_closed, coalesce(t.closure_reason, '')
	from trails t
	join forests f on f.id = t.forest_id`

// ListTrails returns trails ordered by name, optionally limited to one forest.
func (s *Store) ListTrails(ctx context.Context, forestID string) ([]Trail, error) {
	q := trailSelect
	var args []any
	if forestID != "" {
		q += ` where t.forest_id = ?`
		args = append(args, forestID)
	}
	q += ` order by t.trail_name asc, t.id asc`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trail
	for rows.Next() {
		t, err := scanTrail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Trail(ctx context.Context, id string) (Trail, error) {
	t, err := scanTrail(s.queryRow(ctx, trailSelect+` where t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Trail{}, fmt.Errorf("trail %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *Store) TrailExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, `select 1 from trails where id = ?`, id)
}

func (s *Store) PredatorExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, `select 1 from predators where id = ?`, id)
}

// PersistDangerLevel stores the latest assessed level for a trail.
func (s *Store) PersistDangerLevel(ctx context.Context, trailID string, level risk.Level, at time.Time) error {
	res, err := s.exec(ctx, `
		update trails set current_danger_level = ?, last_updated = ?
		where id = ?`, level.String(), ts(at), trailID)
	if err != nil {
		return err
	}
	return requireRow(res, "trail", trailID)
}

// SetTrailClosure opens or closes a trail. The reason is cleared on reopen.
func (s *Store) SetTrailClosure(ctx context.Context, trailID string, closed bool, reason string) error {
	if !closed {
		reason = ""
	}
	res, err := s.exec(ctx, `
		update trails set is_closed = ?, closure_reason = ?, last_updated = ?
		where id = ?`, closed, nullString(reason), ts(time.Now()), trailID)
	if err != nil {
		return err
	}
	return requireRow(res, "trail", trailID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrail(r rowScanner) (Trail, error) {
	var (
		t     Trail
		level string
	)
	if err := r.Scan(&t.ID, &t.Name, &t.ForestID, &t.ForestName,
		&t.StartLatitude, &t.StartLongitude, &t.LengthMiles, &t.Difficulty,
		&t.TrailType, &level, &t.LastUpdated, &t.Closed, &t.ClosureReason); err != nil {
		return Trail{}, err
	}
	parsed, err := risk.ParseLevel(level)
	if err != nil {
		return Trail{}, fmt.Errorf("trail %s: %w", t.ID, err)
	}
	t.DangerLevel = parsed
	t.LastUpdated = t.LastUpdated.UTC()
	return t, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
