package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/risk"
)

const alertColumns = `id, alert_type, severity, title, message, forest_id, trail_id,
	start_date, end_date, is_active, created_by, manual, low_streak, created_at, updated_at`

// AlertFilter narrows ListAlerts. Zero values match everything.
type AlertFilter struct {
	ActiveOnly bool
	TrailID    string
	ForestID   string
	Limit      int
}

// LockScope takes a row lock on the trail or forest behind scope for the rest
// of the transaction. Concurrent processes assessing the same scope queue
// here, so the active-alert read that follows cannot race an insert. Outside
// a transaction, and on SQLite (a single writer), it is a no-op.
func (s *Store) LockScope(ctx context.Context, scope alert.Scope) error {
	if !s.inTx || s.dialect == SQLite {
		return nil
	}
	var table string
	switch scope.Kind {
	case alert.ScopeTrail:
		table = "trails"
	case alert.ScopeForest:
		table = "forests"
	default:
		return fmt.Errorf("%w: unknown scope kind %q", alert.ErrInvalidAlert, scope.Kind)
	}
	var id string
	err := s.queryRow(ctx, `select id from `+table+` where id = ? for update`, scope.ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", scope.Kind, scope.ID, ErrNotFound)
	}
	return err
}

// ActiveAlert returns the newest active alert of typ for scope. Inside a
// transaction on PostgreSQL or MySQL the row is locked until commit.
func (s *Store) ActiveAlert(ctx context.Context, scope alert.Scope, typ alert.Type) (*alert.Alert, error) {
	col, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	q := `select ` + alertColumns + ` from alerts
		where is_active = ? and alert_type = ? and ` + col + ` = ?
		order by start_date desc, id desc
		limit 1`
	if s.inTx && s.dialect != SQLite {
		q += ` for update`
	}
	a, err := scanAlert(s.queryRow(ctx, q, true, string(typ), scope.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) Alert(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := scanAlert(s.queryRow(ctx, `select `+alertColumns+` from alerts where id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	return a, err
}

func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert) error {
	forestID, trailID := scopeIDs(a.Scope)
	_, err := s.exec(ctx, `
		insert into alerts(`+alertColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.Severity.String(), a.Title, a.Message, forestID, trailID,
		ts(a.StartDate), nullTime(a.EndDate), a.Active, a.CreatedBy, a.Manual, a.LowStreak,
		ts(a.CreatedAt), ts(a.UpdatedAt),
	)
	return err
}

// UpdateAlert writes the mutable fields of an existing alert.
func (s *Store) UpdateAlert(ctx context.Context, a *alert.Alert) error {
	res, err := s.exec(ctx, `
		update alerts
		set severity = ?, title = ?, message = ?, end_date = ?, is_active = ?,
		    low_streak = ?, updated_at = ?
		where id = ?`,
		a.Severity.String(), a.Title, a.Message, nullTime(a.EndDate), a.Active,
		a.LowStreak, ts(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, alert.ErrNotFound)
	}
	return nil
}

// ElapsedAlerts lists active alerts whose end date is at or before t.
func (s *Store) ElapsedAlerts(ctx context.Context, t time.Time) ([]*alert.Alert, error) {
	rows, err := s.query(ctx, `select `+alertColumns+` from alerts
		where is_active = ? and end_date is not null and end_date <= ?
		order by end_date asc`, true, ts(t))
	if err != nil {
		return nil, err
	}
	return collectAlerts(rows)
}

func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]*alert.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, `is_active = ?`)
		args = append(args, true)
	}
	if f.TrailID != "" {
		where = append(where, `trail_id = ?`)
		args = append(args, f.TrailID)
	}
	if f.ForestID != "" {
		where = append(where, `forest_id = ?`)
		args = append(args, f.ForestID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := `select ` + alertColumns + ` from alerts`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, ` and `)
	}
	q += ` order by created_at desc, id desc limit ?`
	args = append(args, limit)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]*alert.Alert, error) {
	defer rows.Close()
	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(r rowScanner) (*alert.Alert, error) {
	var (
		a                 alert.Alert
		typ, severity     string
		forestID, trailID sql.NullString
		end               sql.NullTime
	)
	if err := r.Scan(&a.ID, &typ, &severity, &a.Title, &a.Message, &forestID, &trailID,
		&a.StartDate, &end, &a.Active, &a.CreatedBy, &a.Manual, &a.LowStreak,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	level, err := risk.ParseLevel(severity)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", a.ID, err)
	}
	a.Type = alert.Type(typ)
	a.Severity = level
	switch {
	case trailID.Valid:
		a.Scope = alert.TrailScope(trailID.String)
	case forestID.Valid:
		a.Scope = alert.ForestScope(forestID.String)
	}
	a.StartDate = a.StartDate.UTC()
	a.EndDate = timePtr(end)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scopeColumn(scope alert.Scope) (string, error) {
	switch scope.Kind {
	case alert.ScopeTrail:
		return "trail_id", nil
	case alert.ScopeForest:
		return "forest_id", nil
	default:
		return "", fmt.Errorf("%w: unknown scope kind %q", alert.ErrInvalidAlert, scope.Kind)
	}
}

func scopeIDs(scope alert.Scope) (forestID, trailID sql.NullString) {
	switch scope.Kind {
	case alert.ScopeTrail:
		trailID = nullString(scope.ID)
	case alert.ScopeForest:
		forestID = nullString(scope.ID)
	}
	return forestID, trailID
}
