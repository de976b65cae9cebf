// Package alert owns the alert lifecycle for trails and forests.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trailwatch.org/internal/risk"
)

var (
	ErrNotFound     = errors.New("alert: not found")
	ErrInvalidAlert = errors.New("alert: invalid alert")
)

// Type names the kind of alert.
type Type string

const (
	TypeHighActivity Type = "High Activity"
	TypeTrailClosure Type = "Trail Closure"
)

// ScopeKind says whether an alert covers a single trail or a whole forest.
type ScopeKind string

const (
	ScopeTrail  ScopeKind = "trail"
	ScopeForest ScopeKind = "forest"
)

// Scope is the entity an alert applies to.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func TrailScope(id string) Scope  { return Scope{Kind: ScopeTrail, ID: id} }
func ForestScope(id string) Scope { return Scope{Kind: ScopeForest, ID: id} }

// Key identifies the scope for locking.
func (s Scope) Key() string {
	return string(s.Kind) + ":" + s.ID
}

func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeTrail, ScopeForest:
	default:
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidAlert, s.Kind)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: scope id is required", ErrInvalidAlert)
	}
	return nil
}

// Alert is a persisted alert record. Alerts are deactivated, never deleted.
type Alert struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	Severity  risk.Level `json:"severity"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Scope     Scope      `json:"scope"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Active    bool       `json:"is_active"`
	CreatedBy string     `json:"created_by"`
	Manual    bool       `json:"manual"`
	// LowStreak counts consecutive non-elevated assessments seen while active.
	LowStreak int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Alert) clone() *Alert {
	if a == nil {
		return nil
	}
	out := *a
	if a.EndDate != nil {
		end := *a.EndDate
		out.EndDate = &end
	}
	return &out
}

// Store is the persistence collaborator for alerts.
type Store interface {
	// ActiveAlert returns the most recent active alert of the given type for
	// scope, or (nil, nil) when there is none.
	ActiveAlert(ctx context.Context, scope Scope, typ Type) (*Alert, error)
	Alert(ctx context.Context, id string) (*Alert, error)
	CreateAlert(ctx context.Context, a *Alert) error
	UpdateAlert(ctx context.Context, a *Alert) error
	// ElapsedAlerts lists active alerts whose end date is at or before t.
	ElapsedAlerts(ctx context.Context, t time.Time) ([]*Alert, error)
	SetTrailClosure(ctx context.Context, trailID string, closed bool, reason string) error
}

// ScopeLocker is implemented by stores that can hold a scope exclusively
// until the surrounding transaction ends, so that concurrent processes
// serialise on the same trail or forest even when no alert row exists yet.
type ScopeLocker interface {
	LockScope(ctx context.Context, scope Scope) error
}

// Transactor is implemented by stores that can run a group of calls atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}
