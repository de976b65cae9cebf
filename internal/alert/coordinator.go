package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trailwatch.org/internal/ids"
	"trailwatch.org/internal/risk"
)

const (
	// SystemActor is recorded as creator of alerts raised by assessments.
	SystemActor = "system"
	// DefaultRetireAfter is how many consecutive Low/Medium assessments
	// retire an automatic alert.
	DefaultRetireAfter = 2
)

// Action is the transition chosen for one assessment.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionHold   Action = "hold"
	ActionExpire Action = "expire"
)

// Decision is the outcome of Observe. Alert is the record as persisted, nil
// when the scope has no automatic alert.
type Decision struct {
	Action Action `json:"action"`
	Alert  *Alert `json:"alert,omitempty"`
}

// ManualAlert is an administrator-issued alert such as a trail closure.
type ManualAlert struct {
	Type      Type       `json:"type"`
	Severity  risk.Level `json:"severity"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Scope     Scope      `json:"scope"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetireAfter sets the hysteresis depth; values below 1 are ignored.
func WithRetireAfter(n int) Option {
	return func(c *Coordinator) {
		if n >= 1 {
			c.retireAfter = n
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.now = fn
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Coordinator turns danger levels into alert state transitions. Each
// transition is a read-modify-write on one scope; it runs under a per-scope
// lock and, when the store is a Transactor, inside a single transaction.
type Coordinator struct {
	store       Store
	locks       *scopeLocks
	retireAfter int
	now         func() time.Time
	newID       func() string
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		locks:       newScopeLocks(),
		retireAfter: DefaultRetireAfter,
		now:         time.Now,
		newID:       ids.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetireAfter reports the configured hysteresis depth.
func (c *Coordinator) RetireAfter() int {
	return c.retireAfter
}

// Observe feeds one assessment of scope into the automatic alert state machine.
func (c *Coordinator) Observe(ctx context.Context, scope Scope, level risk.Level) (Decision, error) {
	if err := scope.Validate(); err != nil {
		return Decision{}, err
	}
	unlock := c.locks.lock(scope.Key())
	defer unlock()

	var decision Decision
	err := c.atomically(ctx, func(s Store) error {
		if err := lockScope(ctx, s, scope); err != nil {
			return err
		}
		current, err := s.ActiveAlert(ctx, scope, TypeHighActivity)
		if err != nil {
			return fmt.Errorf("load active alert: %w", err)
		}
		decision = c.transition(scope, current, level, c.now().UTC())
		switch decision.Action {
		case ActionCreate:
			if err := s.CreateAlert(ctx, decision.Alert); err != nil {
				return fmt.Errorf("create alert: %w", err)
			}
		case ActionUpdate, ActionHold, ActionExpire:
			if err := s.UpdateAlert(ctx, decision.Alert); err != nil {
				return fmt.Errorf("update alert %s: %w", decision.Alert.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// transition is the state machine itself. It never mutates current.
func (c *Coordinator) transition(scope Scope, current *Alert, level risk.Level, now time.Time) Decision {
	if level.Elevated() {
		if current == nil {
			a := &Alert{
				ID:        c.newID(),
				Type:      TypeHighActivity,
				Severity:  level,
				Scope:     scope,
				StartDate: now,
				Active:    true,
				CreatedBy: SystemActor,
				CreatedAt: now,
				UpdatedAt: now,
			}
			a.Title, a.Message = describe(scope, level)
			return Decision{Action: ActionCreate, Alert: a}
		}
		next := current.clone()
		switch {
		case next.Severity != level:
			next.Severity = level
			next.Title, next.Message = describe(scope, level)
			next.LowStreak = 0
			next.UpdatedAt = now
			return Decision{Action: ActionUpdate, Alert: next}
		case next.LowStreak != 0:
			next.LowStreak = 0
			next.UpdatedAt = now
			return Decision{Action: ActionHold, Alert: next}
		default:
			return Decision{Action: ActionNone, Alert: next}
		}
	}

	if current == nil {
		return Decision{Action: ActionNone}
	}
	next := current.clone()
	next.LowStreak++
	next.UpdatedAt = now
	if next.LowStreak >= c.retireAfter {
		next.Active = false
		end := now
		next.EndDate = &end
		return Decision{Action: ActionExpire, Alert: next}
	}
	return Decision{Action: ActionHold, Alert: next}
}

func describe(scope Scope, level risk.Level) (title, message string) {
	title = fmt.Sprintf("%s predator activity on %s %s", level, scope.Kind, scope.ID)
	message = fmt.Sprintf("Recent sightings put the danger level at %s. Stay alert, travel in groups and keep food secured.", level)
	return title, message
}

// CreateManual records an administrator alert. Manual alerts are never
// retired by assessments; a trail-scoped closure also marks the trail closed.
func (c *Coordinator) CreateManual(ctx context.Context, in ManualAlert, createdBy string) (*Alert, error) {
	if err := validateManual(in, createdBy); err != nil {
		return nil, err
	}
	now := c.now().UTC()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	if in.EndDate != nil && !in.EndDate.After(start) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInvalidAlert)
	}
	a := &Alert{
		ID:        c.newID(),
		Type:      in.Type,
		Severity:  in.Severity,
		Title:     strings.TrimSpace(in.Title),
		Message:   strings.TrimSpace(in.Message),
		Scope:     in.Scope,
		StartDate: start.UTC(),
		Active:    true,
		CreatedBy: createdBy,
		Manual:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		a.EndDate = &end
	}

	unlock := c.locks.lock(in.Scope.Key())
	defer unlock()
	err := c.atomically(ctx, func(s Store) error {
		if err := lockScope(ctx, s, a.Scope); err != nil {
			return err
		}
		if err := s.CreateAlert(ctx, a); err != nil {
			return fmt.Errorf("create alert: %w", err)
		}
		if a.Type == TypeTrailClosure && a.Scope.Kind == ScopeTrail {
			if err := s.SetTrailClosure(ctx, a.Scope.ID, true, a.Title); err != nil {
				return fmt.Errorf("close trail %s: %w", a.Scope.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.clone(), nil
}

func validateManual(in ManualAlert, createdBy string) error {
	if err := in.Scope.Validate(); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(string(in.Type)) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidAlert)
	case in.Type == TypeHighActivity:
		return fmt.Errorf("%w: %q alerts are raised by assessments", ErrInvalidAlert, TypeHighActivity)
	case in.Severity > risk.Critical:
		return fmt.Errorf("%w: unknown severity", ErrInvalidAlert)
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidAlert)
	case strings.TrimSpace(in.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidAlert)
	case strings.TrimSpace(createdBy) == "":
		return fmt.Errorf("%w: creator is required", ErrInvalidAlert)
	}
	return nil
}

// Deactivate retires an alert by id. Deactivating an inactive alert is a no-op.
func (c *Coordinator) Deactivate(ctx context.Context, id string) (*Alert, error) {
	existing, err := c.store.Alert(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(existing.Scope.Key())
	defer unlock()

	var out *Alert
	err = c.atomically(ctx, func(s Store) error {
		current, err := s.Alert(ctx, id)
		if err != nil {
			return err
		}
		if !current.Active {
			out = current
			return nil
		}
		out, err = c.retire(ctx, s, current, c.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireElapsed deactivates every active alert whose window has ended and
// returns how many were retired.
func (c *Coordinator) ExpireElapsed(ctx context.Context) (int, error) {
	now := c.now().UTC()
	elapsed, err := c.store.ElapsedAlerts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list elapsed alerts: %w", err)
	}

	var (
		retired int
		errs    []error
	)
	for _, a := range elapsed {
		ok, err := c.expireOne(ctx, a, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire alert %s: %w", a.ID, err))
			continue
		}
		if ok {
			retired++
		}
	}
	return retired, errors.Join(errs...)
}

func (c *Coordinator) expireOne(ctx context.Context, a *Alert, now time.Time) (bool, error) {
	unlock := c.locks.lock(a.Scope.Key())
	defer unlock()

	var retired bool
	err := c.atomically(ctx, func(s Store) error {
		current, err := s.Alert(ctx, a.ID)
		if err != nil {
			return err
		}
		if !current.Active || current.EndDate == nil || current.EndDate.After(now) {
			return nil
		}
		if _, err := c.retire(ctx, s, current, now); err != nil {
			return err
		}
		retired = true
		return nil
	})
	return retired, err
}

// retire deactivates a and reopens its trail when it was the last active closure.
func (c *Coordinator) retire(ctx context.Context, s Store, a *Alert, now time.Time) (*Alert, error) {
	next := a.clone()
	next.Active = false
	if next.EndDate == nil || next.EndDate.After(now) {
		end := now
		next.EndDate = &end
	}
	next.UpdatedAt = now
	if err := s.UpdateAlert(ctx, next); err != nil {
		return nil, fmt.Errorf("update alert %s: %w", next.ID, err)
	}
	if next.Type == TypeTrailClosure && next.Scope.Kind == ScopeTrail {
		other, err := s.ActiveAlert(ctx, next.Scope, TypeTrailClosure)
		if err != nil {
			return nil, fmt.Errorf("load active closure: %w", err)
		}
		if other == nil {
			if err := s.SetTrailClosure(ctx, next.Scope.ID, false, ""); err != nil {
				return nil, fmt.Errorf("reopen trail %s: %w", next.Scope.ID, err)
			}
		}
	}
	return next, nil
}

func lockScope(ctx context.Context, s Store, scope Scope) error {
	l, ok := s.(ScopeLocker)
	if !ok {
		return nil
	}
	if err := l.LockScope(ctx, scope); err != nil {
		return fmt.Errorf("lock %s: %w", scope.Key(), err)
	}
	return nil
}

func (c *Coordinator) atomically(ctx context.Context, fn func(Store) error) error {
	if tx, ok := c.store.(Transactor); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(c.store)
}
