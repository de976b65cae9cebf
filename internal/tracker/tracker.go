// Package tracker records predator sightings and keeps each trail's danger
// level and automatic alerts in step with them.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/ids"
	"trailwatch.org/internal/obs"
	"trailwatch.org/internal/risk"
)

var (
	ErrInvalidSighting = errors.New("tracker: invalid sighting")
	ErrUnknownTrail    = errors.New("tracker: unknown trail")
	ErrUnknownPredator = errors.New("tracker: unknown predator")
)

// DefaultLookback is how far back sightings are read for an assessment.
// Aggressive behaviour anywhere in this window makes a trail Critical.
const DefaultLookback = 30 * 24 * time.Hour

// Sighting is a full sighting report.
type Sighting struct {
	ID                  string    `json:"id"`
	PredatorID          string    `json:"predator_id"`
	TrailID             string    `json:"trail_id"`
	ReporterID          string    `json:"reporter_id,omitempty"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	LocationDescription string    `json:"location_description,omitempty"`
	Date                time.Time `json:"sighting_date"`
	Time                string    `json:"sighting_time,omitempty"`
	Weather             string    `json:"weather_conditions,omitempty"`
	Behavior            string    `json:"behavior_observed,omitempty"`
	NumberOfAnimals     int       `json:"number_of_animals"`
	Aggressive          bool      `json:"aggressive_behavior"`
	Description         string    `json:"description,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Store is the persistence collaborator for sightings and trail danger state.
type Store interface {
	TrailExists(ctx context.Context, trailID string) (bool, error)
	PredatorExists(ctx context.Context, predatorID string) (bool, error)
	RecordSighting(ctx context.Context, s *Sighting) error
	FetchRecentSightings(ctx context.Context, trailID string, windowStart time.Time) ([]risk.Sighting, error)
	PersistDangerLevel(ctx context.Context, trailID string, level risk.Level, at time.Time) error
}

// Observer receives every assessment. *alert.Coordinator implements it.
type Observer interface {
	Observe(ctx context.Context, scope alert.Scope, level risk.Level) (alert.Decision, error)
}

// Assessment is the result of reassessing one trail.
type Assessment struct {
	TrailID         string         `json:"trail_id"`
	Level           risk.Level     `json:"level"`
	RecentCount     int            `json:"recent_count"`
	AggressiveCount int            `json:"aggressive_count"`
	Alert           alert.Decision `json:"alert"`
	AssessedAt      time.Time      `json:"assessed_at"`
}

type Option func(*Service)

// WithLookback sets the sighting window read per assessment. It never
// shrinks below the recent-activity window.
func WithLookback(d time.Duration) Option {
	return func(s *Service) {
		if floor := risk.RecentDays * 24 * time.Hour; d < floor {
			d = floor
		}
		s.lookback = d
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Service wires sighting intake to the risk assessor and alert coordinator.
type Service struct {
	store    Store
	alerts   Observer
	lookback time.Duration
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, alerts Observer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		alerts:   alerts,
		lookback: DefaultLookback,
		now:      time.Now,
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report validates and records a sighting, then reassesses its trail. The
// sighting stays recorded even when the reassessment fails; the returned
// error says so and the next report or a forced reassessment catches up.
func (s *Service) Report(ctx context.Context, in Sighting) (*Sighting, Assessment, error) {
	now := s.now().UTC()
	sighting, err := s.normalize(in, now)
	if err != nil {
		return nil, Assessment{}, err
	}
	if err := s.requireTrail(ctx, sighting.TrailID); err != nil {
		return nil, Assessment{}, err
	}
	ok, err := s.store.PredatorExists(ctx, sighting.PredatorID)
	if err != nil {
		return nil, Assessment{}, fmt.Errorf("lookup predator: %w", err)
	}
	if !ok {
		return nil, Assessment{}, fmt.Errorf("%w: %s", ErrUnknownPredator, sighting.PredatorID)
	}

	sighting.ID = s.newID()
	sighting.CreatedAt = now
	if err := s.store.RecordSighting(ctx, sighting); err != nil {
		return nil, Assessment{}, fmt.Errorf("record sighting: %w", err)
	}
	obs.Logger().Info("sighting recorded",
		zap.String("sighting_id", sighting.ID),
		zap.String("trail_id", sighting.TrailID),
		zap.Bool("aggressive", sighting.Aggressive),
	)

	assessment, err := s.reassess(ctx, sighting.TrailID)
	if err != nil {
		return sighting, Assessment{}, fmt.Errorf("reassess trail %s: %w", sighting.TrailID, err)
	}
	return sighting, assessment, nil
}

// Reassess recomputes a trail's danger level from its sightings and feeds
// it to the alert coordinator.
func (s *Service) Reassess(ctx context.Context, trailID string) (Assessment, error) {
	trailID = strings.TrimSpace(trailID)
	if err := s.requireTrail(ctx, trailID); err != nil {
		return Assessment{}, err
	}
	return s.reassess(ctx, trailID)
}

func (s *Service) reassess(ctx context.Context, trailID string) (Assessment, error) {
	now := s.now().UTC()
	windowStart := risk.WindowStart(now, int(s.lookback/(24*time.Hour)))

	sightings, err := s.store.FetchRecentSightings(ctx, trailID, windowStart)
	if err != nil {
		return Assessment{}, fmt.Errorf("fetch sightings: %w", err)
	}
	result := risk.Evaluate(sightings, now)
	if err := s.store.PersistDangerLevel(ctx, trailID, result.Level, now); err != nil {
		return Assessment{}, fmt.Errorf("persist danger level: %w", err)
	}
	obs.RecordAssessment(result.Level.String())

	out := Assessment{
		TrailID:         trailID,
		Level:           result.Level,
		RecentCount:     result.RecentCount,
		AggressiveCount: result.AggressiveCount,
		AssessedAt:      now,
	}
	if s.alerts != nil {
		decision, err := s.alerts.Observe(ctx, alert.TrailScope(trailID), result.Level)
		if err != nil {
			return out, fmt.Errorf("update alerts: %w", err)
		}
		out.Alert = decision
		if decision.Action != alert.ActionNone {
			obs.RecordAlertTransition(string(decision.Action))
		}
	}

	obs.Logger().Info("trail assessed",
		zap.String("trail_id", trailID),
		zap.Stringer("level", result.Level),
		zap.Int("recent", result.RecentCount),
		zap.Int("aggressive", result.AggressiveCount),
		zap.String("alert_action", string(out.Alert.Action)),
	)
	return out, nil
}

func (s *Service) requireTrail(ctx context.Context, trailID string) error {
	if trailID == "" {
		return fmt.Errorf("%w: trail_id is required", ErrInvalidSighting)
	}
	ok, err := s.store.TrailExists(ctx, trailID)
	if err != nil {
		return fmt.Errorf("lookup trail: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrail, trailID)
	}
	return nil
}

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func (s *Service) normalize(in Sighting, now time.Time) (*Sighting, error) {
	out := in
	out.TrailID = strings.TrimSpace(in.TrailID)
	out.PredatorID = strings.TrimSpace(in.PredatorID)
	out.Time = strings.TrimSpace(in.Time)

	switch {
	case out.TrailID == "":
		return nil, fmt.Errorf("%w: trail_id is required", ErrInvalidSighting)
	case out.PredatorID == "":
		return nil, fmt.Errorf("%w: predator_id is required", ErrInvalidSighting)
	case in.Date.IsZero():
		return nil, fmt.Errorf("%w: sighting_date is required", ErrInvalidSighting)
	case in.Latitude < -90 || in.Latitude > 90:
		return nil, fmt.Errorf("%w: latitude out of range", ErrInvalidSighting)
	case in.Longitude < -180 || in.Longitude > 180:
		return nil, fmt.Errorf("%w: longitude out of range", ErrInvalidSighting)
	case in.NumberOfAnimals < 0:
		return nil, fmt.Errorf("%w: number_of_animals must not be negative", ErrInvalidSighting)
	case out.Time != "" && !clockTime.MatchString(out.Time):
		return nil, fmt.Errorf("%w: sighting_time must be HH:MM", ErrInvalidSighting)
	}

	y, m, d := in.Date.Date()
	out.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// One day of slack for reporters ahead of UTC.
	if out.Date.After(now.AddDate(0, 0, 1)) {
		return nil, fmt.Errorf("%w: sighting_date is in the future", ErrInvalidSighting)
	}
	if out.NumberOfAnimals == 0 {
		out.NumberOfAnimals = 1
	}
	return &out, nil
}
