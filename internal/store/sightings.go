package store

import (
	"context"
	"database/sql"
	"time"

	"trailwatch.org/internal/risk"
	"trailwatch.org/internal/tracker"
)

// dateLayout is how calendar dates are bound; every dialect compares it
// correctly against its date column.
const dateLayout = "2006-01-02"

func (s *Store) RecordSighting(ctx context.Context, in *tracker.Sighting) error {
	_, err := s.exec(ctx, `
		insert into sightings(
			id, predator_id, trail_id, reporter_id, latitude, longitude,
			location_description, sighting_date, sighting_time, weather_conditions,
			behavior_observed, number_of_animals, aggressive_behavior, description, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.PredatorID, in.TrailID, nullString(in.ReporterID), in.Latitude, in.Longitude,
		nullString(in.LocationDescription), in.Date.UTC().Format(dateLayout), nullString(in.Time),
		nullString(in.Weather), nullString(in.Behavior), in.NumberOfAnimals, in.Aggressive,
		nullString(in.Description), ts(in.CreatedAt),
	)
	return err
}

// FetchRecentSightings returns the assessor's view of a trail's sightings on
// or after windowStart's calendar date.
func (s *Store) FetchRecentSightings(ctx context.Context, trailID string, windowStart time.Time) ([]risk.Sighting, error) {
	rows, err := s.query(ctx, `
		select sighting_date, aggressive_behavior
		from sightings
		where trail_id = ? and sighting_date >= ?
		order by sighting_date asc`, trailID, windowStart.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.Sighting
	for rows.Next() {
		sg := risk.Sighting{TrailID: trailID}
		if err := rows.Scan(&sg.Date, &sg.Aggressive); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// ListSightings returns a trail's most recent sightings first.
func (s *Store) ListSightings(ctx context.Context, trailID string, limit int) ([]tracker.Sighting, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		select id, predator_id, trail_id, reporter_id, latitude, longitude,
		       location_description, sighting_date, sighting_time, weather_conditions,
		       behavior_observed, number_of_animals, aggressive_behavior, description, created_at
		from sightings
		where trail_id = ?
		order by sighting_date desc, created_at desc
		limit ?`, trailID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Sighting
	for rows.Next() {
		var (
			sg                                            tracker.Sighting
			reporter, where, at, weather, behavior, descr sql.NullString
		)
		if err := rows.Scan(&sg.ID, &sg.PredatorID, &sg.TrailID, &reporter, &sg.Latitude, &sg.Longitude,
			&where, &sg.Date, &at, &weather, &behavior, &sg.NumberOfAnimals, &sg.Aggressive,
			&descr, &sg.CreatedAt); err != nil {
			return nil, err
		}
		sg.ReporterID = reporter.String
		sg.LocationDescription = where.String
		sg.Time = at.String
		sg.Weather = weather.String
		sg.Behavior = behavior.String
		sg.Description = descr.String
		sg.Date = sg.Date.UTC()
		sg.CreatedAt = sg.CreatedAt.UTC()
		out = append(out, sg)
	}
	return out, rows.Err()
}
