package risk

import "time"

const (
	// RecentDays is the width of the "recent activity" window in calendar days.
	RecentDays = 7
	// HighActivityCount is the number of recent sightings that makes a trail High.
	HighActivityCount = 3
)

// Sighting is the slice of a sighting record the assessor reads.
type Sighting struct {
	TrailID    string
	Date       time.Time
	Aggressive bool
}

// Assessment is the outcome of Evaluate together with the counts behind it.
type Assessment struct {
	Level           Level `json:"level"`
	RecentCount     int   `json:"recent_count"`
	AggressiveCount int   `json:"aggressive_count"`
}

// Assess returns the danger level for sightings as of now.
func Assess(sightings []Sighting, now time.Time) Level {
	return Evaluate(sightings, now).Level
}

// Evaluate applies the danger rules:
//
//	any aggressive sighting              -> Critical
//	>= 3 sightings in the last 7 days    -> High
//	>= 1 sighting in the last 7 days     -> Medium
//	otherwise                            -> Low
//
// Aggressive behaviour is counted over every sighting passed in, not only
// the 7-day window; callers control how far back the input reaches.
func Evaluate(sightings []Sighting, now time.Time) Assessment {
	if len(sightings) == 0 {
		return Assessment{Level: Low}
	}

	cutoff := calendarDate(now, now.Location()).AddDate(0, 0, -RecentDays)

	var out Assessment
	for _, s := range sightings {
		if !calendarDate(s.Date, now.Location()).Before(cutoff) {
			out.RecentCount++
		}
		if s.Aggressive {
			out.AggressiveCount++
		}
	}

	switch {
	case out.AggressiveCount > 0:
		out.Level = Critical
	case out.RecentCount >= HighActivityCount:
		out.Level = High
	case out.RecentCount >= 1:
		out.Level = Medium
	default:
		out.Level = Low
	}
	return out
}

// WindowStart returns the first calendar day, in now's location, of a
// lookback window of the given number of days.
func WindowStart(now time.Time, days int) time.Time {
	return calendarDate(now, now.Location()).AddDate(0, 0, -days)
}

// calendarDate keeps the year/month/day of t and drops the clock, placing
// the date in loc so dates recorded in different zones compare as calendar days.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
