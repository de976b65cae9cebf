// Package risk derives a trail's danger level from recent sightings.
package risk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLevel is returned when parsing an unrecognised level name.
var ErrUnknownLevel = errors.New("risk: unknown danger level")

// Level is a trail danger rating, ordered by severity.
type Level uint8

const (
	Low Level = iota
	Medium
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	default:
		return Low, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Elevated reports whether the level warrants an automatic alert.
func (l Level) Elevated() bool {
	return l >= High
}

func (l Level) MarshalText() ([]byte, error) {
	if l > Critical {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
