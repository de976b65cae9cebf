package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trailwatch.org/internal/audit"
	"trailwatch.org/internal/obs"
	"trailwatch.org/internal/tracker"
)

const (
	defaultSightingLimit = 50
	maxSightingLimit     = 500
)

func (a *API) handleListTrails(w http.ResponseWriter, r *http.Request) {
	trails, err := a.deps.Catalog.ListTrails(r.Context(), strings.TrimSpace(r.URL.Query().Get("forest_id")))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trails": trails})
}

func (a *API) handleGetTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := a.deps.Catalog.Trail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (a *API) handleListSightings(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), defaultSightingLimit, 1, maxSightingLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := a.deps.Catalog.Trail(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	sightings, err := a.deps.Catalog.ListSightings(r.Context(), id, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sightings": sightings})
}

// sightingRequest is the wire form of a report. The reporter always comes
// from the token, never from the body.
type sightingRequest struct {
	PredatorID          string  `json:"predator_id"`
	TrailID             string  `json:"trail_id"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	LocationDescription string  `json:"location_description"`
	SightingDate        string  `json:"sighting_date"`
	SightingTime        string  `json:"sighting_time"`
	Weather             string  `json:"weather_conditions"`
	Behavior            string  `json:"behavior_observed"`
	NumberOfAnimals     int     `json:"number_of_animals"`
	Aggressive          bool    `json:"aggressive_behavior"`
	Description         string  `json:"description"`
}

func (req sightingRequest) toSighting(reporter string) (tracker.Sighting, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.SightingDate))
	if err != nil {
		return tracker.Sighting{}, fmt.Errorf("%w: sighting_date must be YYYY-MM-DD", tracker.ErrInvalidSighting)
	}
	return tracker.Sighting{
		PredatorID:          req.PredatorID,
		TrailID:             req.TrailID,
		ReporterID:          reporter,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		LocationDescription: req.LocationDescription,
		Date:                date,
		Time:                req.SightingTime,
		Weather:             req.Weather,
		Behavior:            req.Behavior,
		NumberOfAnimals:     req.NumberOfAnimals,
		Aggressive:          req.Aggressive,
		Description:         req.Description,
	}, nil
}

type sightingResponse struct {
	Sighting   *tracker.Sighting   `json:"sighting"`
	Assessment *tracker.Assessment `json:"assessment,omitempty"`
	Warning    string              `json:"warning,omitempty"`
}

func (a *API) handleReportSighting(w http.ResponseWriter, r *http.Request) {
	var req sightingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in, err := req.toSighting(identity(r).Subject)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recorded, assessment, err := a.deps.Tracker.Report(r.Context(), in)
	if err != nil {
		if recorded == nil {
			handleError(w, r, err)
			return
		}
		// The sighting is stored; only the reassessment failed.
		obs.Logger().Error("trail assessment failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("trail_id", recorded.TrailID),
			zap.String("sighting_id", recorded.ID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusCreated, sightingResponse{
			Sighting: recorded,
			Warning:  "sighting recorded but trail assessment failed",
		})
		return
	}
	writeJSON(w, http.StatusCreated, sightingResponse{Sighting: recorded, Assessment: &assessment})
}

func (a *API) handleAssessTrail(w http.ResponseWriter, r *http.Request) {
	assessment, err := a.deps.Tracker.Reassess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}
