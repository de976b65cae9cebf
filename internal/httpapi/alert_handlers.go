package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/audit"
	"trailwatch.org/internal/store"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 500
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), defaultAlertLimit, 1, maxAlertLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	filter := store.AlertFilter{
		TrailID:  strings.TrimSpace(q.Get("trail_id")),
		ForestID: strings.TrimSpace(q.Get("forest_id")),
		Limit:    limit,
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "active must be a boolean")
			return
		}
		filter.ActiveOnly = active
	}
	alerts, err := a.deps.Catalog.ListAlerts(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var in alert.ManualAlert
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	actor := identity(r).Subject
	created, err := a.deps.Alerts.CreateManual(r.Context(), in, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "alert.created", map[string]any{
		"alert_id":   created.ID,
		"alert_type": string(created.Type),
		"scope":      created.Scope.Key(),
		"severity":   created.Severity.String(),
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleDeactivateAlert(w http.ResponseWriter, r *http.Request) {
	out, err := a.deps.Alerts.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "alert.deactivated", map[string]any{
		"alert_id": out.ID,
		"scope":    out.Scope.Key(),
	})
	writeJSON(w, http.StatusOK, out)
}
