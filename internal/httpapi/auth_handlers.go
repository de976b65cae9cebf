package httpapi

import (
	"net/http"
	"time"

	"trailwatch.org/internal/audit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	token, err := a.deps.Login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject":    token.Identity.Subject,
		"role":       token.Identity.Role.String(),
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token.Value,
		Role:      token.Identity.Role.String(),
		ExpiresAt: token.ExpiresAt,
	})
}

// handleLogout acknowledges the request. Tokens are stateless and stay
// valid until they expire; clients are expected to discard theirs.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "logged_out",
		"note":   "token remains valid until expiry",
	})
}
