package httpapi

import (
	"errors"
	"net/http"

	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/obs"
)

const authHeader = "Authorization"

// requireToken adapts an access guard to chi middleware. Rejections are
// 401 for missing or bad tokens and 403 for a valid token lacking the role.
func requireToken(g auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authorize(r.Header.Get(authHeader))
			if err != nil {
				var ae *auth.AccessError
				if !errors.As(err, &ae) {
					handleError(w, r, err)
					return
				}
				obs.RecordAuthRejection(ae.Kind.String())
				status := http.StatusUnauthorized
				if ae.Kind == auth.Unauthorized {
					status = http.StatusForbidden
				} else {
					w.Header().Set("WWW-Authenticate", `Bearer realm="trailwatch"`)
				}
				writeError(w, r, status, ae.Kind.String(), ae.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

// identity returns the caller placed in the context by requireToken.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
