package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"jobtrack/api/internal/rbac"
)

// SessionCookie carries the access token for browser clients.
const SessionCookie = "jobtrack_session"

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Require admits only authed callers whose role is at least need.
func (g *Gate) Require(need rbac.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.RequestURI()
		decision := g.Check(r.Context(), TokenFromRequest(r), path)

		switch decision.State {
		case StateChecking:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, decision)
			return
		case StateAnon:
			if wantsHTML(r) {
				http.Redirect(w, r, decision.LoginURL, http.StatusSeeOther)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":     "Unauthorized",
				"state":     decision.State,
				"login_url": decision.LoginURL,
			})
			return
		}

		identity := *decision.Identity
		if !rbac.AtLeast(identity.Role, need) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":    "Access restricted",
				"role":     identity.Role,
				"required": need,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
