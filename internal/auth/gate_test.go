package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jobtrack/api/internal/rbac"
	"jobtrack/api/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDirectory struct {
	users       map[string]store.User
	revoked     map[string]bool
	block       bool
	errOverride error
}

func (f *fakeDirectory) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.errOverride != nil {
		return store.User{}, f.errOverride
	}
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeDirectory) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.revoked[jti], nil
}

var gateSecret = []byte("gate-secret")

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]store.User{
			"u-viewer": {ID: "u-viewer", Email: "val@example.com", Role: "viewer"},
			"u-staff":  {ID: "u-staff", Email: "sam@example.com", DisplayName: "Sam", Role: "staff"},
		},
		revoked: map[string]bool{},
	}
}

func tokenFor(t *testing.T, userID, role, jti string) string {
	t.Helper()
	token, err := IssueToken(gateSecret, NewClaims(userID, "", "", role, jti, time.Now(), time.Hour))
	require.NoError(t, err)
	return token
}

func TestGateCheckStates(t *testing.T) {
	dir := newDirectory()
	dir.revoked["jti-revoked"] = true
	gate := NewGate(gateSecret, dir, time.Second)
	ctx := context.Background()

	missing := gate.Check(ctx, "", "/board")
	assert.Equal(t, StateAnon, missing.State)
	assert.Equal(t, "/login?next=%2Fboard", missing.LoginURL)

	garbage := gate.Check(ctx, "not-a-token", "/board")
	assert.Equal(t, StateAnon, garbage.State)

	revoked := gate.Check(ctx, tokenFor(t, "u-staff", "staff", "jti-revoked"), "/board")
	assert.Equal(t, StateAnon, revoked.State)

	unknownUser := gate.Check(ctx, tokenFor(t, "u-gone", "admin", "jti-2"), "/board")
	assert.Equal(t, StateAnon, unknownUser.State)

	authed := gate.Check(ctx, tokenFor(t, "u-staff", "viewer", "jti-3"), "/board")
	require.Equal(t, StateAuthed, authed.State)
	assert.Equal(t, rbac.RoleStaff, authed.Identity.Role, "role comes from the profile row")
	assert.Equal(t, "jti-3", authed.Identity.TokenID)
}

func TestGateCheckTimesOutIntoChecking(t *testing.T) {
	dir := newDirectory()
	dir.block = true
	gate := NewGate(gateSecret, dir, 20*time.Millisecond)

	decision := gate.Check(context.Background(), tokenFor(t, "u-staff", "staff", "jti-1"), "/calendar")
	require.Equal(t, StateChecking, decision.State)
	require.Len(t, decision.Actions, 2)
	assert.Equal(t, "retry", decision.Actions[0].Name)
	assert.Equal(t, "/calendar", decision.Actions[0].Href)
	assert.Equal(t, "reset", decision.Actions[1].Name)
}

func TestGateCheckStoreErrorIsAnon(t *testing.T) {
	dir := newDirectory()
	dir.errOverride = errors.New("connection refused")
	gate := NewGate(gateSecret, dir, time.Second)

	decision := gate.Check(context.Background(), tokenFor(t, "u-staff", "staff", "jti-1"), "/board")
	assert.Equal(t, StateAnon, decision.State)
	assert.NotEmpty(t, decision.Error)
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login?next=%2Fjobs%2F7%3Ftab%3Dactivity", LoginURL("/jobs/7?tab=activity"))
	assert.Equal(t, "/login", LoginURL("//evil.example.com"))
	assert.Equal(t, "/login", LoginURL("https://evil.example.com"))
	assert.Equal(t, "/login", LoginURL(`/\evil.example.com`))
	assert.Equal(t, "/login", LoginURL(`/jobs\..\\evil.example.com`))
	assert.Equal(t, "/login", LoginURL("/login"))
}

func TestRequireMiddleware(t *testing.T) {
	dir := newDirectory()
	gate := NewGate(gateSecret, dir, time.Second)

	var seen Identity
	handler := gate.Require(rbac.RoleStaff, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anon json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/board/move", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"login_url":"/login?next=%2Fboard%2Fmove"`)
	})

	t.Run("anon browser redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/board/move", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login?next=%2Fboard%2Fmove", rec.Header().Get("Location"))
	})

	t.Run("role too low", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/board/move", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u-viewer", "viewer", "jti-v"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Access restricted")
	})

	t.Run("cookie session passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/board/move", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tokenFor(t, "u-staff", "staff", "jti-s")})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u-staff", seen.UserID)
	})

	t.Run("stuck check is 503", func(t *testing.T) {
		blocked := newDirectory()
		blocked.block = true
		slow := NewGate(gateSecret, blocked, 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/board", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u-staff", "staff", "jti-b"))
		rec := httptest.NewRecorder()
		slow.Require(rbac.RoleViewer, handler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"state":"checking"`)
	})
}
