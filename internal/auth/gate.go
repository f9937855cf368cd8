package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"jobtrack/api/internal/rbac"
	"jobtrack/api/internal/store"
)

// DefaultCheckTimeout bounds how long a session check may stay pending.
const DefaultCheckTimeout = 6 * time.Second

const LoginPath = "/login"

type State string

const (
	StateChecking State = "checking"
	StateAuthed   State = "authed"
	StateAnon     State = "anon"
)

// Action is an escape hatch offered while a check is stuck.
type Action struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Href   string `json:"href"`
}

// Identity is the authenticated caller, with the role read from the
// profile row rather than the token.
type Identity struct {
	UserID      string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        rbac.Role `json:"role"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

type Decision struct {
	State    State     `json:"state"`
	Identity *Identity `json:"user,omitempty"`
	LoginURL string    `json:"login_url,omitempty"`
	Actions  []Action  `json:"actions,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Directory is what the gate needs from the user store.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Gate struct {
	secret  []byte
	dir     Directory
	timeout time.Duration
}

func NewGate(secret []byte, dir Directory, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Gate{secret: secret, dir: dir, timeout: timeout}
}

type lookupResult struct {
	user    store.User
	revoked bool
	err     error
}

// Check resolves token into a decision for a request to path. A lookup that
// outlives the gate timeout leaves the decision in StateChecking with retry
// and reset actions.
func (g *Gate) Check(ctx context.Context, token, path string) Decision {
	token = strings.TrimSpace(token)
	if token == "" {
		return anon(path, "")
	}
	claims, err := ParseToken(g.secret, token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return anon(path, "Session expired")
		}
		return anon(path, "")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results := make(chan lookupResult, 1)
	go func() {
		var res lookupResult
		res.revoked, res.err = g.dir.IsAccessTokenRevoked(lookupCtx, claims.ID)
		if res.err == nil && !res.revoked {
			res.user, res.err = g.dir.GetUserByID(lookupCtx, claims.Subject)
		}
		results <- res
	}()

	var res lookupResult
	select {
	case <-lookupCtx.Done():
		return checking(path)
	case res = <-results:
	}

	switch {
	case res.err != nil && (errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled)):
		return checking(path)
	case res.err != nil && errors.Is(res.err, store.ErrNotFound):
		return anon(path, "")
	case res.err != nil:
		return anon(path, "Unable to reach the session store. Check your connection and try again.")
	case res.revoked:
		return anon(path, "")
	}

	return Decision{
		State: StateAuthed,
		Identity: &Identity{
			UserID:      res.user.ID,
			Email:       res.user.Email,
			DisplayName: res.user.DisplayName,
			Role:        rbac.Normalize(res.user.Role),
			TokenID:     claims.ID,
			ExpiresAt:   claims.Expiry(),
		},
	}
}

func anon(path, message string) Decision {
	return Decision{State: StateAnon, LoginURL: LoginURL(path), Error: message}
}

func checking(path string) Decision {
	if !safeReturnPath(path) {
		path = "/"
	}
	return Decision{
		State: StateChecking,
		Error: "The session check is taking longer than expected. Retry or reset your session.",
		Actions: []Action{
			{Name: "retry", Method: "GET", Href: path},
			{Name: "reset", Method: "POST", Href: "/session/logout"},
		},
	}
}

// LoginURL points at the login page and carries path back as next when it
// is a local path.
func LoginURL(path string) string {
	if !safeReturnPath(path) || path == LoginPath {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(path)
}

func safeReturnPath(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") && !strings.Contains(path, `\`)
}
