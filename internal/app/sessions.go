package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobtrack/api/internal/auth"
	"jobtrack/api/internal/authpw"
	"jobtrack/api/internal/rbac"
	"jobtrack/api/internal/store"
	"jobtrack/api/internal/util"
)

type userStore interface {
	authpw.UserStore
	GetUserByID(ctx context.Context, id string) (store.User, error)
	EnsureUser(ctx context.Context, email, role string) (store.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (store.User, error)
	SetUserRole(ctx context.Context, userID, role string) (store.User, error)
}

// sessionStore keeps refresh sessions and revoked access tokens. Postgres,
// memory and Redis stores all satisfy it.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, name, verificationURL string) error
	SendPasswordResetEmail(to, name, resetURL string) error
}

type SessionConfig struct {
	JWTSecret     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CheckTimeout  time.Duration
	PublicBaseURL string
}

// Accounts issues and revokes dashboard sessions and manages profiles.
type Accounts struct {
	cfg      SessionConfig
	users    userStore
	sessions sessionStore
	password *authpw.Service
	mail     mailer
	gate     *auth.Gate
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccounts wires the password provider and session gate. mail may be nil.
func NewAccounts(cfg SessionConfig, users userStore, sessions sessionStore, mail mailer, logger *zap.Logger) *Accounts {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	a := &Accounts{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		password: authpw.NewService(users, logger.Named("authpw")),
		mail:     mail,
		logger:   logger,
		now:      time.Now,
	}
	a.gate = auth.NewGate(cfg.JWTSecret, directory{users: users, sessions: sessions}, cfg.CheckTimeout)
	return a
}

// directory joins the user store and the session store for the gate.
type directory struct {
	users    userStore
	sessions sessionStore
}

func (d directory) GetUserByID(ctx context.Context, id string) (store.User, error) {
	return d.users.GetUserByID(ctx, id)
}

func (d directory) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return d.sessions.IsAccessTokenRevoked(ctx, jti)
}

func (a *Accounts) Gate() *auth.Gate {
	return a.gate
}

func (a *Accounts) mailConfigured() bool {
	return a.mail != nil && a.mail.IsConfigured()
}

type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         store.User `json:"-"`
}

func (a *Accounts) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := a.now()
	claims := auth.NewClaims(user.ID, user.DisplayName, user.Email, string(rbac.Normalize(user.Role)), util.NewID("jti"), now, a.cfg.AccessTTL)
	token, err := auth.IssueToken(a.cfg.JWTSecret, claims)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	if err := a.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(a.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{AccessToken: token, RefreshToken: refresh, ExpiresAt: claims.Expiry(), User: user}, nil
}

type SignUpResult struct {
	UserID            string
	VerificationToken string
}

// SignUp registers a password account. The verification token is mailed
// when SMTP is configured and returned otherwise.
func (a *Accounts) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	resp, err := a.password.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: strings.TrimSpace(displayName)})
	if err != nil {
		return SignUpResult{}, err
	}
	result := SignUpResult{UserID: resp.User.ID}
	if !a.mailConfigured() {
		result.VerificationToken = resp.VerificationToken
		return result, nil
	}
	link := a.cfg.PublicBaseURL + "/verify-email?token=" + resp.VerificationToken
	if err := a.mail.SendVerificationEmail(resp.User.Email, resp.User.DisplayName, link); err != nil {
		a.logger.Error("send verification email", zap.String("user_id", resp.User.ID), zap.Error(err))
	}
	return result, nil
}

func (a *Accounts) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := a.password.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return a.issueSession(ctx, user)
}

func (a *Accounts) VerifyEmail(ctx context.Context, token string) error {
	return a.password.VerifyEmail(ctx, token)
}

// RequestPasswordReset never reveals whether email is registered. The
// returned token is non-empty only when mail is not configured.
func (a *Accounts) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := a.password.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return "", err
	}
	if !a.mailConfigured() {
		return token, nil
	}
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	link := a.cfg.PublicBaseURL + "/reset-password?token=" + token
	if err := a.mail.SendPasswordResetEmail(user.Email, user.DisplayName, link); err != nil {
		a.logger.Error("send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return "", nil
}

func (a *Accounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	return a.password.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

// Refresh rotates a refresh token. The old token is revoked before the new
// session is issued.
func (a *Accounts) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, UnauthorizedError()
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := a.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, UnauthorizedError()
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	// The Redis session store only knows the user id.
	user, err := a.users.GetUserByID(ctx, ref.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, UnauthorizedError()
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := a.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return a.issueSession(ctx, user)
}

// Logout revokes whichever of the access and refresh tokens were supplied.
// Unknown or expired tokens are ignored.
func (a *Accounts) Logout(ctx context.Context, accessToken, refreshToken string) {
	if accessToken != "" {
		if claims, err := auth.ParseToken(a.cfg.JWTSecret, accessToken); err == nil {
			if err := a.sessions.RevokeAccessToken(ctx, claims.ID, claims.Expiry()); err != nil {
				a.logger.Warn("revoke access token", zap.Error(err))
			}
		}
	}
	if refreshToken != "" {
		if err := a.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			a.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
}

// Check reports the session state for token on a request to path.
func (a *Accounts) Check(ctx context.Context, token, path string) auth.Decision {
	return a.gate.Check(ctx, token, path)
}

type Profile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	Role            rbac.Role `json:"role"`
	NeedsOnboarding bool      `json:"needs_onboarding"`
	CreatedAt       time.Time `json:"created_at"`
}

func profileOf(user store.User) Profile {
	return Profile{
		ID:              user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		Role:            rbac.Normalize(user.Role),
		NeedsOnboarding: user.NeedsOnboarding(),
		CreatedAt:       user.CreatedAt,
	}
}

// Me returns the caller's profile, creating the row when the identity
// has none yet.
func (a *Accounts) Me(ctx context.Context, identity auth.Identity) (Profile, error) {
	user, err := a.users.GetUserByID(ctx, identity.UserID)
	if errors.Is(err, store.ErrNotFound) && identity.Email != "" {
		user, err = a.users.EnsureUser(ctx, identity.Email, store.DefaultRole)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profileOf(user), nil
}

func (a *Accounts) UpdateMe(ctx context.Context, identity auth.Identity, displayName string) (Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Profile{}, ValidationError("display_name required")
	}
	if len(displayName) > 120 {
		return Profile{}, ValidationError("display_name must be at most 120 characters")
	}
	user, err := a.users.UpdateDisplayName(ctx, identity.UserID, displayName)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return profileOf(user), nil
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (a *Accounts) SetRole(ctx context.Context, actor auth.Identity, userID, rawRole string) (Profile, error) {
	role, ok := rbac.Parse(rawRole)
	if !ok {
		return Profile{}, ValidationError(fmt.Sprintf("unknown role %q", rawRole))
	}
	if actor.UserID == userID && role != rbac.RoleAdmin {
		return Profile{}, ForbiddenError("Admins cannot change their own role")
	}
	user, err := a.users.SetUserRole(ctx, userID, string(role))
	if err != nil {
		return Profile{}, fmt.Errorf("set role: %w", err)
	}
	a.logger.Info("role changed", zap.String("user_id", userID), zap.String("role", string(role)), zap.String("by", actor.UserID))
	return profileOf(user), nil
}

// SetRoleByEmail is the operator path used by the CLI. The user is created
// when missing.
func (a *Accounts) SetRoleByEmail(ctx context.Context, email, rawRole string) (Profile, error) {
	role, ok := rbac.Parse(rawRole)
	if !ok {
		return Profile{}, ValidationError(fmt.Sprintf("unknown role %q", rawRole))
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return Profile{}, ValidationError("email address is not valid")
	}
	user, err := a.users.EnsureUser(ctx, email, string(role))
	if err != nil {
		return Profile{}, fmt.Errorf("ensure user: %w", err)
	}
	if user.Role != string(role) {
		if user, err = a.users.SetUserRole(ctx, user.ID, string(role)); err != nil {
			return Profile{}, fmt.Errorf("set role: %w", err)
		}
	}
	return profileOf(user), nil
}
