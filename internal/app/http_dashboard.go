package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jobtrack/api/internal/auth"
	"jobtrack/api/internal/dashboard"
	"jobtrack/api/internal/export"
	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/rbac"
	"jobtrack/api/internal/search"
)

type exporter interface {
	JobTicket(ctx context.Context, jobID int64) (*export.Result, error)
	Board(ctx context.Context, list []jobs.Job) (*export.Result, error)
}

type DashboardConfig struct {
	CORSOrigin    string
	SecureCookies bool
	Logger        *zap.Logger
	Metrics       *Metrics
	Tracer        trace.Tracer
	// Exports may be nil; export routes then answer 503.
	Exports exporter
}

// DashboardServer serves the session-authenticated board, calendar and
// account routes.
type DashboardServer struct {
	service  *Service
	accounts *Accounts
	cfg      DashboardConfig
	logger   *zap.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

func NewDashboardServer(service *Service, accounts *Accounts, cfg DashboardConfig) *DashboardServer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	s := &DashboardServer{
		service:  service,
		accounts: accounts,
		cfg:      cfg,
		logger:   logger.Named("dashboard"),
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	return s
}

func (s *DashboardServer) routes() {
	gate := s.accounts.Gate()
	viewer := func(h http.HandlerFunc) http.Handler { return gate.Require(rbac.RoleViewer, h) }
	staff := func(h http.HandlerFunc) http.Handler { return gate.Require(rbac.RoleStaff, h) }
	admin := func(h http.HandlerFunc) http.Handler { return gate.Require(rbac.RoleAdmin, h) }

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("POST /auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /auth/signin", s.handleSignIn)
	s.mux.HandleFunc("POST /auth/verify-email", s.handleVerifyEmail)
	s.mux.HandleFunc("POST /auth/reset-password/request", s.handleRequestReset)
	s.mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	s.mux.HandleFunc("GET /session", s.handleSession)
	s.mux.HandleFunc("POST /session/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /session/logout", s.handleLogout)

	s.mux.Handle("GET /me", viewer(s.handleGetMe))
	s.mux.Handle("PUT /me", viewer(s.handlePutMe))
	s.mux.Handle("GET /board", viewer(s.handleBoard))
	s.mux.Handle("GET /calendar", viewer(s.handleCalendar))
	s.mux.Handle("GET /jobs/{id}", viewer(s.handleJob))
	s.mux.Handle("GET /search", viewer(s.handleSearch))

	s.mux.Handle("POST /board/move", staff(s.handleMove))
	s.mux.Handle("GET /jobs/{id}/ticket.pdf", staff(s.handleTicket))
	s.mux.Handle("GET /export/board.xlsx", staff(s.handleBoardExport))

	s.mux.Handle("PUT /admin/users/{id}/role", admin(s.handleSetRole))

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, NotFoundError())
	})
}

func (s *DashboardServer) Handler() http.Handler {
	handler := withTracing(s.cfg.Tracer, s.mux)
	handler = s.cfg.Metrics.withHTTPMetrics("dashboard", handler)
	return withMiddleware(s.logger, s.cfg.CORSOrigin, "Content-Type, Authorization, X-Request-ID", handler)
}

func (s *DashboardServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeMappedError(s.logger, w, r, err)
}

func (s *DashboardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *DashboardServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	database := map[string]any{"status": "ok"}
	if err := s.service.Ping(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		database = map[string]any{"status": "error"}
		s.logger.Warn("readiness check failed", zap.Error(err))
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"checks": map[string]any{"database": database},
	})
}

func (s *DashboardServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.accounts.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	response := map[string]any{
		"user_id": result.UserID,
		"message": "Please check your email to verify your account",
	}
	if result.VerificationToken != "" {
		response["dev_verification_token"] = result.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *DashboardServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.accounts.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, session)
}

func (s *DashboardServer) writeSession(w http.ResponseWriter, session Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"expires_at":    session.ExpiresAt.Unix(),
		"user":          profileOf(session.User),
	})
}

func (s *DashboardServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.VerifyEmail(r.Context(), body.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *DashboardServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.accounts.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.logger.Error("password reset request failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
	response := map[string]any{"message": "If an account exists, a reset email has been sent"}
	if token != "" {
		response["dev_reset_token"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *DashboardServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

// handleSession always answers 200 with the gate decision so the client can
// render the checking, authed and anon states itself.
func (s *DashboardServer) handleSession(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next == "" {
		next = "/"
	}
	decision := s.accounts.Check(r.Context(), auth.TokenFromRequest(r), next)
	writeJSON(w, http.StatusOK, decision)
}

func (s *DashboardServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.accounts.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, session)
}

func (s *DashboardServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.ContentLength != 0 {
		_ = decodeBody(w, r, &body)
	}
	s.accounts.Logout(r.Context(), auth.TokenFromRequest(r), body.RefreshToken)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "login_url": auth.LoginPath})
}

func identityOf(r *http.Request) auth.Identity {
	identity, _ := auth.IdentityFrom(r.Context())
	return identity
}

func (s *DashboardServer) handleGetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.accounts.Me(r.Context(), identityOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *DashboardServer) handlePutMe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.accounts.UpdateMe(r.Context(), identityOf(r), body.DisplayName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// scopedJobs loads the newest jobs and applies the scope query parameter.
func (s *DashboardServer) scopedJobs(r *http.Request) ([]jobs.Job, dashboard.Scope, error) {
	scope, err := dashboard.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		return nil, "", ValidationError(err.Error())
	}
	list, err := s.service.ListJobs(r.Context(), "")
	if err != nil {
		return nil, "", err
	}
	return dashboard.Scoped(list, scope, identityOf(r).Email), scope, nil
}

func (s *DashboardServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	list, scope, err := s.scopedJobs(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":   scope,
		"columns": dashboard.Bucket(list).Columns,
	})
}

func (s *DashboardServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	month := dashboard.MonthOf(s.now())
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := dashboard.ParseMonth(raw)
		if err != nil {
			s.writeError(w, r, ValidationError(err.Error()))
			return
		}
		month = parsed
	}
	list, scope, err := s.scopedJobs(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":    scope,
		"calendar": dashboard.Calendar(list, month),
		"prev":     month.Prev().String(),
		"next":     month.Next().String(),
	})
}

func (s *DashboardServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, NotFoundError())
		return
	}
	detail, err := s.service.JobDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *DashboardServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:       query.Get("q"),
		FilterType: search.ResultType(strings.ToLower(query.Get("type"))),
	}
	if q.FilterType != "" && q.FilterType != search.ResultJob && q.FilterType != search.ResultActivity {
		s.writeError(w, r, ValidationError("type must be job or activity"))
		return
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(w, r, ValidationError("unknown status "+strconv.Quote(raw)))
			return
		}
		q.Status = status
	}
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	q.Offset, _ = strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *DashboardServer) handleMove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobID  int64  `json:"job_id"`
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.service.MoveJob(r.Context(), body.JobID, body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("job moved",
		zap.Int64("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.String("by", identityOf(r).UserID),
	)
	writeJSON(w, http.StatusOK, job)
}

func (s *DashboardServer) exportsUnavailable(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Exports != nil {
		return false
	}
	s.writeError(w, r, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Exports are not configured", nil))
	return true
}

func (s *DashboardServer) handleTicket(w http.ResponseWriter, r *http.Request) {
	if s.exportsUnavailable(w, r) {
		return
	}
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, NotFoundError())
		return
	}
	result, err := s.cfg.Exports.JobTicket(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, result)
}

func (s *DashboardServer) handleBoardExport(w http.ResponseWriter, r *http.Request) {
	if s.exportsUnavailable(w, r) {
		return
	}
	list, _, err := s.scopedJobs(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.cfg.Exports.Board(r.Context(), list)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, result)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	if result.URL != "" {
		w.Header().Set("X-Archive-URL", result.URL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *DashboardServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.accounts.SetRole(r.Context(), identityOf(r), r.PathValue("id"), body.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
