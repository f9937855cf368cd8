package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack/api/internal/auth"
	"jobtrack/api/internal/export"
	"jobtrack/api/internal/jobs"
)

const testPassword = "correct-horse"

type fakeExporter struct {
	ticketFn func(ctx context.Context, jobID int64) (*export.Result, error)
	boardFn  func(ctx context.Context, list []jobs.Job) (*export.Result, error)
}

func (f *fakeExporter) JobTicket(ctx context.Context, jobID int64) (*export.Result, error) {
	return f.ticketFn(ctx, jobID)
}

func (f *fakeExporter) Board(ctx context.Context, list []jobs.Job) (*export.Result, error) {
	return f.boardFn(ctx, list)
}

type dashboardFixture struct {
	store    *fakeStore
	accounts *Accounts
	handler  http.Handler
}

func newDashboardFixture(t *testing.T, exports exporter) *dashboardFixture {
	t.Helper()
	fs := newFakeStore()
	accounts := NewAccounts(SessionConfig{
		JWTSecret:  []byte("dashboard-test-secret"),
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, fs.MemoryStore, fs.MemoryStore, nil, nil)
	cfg := DashboardConfig{}
	if exports != nil {
		cfg.Exports = exports
	}
	server := NewDashboardServer(NewService(fs, nil), accounts, cfg)
	return &dashboardFixture{store: fs, accounts: accounts, handler: server.Handler()}
}

type signedIn struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

func (f *dashboardFixture) bearer(s signedIn) map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.AccessToken}
}

// signUp registers, verifies and signs in email with role.
func (f *dashboardFixture) signUp(t *testing.T, email, role string) signedIn {
	t.Helper()
	rr := doJSON(t, f.handler, http.MethodPost, "/auth/signup",
		`{"email":"`+email+`","password":"`+testPassword+`","display_name":"Sam"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeMap(t, rr)
	userID := created["user_id"].(string)
	token := created["dev_verification_token"].(string)
	require.NotEmpty(t, token)

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/verify-email", `{"token":"`+token+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	if role != "" {
		_, err := f.store.SetUserRole(context.Background(), userID, role)
		require.NoError(t, err)
	}

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signin",
		`{"email":"`+email+`","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	session := decodeMap(t, rr)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected session cookie")
	assert.True(t, cookie.HttpOnly)

	return signedIn{
		UserID:       userID,
		AccessToken:  session["access_token"].(string),
		RefreshToken: session["refresh_token"].(string),
	}
}

func (f *dashboardFixture) seedJob(t *testing.T, jobNo, owner string, status jobs.Status, due string) jobs.Job {
	t.Helper()
	input := jobs.NewJob{JobNo: jobNo, Title: "Job " + jobNo, Status: status}
	if owner != "" {
		input.Owner = &owner
	}
	if due != "" {
		date, err := jobs.ParseDate(due)
		require.NoError(t, err)
		input.InHandsDate = &date
	}
	job, err := f.store.CreateJob(context.Background(), input)
	require.NoError(t, err)
	return job
}

func TestDashboardSignInFlow(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "Sam@Example.com", "")

	rr := doJSON(t, f.handler, http.MethodGet, "/session?next=/board", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code)
	var decision auth.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.Equal(t, auth.StateAuthed, decision.State)
	require.NotNil(t, decision.Identity)
	assert.Equal(t, "sam@example.com", decision.Identity.Email)

	rr = doJSON(t, f.handler, http.MethodGet, "/me", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	me := decodeMap(t, rr)
	assert.Equal(t, "viewer", me["role"])
	assert.Equal(t, false, me["needs_onboarding"])

	rr = doJSON(t, f.handler, http.MethodPut, "/me", `{"display_name":"  Sam Lee "}`, f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Sam Lee", decodeMap(t, rr)["display_name"])

	rr = doJSON(t, f.handler, http.MethodPut, "/me", `{"display_name":" "}`, f.bearer(user))
	assertError(t, rr, http.StatusBadRequest, "display_name required")
}

func TestDashboardSessionCookieAuthenticates(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")

	req := httptest.NewRequest(http.MethodGet, "/board", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: user.AccessToken})
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestDashboardSignInErrors(t *testing.T) {
	f := newDashboardFixture(t, nil)
	rr := doJSON(t, f.handler, http.MethodPost, "/auth/signup",
		`{"email":"new@example.com","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signin",
		`{"email":"new@example.com","password":"`+testPassword+`"}`, nil)
	assertError(t, rr, http.StatusForbidden, "Please verify your email before signing in")

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signin",
		`{"email":"new@example.com","password":"wrong-password"}`, nil)
	assertError(t, rr, http.StatusUnauthorized, "Invalid email or password")

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signup",
		`{"email":"new@example.com","password":"`+testPassword+`"}`, nil)
	assertError(t, rr, http.StatusConflict, "Email already registered")

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signup", `{"email":"x@example.com","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/verify-email", `{"token":"unknown"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardAnonymousRequests(t *testing.T) {
	f := newDashboardFixture(t, nil)

	rr := doJSON(t, f.handler, http.MethodGet, "/board", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "/login?next=%2Fboard", decodeMap(t, rr)["login_url"])

	rr = doJSON(t, f.handler, http.MethodGet, "/board", "", map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?next=%2Fboard", rr.Header().Get("Location"))

	rr = doJSON(t, f.handler, http.MethodGet, "/session", "", map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "anon", decodeMap(t, rr)["state"])

	rr = doJSON(t, f.handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, f.handler, http.MethodGet, "/nowhere", "", nil)
	assertError(t, rr, http.StatusNotFound, "Not found")
}

func TestDashboardBoardScopes(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")
	f.seedJob(t, "J1", "sam@example.com", jobs.StatusIntake, "")
	f.seedJob(t, "J2", "alex@example.com", jobs.StatusProof, "")
	f.seedJob(t, "J3", "SAM@example.com", jobs.StatusComplete, "")

	var board struct {
		Scope   string `json:"scope"`
		Columns []struct {
			Status string     `json:"status"`
			Jobs   []jobs.Job `json:"jobs"`
		} `json:"columns"`
	}
	count := func() int {
		n := 0
		for _, column := range board.Columns {
			n += len(column.Jobs)
		}
		return n
	}

	rr := doJSON(t, f.handler, http.MethodGet, "/board", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	assert.Equal(t, "all", board.Scope)
	require.Len(t, board.Columns, len(jobs.Statuses()))
	assert.Equal(t, "intake", board.Columns[0].Status)
	assert.Equal(t, 3, count())

	rr = doJSON(t, f.handler, http.MethodGet, "/board?scope=mine", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	assert.Equal(t, "mine", board.Scope)
	assert.Equal(t, 2, count())

	rr = doJSON(t, f.handler, http.MethodGet, "/board?scope=team", "", f.bearer(user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardCalendar(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")
	f.seedJob(t, "J1", "", jobs.StatusIntake, "2024-03-20")
	f.seedJob(t, "J2", "", jobs.StatusProof, "2024-03-02")
	f.seedJob(t, "J3", "", jobs.StatusProof, "2024-04-01")
	f.seedJob(t, "J4", "", jobs.StatusProof, "")

	rr := doJSON(t, f.handler, http.MethodGet, "/calendar?month=2024-03", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var payload struct {
		Calendar struct {
			Month string `json:"month"`
			Days  []struct {
				Date string `json:"date"`
			} `json:"days"`
			Unscheduled []jobs.Job `json:"unscheduled"`
		} `json:"calendar"`
		Prev string `json:"prev"`
		Next string `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "2024-03", payload.Calendar.Month)
	require.Len(t, payload.Calendar.Days, 2)
	assert.Equal(t, "2024-03-02", payload.Calendar.Days[0].Date)
	assert.Equal(t, "2024-03-20", payload.Calendar.Days[1].Date)
	assert.Len(t, payload.Calendar.Unscheduled, 1)
	assert.Equal(t, "2024-02", payload.Prev)
	assert.Equal(t, "2024-04", payload.Next)

	rr = doJSON(t, f.handler, http.MethodGet, "/calendar?month=March", "", f.bearer(user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardMoveNeedsStaff(t *testing.T) {
	f := newDashboardFixture(t, nil)
	viewer := f.signUp(t, "viewer@example.com", "")
	staff := f.signUp(t, "staff@example.com", "staff")
	job := f.seedJob(t, "J1", "", jobs.StatusIntake, "")
	body := `{"job_id":` + jsonNumber(job.ID) + `,"status":"proof"}`

	rr := doJSON(t, f.handler, http.MethodPost, "/board/move", body, f.bearer(viewer))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "staff", decodeMap(t, rr)["required"])

	rr = doJSON(t, f.handler, http.MethodPost, "/board/move", body, f.bearer(staff))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "proof", decodeMap(t, rr)["status"])

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProof, stored.Status)

	rr = doJSON(t, f.handler, http.MethodPost, "/board/move", `{"job_id":`+jsonNumber(job.ID)+`,"status":"shipped"}`, f.bearer(staff))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doJSON(t, f.handler, http.MethodPost, "/board/move", `{"job_id":999,"status":"proof"}`, f.bearer(staff))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardRoleIsReadFromProfile(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")
	job := f.seedJob(t, "J1", "", jobs.StatusIntake, "")
	body := `{"job_id":` + jsonNumber(job.ID) + `,"status":"proof"}`

	rr := doJSON(t, f.handler, http.MethodPost, "/board/move", body, f.bearer(user))
	require.Equal(t, http.StatusForbidden, rr.Code)

	_, err := f.store.SetUserRole(context.Background(), user.UserID, "staff")
	require.NoError(t, err)

	rr = doJSON(t, f.handler, http.MethodPost, "/board/move", body, f.bearer(user))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestDashboardAdminSetsRoles(t *testing.T) {
	f := newDashboardFixture(t, nil)
	admin := f.signUp(t, "admin@example.com", "admin")
	staff := f.signUp(t, "staff@example.com", "staff")

	rr := doJSON(t, f.handler, http.MethodPut, "/admin/users/"+admin.UserID+"/role", `{"role":"staff"}`, f.bearer(staff))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, f.handler, http.MethodPut, "/admin/users/"+staff.UserID+"/role", `{"role":"viewer"}`, f.bearer(admin))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "viewer", decodeMap(t, rr)["role"])

	rr = doJSON(t, f.handler, http.MethodPut, "/admin/users/"+admin.UserID+"/role", `{"role":"viewer"}`, f.bearer(admin))
	assertError(t, rr, http.StatusForbidden, "Admins cannot change their own role")

	rr = doJSON(t, f.handler, http.MethodPut, "/admin/users/"+staff.UserID+"/role", `{"role":"owner"}`, f.bearer(admin))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardRefreshRotatesToken(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")

	rr := doJSON(t, f.handler, http.MethodPost, "/session/refresh", `{"refresh_token":"`+user.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rotated := decodeMap(t, rr)
	assert.NotEqual(t, user.RefreshToken, rotated["refresh_token"])

	rr = doJSON(t, f.handler, http.MethodPost, "/session/refresh", `{"refresh_token":"`+user.RefreshToken+`"}`, nil)
	assertError(t, rr, http.StatusUnauthorized, "Unauthorized")
}

func TestDashboardLogoutRevokesAccessToken(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")

	rr := doJSON(t, f.handler, http.MethodPost, "/session/logout", `{"refresh_token":"`+user.RefreshToken+`"}`, f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "/login", decodeMap(t, rr)["login_url"])

	rr = doJSON(t, f.handler, http.MethodGet, "/me", "", f.bearer(user))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, f.handler, http.MethodPost, "/session/refresh", `{"refresh_token":"`+user.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDashboardPasswordReset(t *testing.T) {
	f := newDashboardFixture(t, nil)
	f.signUp(t, "sam@example.com", "")

	rr := doJSON(t, f.handler, http.MethodPost, "/auth/reset-password/request", `{"email":"nobody@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decodeMap(t, rr)["dev_reset_token"])

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/reset-password/request", `{"email":"sam@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	token, _ := decodeMap(t, rr)["dev_reset_token"].(string)
	require.NotEmpty(t, token)

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","new_password":"another-secret"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/signin", `{"email":"sam@example.com","password":"another-secret"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, f.handler, http.MethodPost, "/auth/reset-password", `{"token":"`+token+`","new_password":"third-secret"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardExports(t *testing.T) {
	var exported []jobs.Job
	exports := &fakeExporter{
		boardFn: func(_ context.Context, list []jobs.Job) (*export.Result, error) {
			exported = list
			return &export.Result{Data: []byte("xlsx"), Filename: "board-2024-03-01.xlsx", MimeType: export.MimeXLSX, URL: "https://files.example.com/b"}, nil
		},
		ticketFn: func(context.Context, int64) (*export.Result, error) {
			return nil, export.ErrPDFDependencyMissing
		},
	}
	f := newDashboardFixture(t, exports)
	staff := f.signUp(t, "staff@example.com", "staff")
	viewer := f.signUp(t, "viewer@example.com", "")
	f.seedJob(t, "J1", "staff@example.com", jobs.StatusIntake, "")
	f.seedJob(t, "J2", "other@example.com", jobs.StatusIntake, "")

	rr := doJSON(t, f.handler, http.MethodGet, "/export/board.xlsx?scope=mine", "", f.bearer(staff))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, export.MimeXLSX, rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="board-2024-03-01.xlsx"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "https://files.example.com/b", rr.Header().Get("X-Archive-URL"))
	assert.Equal(t, "xlsx", rr.Body.String())
	require.Len(t, exported, 1)
	assert.Equal(t, "J1", exported[0].JobNo)

	rr = doJSON(t, f.handler, http.MethodGet, "/jobs/1/ticket.pdf", "", f.bearer(staff))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = doJSON(t, f.handler, http.MethodGet, "/export/board.xlsx", "", f.bearer(viewer))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDashboardExportsUnconfigured(t *testing.T) {
	f := newDashboardFixture(t, nil)
	staff := f.signUp(t, "staff@example.com", "staff")

	rr := doJSON(t, f.handler, http.MethodGet, "/export/board.xlsx", "", f.bearer(staff))

	assertError(t, rr, http.StatusServiceUnavailable, "Exports are not configured")
}

func TestDashboardReadiness(t *testing.T) {
	f := newDashboardFixture(t, nil)

	rr := doJSON(t, f.handler, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	f.store.pingFn = func(context.Context) error { return errors.New("db down") }
	rr = doJSON(t, f.handler, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, decodeMap(t, rr)["ok"])
}

func TestDashboardJobDetailAndSearch(t *testing.T) {
	f := newDashboardFixture(t, nil)
	user := f.signUp(t, "sam@example.com", "")
	job := f.seedJob(t, "J1", "", jobs.StatusIntake, "")

	rr := doJSON(t, f.handler, http.MethodGet, "/jobs/"+jsonNumber(job.ID), "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, f.handler, http.MethodGet, "/search?q=banner", "", f.bearer(user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []any{}, decodeMap(t, rr)["results"])

	rr = doJSON(t, f.handler, http.MethodGet, "/search?q=banner&type=invoice", "", f.bearer(user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doJSON(t, f.handler, http.MethodGet, "/search?q=banner&status=shipped", "", f.bearer(user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func jsonNumber(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
