package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
	"github.com/JakeFAU/minuteswatch/internal/retention"
	"github.com/JakeFAU/minuteswatch/internal/storage/memory"
)

const cookieName = "test_session"

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeSubmitter struct {
	mu    sync.Mutex
	store *memory.Store
	calls int
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, trigger minutes.RunTrigger) (minutes.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return minutes.Run{}, f.err
	}
	f.calls++
	run := minutes.Run{ID: "run-" + strconv.Itoa(f.calls), Status: minutes.RunStatusQueued, Trigger: trigger, Submitted: time.Now()}
	if err := f.store.CreateRun(ctx, run); err != nil {
		return minutes.Run{}, err
	}
	return run, nil
}

type harness struct {
	t       *testing.T
	store   *memory.Store
	runs    *fakeSubmitter
	handler http.Handler
	admin   minutes.User
	user    minutes.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "minuteswatch-test",
		TTL:    time.Hour,
	}, nil)
	require.NoError(t, err)
	svc, err := auth.NewService(store, auth.NewPasswordHasher(bcrypt.MinCost), tokens, nil)
	require.NoError(t, err)
	ret, err := retention.New(store, fakeClock{now: time.Now()}, 30, nil)
	require.NoError(t, err)

	runs := &fakeSubmitter{store: store}
	server, err := NewServer(Options{
		Store:     store,
		Auth:      svc,
		Cookie:    auth.CookieConfig{Name: cookieName},
		Runs:      runs,
		Retention: ret,
	})
	require.NoError(t, err)

	ctx := context.Background()
	admin, err := svc.CreateUser(ctx, auth.NewUser{Username: "admin", Role: minutes.RoleAdmin, Password: "admin-pass"})
	require.NoError(t, err)
	user, err := svc.CreateUser(ctx, auth.NewUser{Username: "clerk", Email: "clerk@example.gov", Password: "clerk-pass"})
	require.NoError(t, err)

	return &harness{t: t, store: store, runs: runs, handler: server.Handler(), admin: admin, user: user}
}

func (h *harness) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(username, password string) *http.Cookie {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", loginRequest{Username: username, Password: password}, nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	h.t.Fatalf("login response carried no %s cookie", cookieName)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestLoginForm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/login", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `<form method="post" action="/login">`)
}

func TestLoginSetsHttpOnlyCookie(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", loginRequest{Username: "clerk", Password: "clerk-pass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	body := decode[map[string]any](t, rec)
	assert.Contains(t, body, "expires_at")
	assert.NotContains(t, rec.Body.String(), cookies[0].Value, "token is only in the cookie")

	rec = h.do(http.MethodGet, "/me", nil, cookies[0])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clerk", decode[minutes.User](t, rec).Username)
}

func TestLoginWithForm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	form := url.Values{"username": {"clerk"}, "password": {"clerk-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", loginRequest{Username: "clerk", Password: "wrong-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = h.do(http.MethodPost, "/login", loginRequest{Username: "ghost", Password: "clerk-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/login", loginRequest{Username: "clerk"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/logout", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestAccessControl(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	userCookie := h.login("clerk", "clerk-pass")
	adminCookie := h.login("admin", "admin-pass")

	for _, path := range []string{"/admin", "/admin/users", "/users", "/admin/auth-codes", "/admin/cleanup"} {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, path, nil, nil).Code, path)
		assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path, nil, userCookie).Code, path)
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, nil, adminCookie).Code, path)
	}
	for _, path := range []string{"/me", "/clients", "/keywords", "/mentions", "/profile"} {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, path, nil, nil).Code, path)
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, nil, userCookie).Code, path)
	}
	rec := h.do(http.MethodPost, "/clients", clientInput{Name: "Acme"}, userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDemotedAdminLosesAccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminCookie := h.login("admin", "admin-pass")
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/admin", nil, adminCookie).Code)

	demoted := h.admin
	demoted.Role = minutes.RoleUser
	_, err := h.store.UpdateUser(ctx, demoted)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin", nil, adminCookie).Code)

	require.NoError(t, h.store.DeleteUser(ctx, h.admin.ID))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/users", nil, adminCookie).Code)
}

func TestBearerTokenAccepted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("clerk", "clerk-pass")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserManagement(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	adminCookie := h.login("admin", "admin-pass")
	userCookie := h.login("clerk", "clerk-pass")

	rec := h.do(http.MethodPost, "/users", auth.NewUser{Username: "newbie", Password: "newbie-pass"}, adminCookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[minutes.User](t, rec)
	assert.Equal(t, minutes.RoleUser, created.Role)

	rec = h.do(http.MethodPost, "/users", auth.NewUser{Username: "newbie", Password: "newbie-pass"}, adminCookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/users", auth.NewUser{Username: "x", Password: "newbie-pass"}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	users := decode[[]minutes.User](t, h.do(http.MethodGet, "/users", nil, adminCookie))
	assert.Len(t, users, 3)

	self := "/users/" + strconv.FormatInt(h.user.ID, 10)
	other := "/users/" + strconv.FormatInt(created.ID, 10)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, self, nil, userCookie).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, other, nil, userCookie).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, other, nil, adminCookie).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/users/999", nil, adminCookie).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/users/abc", nil, adminCookie).Code)

	adminPath := "/users/" + strconv.FormatInt(h.admin.ID, 10)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, adminPath, nil, adminCookie).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, other, nil, adminCookie).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, other, nil, adminCookie).Code)
}

func TestClientsAndKeywords(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	adminCookie := h.login("admin", "admin-pass")
	userCookie := h.login("clerk", "clerk-pass")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/clients", clientInput{Name: "  "}, adminCookie).Code)

	rec := h.do(http.MethodPost, "/clients", clientInput{Name: "Acme", Organization: "Acme Corp"}, adminCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	client := decode[minutes.Client](t, rec)
	clientPath := "/clients/" + strconv.FormatInt(client.ID, 10)

	rec = h.do(http.MethodPost, "/keywords", keywordInput{Term: " zoning   variance ", ClientID: client.ID}, adminCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	kw := decode[minutes.Keyword](t, rec)
	assert.Equal(t, "zoning variance", kw.Term)
	assert.True(t, kw.Active)

	rec = h.do(http.MethodPost, "/keywords", keywordInput{Term: "Zoning Variance", ClientID: client.ID}, adminCookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(http.MethodPost, "/keywords", keywordInput{Term: "budget", ClientID: 999}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/keywords", keywordInput{Term: "budget"}, adminCookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	detail := decode[clientDetail](t, h.do(http.MethodGet, clientPath, nil, userCookie))
	assert.Equal(t, "Acme", detail.Name)
	require.Len(t, detail.Keywords, 1)

	scoped := decode[[]minutes.Keyword](t, h.do(http.MethodGet, "/keywords?client_id="+strconv.FormatInt(client.ID, 10), nil, userCookie))
	assert.Len(t, scoped, 1)
	all := decode[[]minutes.Keyword](t, h.do(http.MethodGet, "/keywords", nil, userCookie))
	assert.Len(t, all, 2)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/keywords?client_id=x", nil, userCookie).Code)

	form := decode[clientInput](t, h.do(http.MethodGet, clientPath+"/edit", nil, adminCookie))
	assert.Equal(t, "Acme Corp", form.Organization)
	form.Notes = "renewed"
	rec = h.do(http.MethodPost, clientPath+"/edit", form, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renewed", decode[minutes.Client](t, rec).Notes)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, clientPath, nil, adminCookie).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, clientPath, nil, userCookie).Code)
	remaining := decode[[]minutes.Keyword](t, h.do(http.MethodGet, "/keywords", nil, userCookie))
	assert.Len(t, remaining, 1, "client keywords cascade")

	kwPath := "/keywords/" + strconv.FormatInt(remaining[0].ID, 10)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodDelete, kwPath, nil, userCookie).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, kwPath, nil, adminCookie).Code)
}

func TestListsEncodeEmptyArrays(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("clerk", "clerk-pass")
	for _, path := range []string{"/clients", "/keywords", "/mentions"} {
		rec := h.do(http.MethodGet, path, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String(), path)
	}
}

func TestMentionsFilters(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("clerk", "clerk-pass")
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, h.store.SaveMentions(ctx, []minutes.Mention{
		{ID: "m1", Keyword: "zoning", Page: 1, FoundAt: now.Add(-48 * time.Hour)},
		{ID: "m2", Keyword: "zoning", Page: 2, FoundAt: now},
		{ID: "m3", Keyword: "budget", Page: 1, FoundAt: now},
	}))

	zoning := decode[[]minutes.Mention](t, h.do(http.MethodGet, "/mentions?keyword=Zoning", nil, cookie))
	assert.Len(t, zoning, 2)

	since := now.Add(-time.Hour).Format(time.RFC3339)
	recent := decode[[]minutes.Mention](t, h.do(http.MethodGet, "/mentions?since="+url.QueryEscape(since), nil, cookie))
	assert.Len(t, recent, 2)

	limited := decode[[]minutes.Mention](t, h.do(http.MethodGet, "/mentions?limit=1", nil, cookie))
	assert.Len(t, limited, 1)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/mentions?since=yesterday", nil, cookie).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/mentions?limit=-1", nil, cookie).Code)
}

func TestProfileEdit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("clerk", "clerk-pass")

	form := decode[profileForm](t, h.do(http.MethodGet, "/profile/edit", nil, cookie))
	assert.Equal(t, "clerk@example.gov", form.Email)

	name := "Town Clerk"
	rec := h.do(http.MethodPost, "/profile/edit", profileUpdate{FullName: &name}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[minutes.User](t, rec)
	assert.Equal(t, "Town Clerk", updated.FullName)
	assert.Equal(t, "clerk@example.gov", updated.Email)
	assert.Equal(t, minutes.RoleUser, updated.Role)

	rec = h.do(http.MethodPost, "/profile/edit", profileUpdate{NewPassword: "next-pass-1"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/profile/edit", profileUpdate{CurrentPassword: "wrong", NewPassword: "next-pass-1"}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodPost, "/profile/edit", profileUpdate{CurrentPassword: "clerk-pass", NewPassword: "next-pass-1"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	h.login("clerk", "next-pass-1")
}

func TestAdminDashboard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("admin", "admin-pass")

	rec := h.do(http.MethodGet, "/admin", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[dashboard](t, rec)
	assert.Equal(t, 2, d.Counts.Users)
	assert.Nil(t, d.LatestRun)
	assert.NotNil(t, d.RecentMentions)

	rec = h.do(http.MethodPost, "/admin/scrape", nil, cookie)
	require.Equal(t, http.StatusAccepted, rec.Code)
	runID := decode[map[string]string](t, rec)["run_id"]
	assert.Equal(t, "run-1", runID)

	d = decode[dashboard](t, h.do(http.MethodGet, "/admin", nil, cookie))
	require.NotNil(t, d.LatestRun)
	assert.Equal(t, runID, d.LatestRun.ID)

	run := decode[minutes.Run](t, h.do(http.MethodGet, "/admin/scrape/"+runID, nil, cookie))
	assert.Equal(t, minutes.TriggerAPI, run.Trigger)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/admin/scrape/missing", nil, cookie).Code)
}

func TestSubmitScrapeFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("admin", "admin-pass")
	h.runs.err = errors.New("queue full")
	rec := h.do(http.MethodPost, "/admin/scrape", nil, cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestAuthCodes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("admin", "admin-pass")

	creds := decode[[]minutes.CredentialInfo](t, h.do(http.MethodGet, "/admin/auth-codes", nil, cookie))
	require.Len(t, creds, 2)
	assert.NotContains(t, h.do(http.MethodGet, "/admin/auth-codes", nil, cookie).Body.String(), "$2a$")

	rec := h.do(http.MethodPost, "/admin/auth-codes/"+strconv.FormatInt(h.user.ID, 10), nil, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	code, _ := decode[map[string]any](t, rec)["code"].(string)
	require.Len(t, code, auth.AuthCodeLength)

	h.login("clerk", code)
	rec = h.do(http.MethodPost, "/login", loginRequest{Username: "clerk", Password: "clerk-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/admin/auth-codes/999", nil, cookie).Code)
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cookie := h.login("admin", "admin-pass")
	ctx := context.Background()
	require.NoError(t, h.store.SaveMentions(ctx, []minutes.Mention{
		{ID: "old", Keyword: "zoning", FoundAt: time.Now().AddDate(0, 0, -60)},
		{ID: "new", Keyword: "zoning", FoundAt: time.Now()},
	}))

	preview := decode[retention.Report](t, h.do(http.MethodGet, "/admin/cleanup", nil, cookie))
	assert.Equal(t, 30, preview.OlderThan)
	assert.Equal(t, int64(1), preview.Mentions)

	rec := h.do(http.MethodPost, "/admin/cleanup", cleanupRequest{OlderThanDays: 90}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[retention.Report](t, rec).Mentions)

	rec = h.do(http.MethodPost, "/admin/cleanup", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[retention.Report](t, rec).Mentions)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/admin/cleanup?older_than_days=x", nil, cookie).Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	cases := map[error]int{
		minutes.ErrInvalid:      http.StatusBadRequest,
		minutes.ErrUnauthorized: http.StatusUnauthorized,
		minutes.ErrForbidden:    http.StatusForbidden,
		minutes.ErrNotFound:     http.StatusNotFound,
		minutes.ErrConflict:     http.StatusConflict,
		errors.New("boom"):      http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	srv := &Server{logger: zap.NewNop()}
	panicky := srv.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	panicky.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
