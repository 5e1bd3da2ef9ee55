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

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

func guarded(t *testing.T, guard func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	issuer := newTestIssuer(t, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.Username))
	})
	return Authenticate(issuer, "mw_session")(guard(ok))
}

func tokenFor(t *testing.T, role minutes.Role) string {
	t.Helper()
	token, _, err := newTestIssuer(t, nil).Issue(minutes.User{ID: 3, Username: "caller", Role: role})
	require.NoError(t, err)
	return token
}

func TestRequireUser(t *testing.T) {
	t.Parallel()
	h := guarded(t, RequireUser)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "mw_session", Value: tokenFor(t, minutes.RoleUser)})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "caller", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, minutes.RoleUser))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidTokenIsAnonymous(t *testing.T) {
	t.Parallel()
	h := guarded(t, RequireUser)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "mw_session", Value: "garbage"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	h := guarded(t, RequireAdmin(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, minutes.RoleUser))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+tokenFor(t, minutes.RoleAdmin))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCookieHelpers(t *testing.T) {
	t.Parallel()
	cfg := CookieConfig{Name: "mw_session", Secure: true, TTL: 2 * time.Hour}

	c := cfg.SessionCookie("tok")
	assert.Equal(t, "mw_session", c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 7200, c.MaxAge)

	cleared := cfg.ClearCookie()
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
}

type stubUsers map[int64]minutes.User

func (s stubUsers) GetUser(_ context.Context, id int64) (minutes.User, error) {
	u, ok := s[id]
	if !ok {
		return minutes.User{}, minutes.ErrNotFound
	}
	return u, nil
}

func TestRequireAdminChecksStoredRole(t *testing.T) {
	t.Parallel()
	adminToken := tokenFor(t, minutes.RoleAdmin)
	call := func(users UserLookup) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()
		guarded(t, RequireAdmin(users)).ServeHTTP(rec, req)
		return rec
	}

	rec := call(stubUsers{3: {ID: 3, Username: "renamed", Role: minutes.RoleAdmin}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", rec.Body.String())

	rec = call(stubUsers{3: {ID: 3, Username: "caller", Role: minutes.RoleUser}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(stubUsers{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"account no longer exists"}`, rec.Body.String())
}

type brokenUsers struct{}

func (brokenUsers) GetUser(context.Context, int64) (minutes.User, error) {
	return minutes.User{}, errors.New("connection refused")
}

func TestRequireAdminLookupFailure(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, minutes.RoleAdmin))
	rec := httptest.NewRecorder()
	guarded(t, RequireAdmin(brokenUsers{})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
