package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/tokens"
)

var testSecret = []byte("test-jwt-secret")

func run(t *testing.T, header string, mws ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, *authz.Identity, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *authz.Identity
	h := func(c echo.Context) error {
		id, err := IdentityFrom(c)
		require.NoError(t, err)
		seen = &id
		return c.NoContent(http.StatusOK)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	err := h(c)
	return rec, seen, err
}

func issue(t *testing.T, id uint, role string, ttl time.Duration) string {
	t.Helper()
	iss := tokens.NewIssuer(testSecret, []byte("r"))
	iss.AccessTTL = ttl
	tok, _, err := iss.NewAccessToken(id, "user", role)
	require.NoError(t, err)
	return tok
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	return he.Code
}

func TestRequireAuth_Missing(t *testing.T) {
	m := NewBearerAuth(testSecret)

	_, _, err := run(t, "", m.RequireAuth)
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))

	_, _, err = run(t, "Basic abc", m.RequireAuth)
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))
}

func TestRequireAuth_InvalidOrExpired(t *testing.T) {
	m := NewBearerAuth(testSecret)

	_, _, err := run(t, "Bearer garbage", m.RequireAuth)
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	expired := issue(t, 1, authz.RoleBuyer, -time.Minute)
	_, _, err = run(t, "Bearer "+expired, m.RequireAuth)
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	other := NewBearerAuth([]byte("other"))
	tok := issue(t, 1, authz.RoleBuyer, time.Minute)
	_, _, err = run(t, "Bearer "+tok, other.RequireAuth)
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))
}

func TestRequireAuth_SetsIdentity(t *testing.T) {
	m := NewBearerAuth(testSecret)
	tok := issue(t, 9, authz.RoleSeller, time.Minute)

	rec, id, err := run(t, "Bearer "+tok, m.RequireAuth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.EqualValues(t, 9, id.UserID)
	assert.Equal(t, authz.RoleSeller, id.Role)
}

func TestRequire_RoleGate(t *testing.T) {
	m := NewBearerAuth(testSecret)
	buyer := issue(t, 2, authz.RoleBuyer, time.Minute)
	seller := issue(t, 3, authz.RoleSeller, time.Minute)

	_, _, err := run(t, "Bearer "+buyer, m.RequireAuth, Require(authz.BookCreate))
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	rec, _, err := run(t, "Bearer "+seller, m.RequireAuth, Require(authz.BookCreate))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
