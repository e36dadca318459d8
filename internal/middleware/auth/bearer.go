package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/internal/tokens"
)

type BearerAuth struct {
	JWTSecret []byte
}

func NewBearerAuth(secret []byte) *BearerAuth {
	return &BearerAuth{JWTSecret: secret}
}

// Verify turns a raw access token into the caller identity.
func (m *BearerAuth) Verify(raw string) (authz.Identity, error) {
	claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret)
	if err != nil {
		return authz.Identity{}, err
	}
	id, err := tokens.SubjectID(claims.RegisteredClaims)
	if err != nil {
		return authz.Identity{}, err
	}
	return authz.Identity{UserID: id, Username: claims.Username, Role: claims.Role}, nil
}

// RequireAuth rejects requests without a bearer token with 401 and requests
// with a bad or expired one with 403.
func (m *BearerAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "auth.bearer")

		raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			l.Warn("auth_failed", "status", 401, "reason", "missing access token")
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		id, err := m.Verify(raw)
		if err != nil {
			l.Warn("auth_failed", "status", 403, "reason", "invalid or expired token", "error", err)
			return echo.NewHTTPError(http.StatusForbidden, "invalid or expired token")
		}

		setIdentity(c, id)
		c.SetRequest(c.Request().WithContext(logging.IntoContext(
			c.Request().Context(), l.With("user_id", id.UserID, "role", id.Role),
		)))
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
