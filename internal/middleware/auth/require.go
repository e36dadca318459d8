package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/authz"
)

// Require gates a route on the role half of the policy. Ownership is
// checked by the services once the resource is loaded.
func Require(act authz.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := IdentityFrom(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if err := authz.Authorize(id, act, nil); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "you don't have enough rights for this action")
			}
			return next(c)
		}
	}
}
