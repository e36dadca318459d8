package auth

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/authz"
)

const ctxIdentity = "identity"

var errNoIdentity = errors.New("no identity in context")

func setIdentity(c echo.Context, id authz.Identity) {
	c.Set(ctxIdentity, id)
}

// SetIdentity is used by handler tests that bypass the bearer check.
func SetIdentity(c echo.Context, id authz.Identity) {
	setIdentity(c, id)
}

func IdentityFrom(c echo.Context) (authz.Identity, error) {
	id, ok := c.Get(ctxIdentity).(authz.Identity)
	if !ok || id.UserID == 0 {
		return authz.Identity{}, errNoIdentity
	}
	return id, nil
}
