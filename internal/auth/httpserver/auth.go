package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/auth/service"
	"github.com/Skotchmaster/bookstore/internal/auth/transport"
	"github.com/Skotchmaster/bookstore/internal/httperr"
	"github.com/Skotchmaster/bookstore/internal/logging"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, service.RegisterInput(req))
	if err != nil {
		return httperr.Fail(l, "register_error", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "user registered",
		"userId":  user.ID,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return httperr.Fail(l, "login_error", err)
	}

	return c.JSON(http.StatusOK, loginResponse(res))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		l.Warn("refresh_error", "status", 401, "reason", "refresh token missing")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return httperr.Fail(l, "refresh_error", err)
	}

	return c.JSON(http.StatusOK, loginResponse(res))
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.LogOut(ctx, req.RefreshToken); err != nil {
		return httperr.Fail(l, "logout_error", err)
	}

	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.list_users")

	users, err := h.Svc.ListUsers(ctx)
	if err != nil {
		return httperr.Fail(l, "list_users_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// CreateUser is the admin path for creating accounts of any role.
func (h *AuthHTTP) CreateUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.create_user")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_user_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, service.RegisterInput(req))
	if err != nil {
		return httperr.Fail(l, "create_user_error", err)
	}

	l.Info("create_user_success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, user)
}

func loginResponse(res *service.LoginResult) transport.LoginResponse {
	return transport.LoginResponse{
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.AccessExp.Unix(),
		User: transport.UserView{
			ID:       res.User.ID,
			Username: res.User.Username,
			Role:     res.User.Role,
		},
	}
}
