package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/apperr"
)

// Fail logs a failed handler call and converts err into the HTTP error the
// client sees. Client errors are logged at warn, everything else at error.
func Fail(l *slog.Logger, event string, err error) error {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "error", err)
	} else {
		l.Warn(event, "status", status, "reason", err.Error())
	}
	return echo.NewHTTPError(status, apperr.Message(err))
}

// Handler renders every error as {"message": "..."}.
func Handler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = http.StatusText(code)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, echo.Map{"message": msg})
}
