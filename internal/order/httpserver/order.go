package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bookstore/internal/httperr"
	"github.com/Skotchmaster/bookstore/internal/logging"
	authmw "github.com/Skotchmaster/bookstore/internal/middleware/auth"
	"github.com/Skotchmaster/bookstore/internal/order/service"
	"github.com/Skotchmaster/bookstore/internal/order/transport"
)

type OrderHTTP struct {
	Svc *service.OrderService
}

func (h *OrderHTTP) Prepare(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.prepare")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req transport.PrepareRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("prepare_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	ids := make([]uint, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ID)
	}

	res, err := h.Svc.Prepare(ctx, who, ids)
	if err != nil {
		return httperr.Fail(l, "prepare_error", err)
	}

	return c.JSON(http.StatusOK, transport.PrepareResponse{
		Seller:             transport.SellerView{ID: res.Seller.ID, Name: res.Seller.Name},
		SellerPaymentCodes: res.PaymentCodes,
	})
}

func (h *OrderHTTP) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.confirm")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req transport.ConfirmRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("confirm_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	in := service.ConfirmInput{
		PaymentMethod: req.PaymentMethod,
		SellerID:      req.SelectedSeller,
		Items:         make([]service.LineItem, 0, len(req.CartItems)),
	}
	for _, it := range req.CartItems {
		in.Items = append(in.Items, service.LineItem{BookID: it.ID, Quantity: it.Quantity, Price: it.Price})
	}

	orders, err := h.Svc.Confirm(ctx, who, in)
	if err != nil {
		return httperr.Fail(l, "confirm_error", err)
	}
	return c.JSON(http.StatusOK, transport.ConfirmResponse{Message: "payment confirmed", Orders: orders})
}

func (h *OrderHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.history")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	rows, err := h.Svc.HistoryForBuyer(ctx, who)
	if err != nil {
		return httperr.Fail(l, "history_error", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *OrderHTTP) Sales(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.seller")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	rows, err := h.Svc.HistoryForSeller(ctx, who)
	if err != nil {
		return httperr.Fail(l, "seller_orders_error", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.update_status")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req transport.StatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	o, err := h.Svc.UpdateStatus(ctx, who, uint(id), req.Status)
	if err != nil {
		return httperr.Fail(l, "update_status_error", err)
	}
	return c.JSON(http.StatusOK, transport.StatusResponse{Message: "order status updated", Order: *o})
}

func (h *OrderHTTP) PaymentCodes(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_codes.list")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	codes, err := h.Svc.PaymentCodes(ctx, who)
	if err != nil {
		return httperr.Fail(l, "payment_codes_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"paymentCodes": codes})
}

func (h *OrderHTTP) SetPaymentCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_codes.set")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	fh, err := c.FormFile("image")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			l.Warn("set_payment_code_error", "status", 400, "reason", "invalid upload", "error", err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return httperr.Fail(l, "set_payment_code_error", err)
	}
	defer f.Close()

	code, err := h.Svc.SetPaymentCode(ctx, who, c.Param("type"), f, fh.Filename)
	if err != nil {
		return httperr.Fail(l, "set_payment_code_error", err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *OrderHTTP) DeletePaymentCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_codes.delete")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	if err := h.Svc.DeletePaymentCode(ctx, who, c.Param("type")); err != nil {
		return httperr.Fail(l, "delete_payment_code_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "payment code deleted"})
}
