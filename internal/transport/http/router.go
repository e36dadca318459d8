package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	authhttp "github.com/Skotchmaster/bookstore/internal/auth/httpserver"
	"github.com/Skotchmaster/bookstore/internal/authz"
	cataloghttp "github.com/Skotchmaster/bookstore/internal/catalog/httpserver"
	"github.com/Skotchmaster/bookstore/internal/db"
	"github.com/Skotchmaster/bookstore/internal/logging"
	middleware "github.com/Skotchmaster/bookstore/internal/middleware/auth"
	orderhttp "github.com/Skotchmaster/bookstore/internal/order/httpserver"
	"github.com/Skotchmaster/bookstore/internal/storage"
)

type Deps struct {
	DB           *gorm.DB
	AuthHandler  *authhttp.AuthHTTP
	BookHandler  *cataloghttp.BookHTTP
	OrderHandler *orderhttp.OrderHTTP
	JWTSecret    []byte
	UploadDir    string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			logging.FromContext(c.Request().Context()).Warn("readiness_failed", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	if d.UploadDir != "" {
		e.Static(storage.URLPrefix, d.UploadDir)
	}

	bearer := middleware.NewBearerAuth(d.JWTSecret)
	require := middleware.Require

	api := e.Group("/api")
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "timestamp": time.Now().UTC()})
	})

	api.POST("/register", d.AuthHandler.Register)
	api.POST("/login", d.AuthHandler.Login)
	api.POST("/refresh", d.AuthHandler.Refresh)
	api.POST("/logout", d.AuthHandler.LogOut, bearer.RequireAuth)

	admin := api.Group("/admin", bearer.RequireAuth, require(authz.UserManage))
	admin.GET("/users", d.AuthHandler.ListUsers)
	admin.POST("/users", d.AuthHandler.CreateUser)

	books := api.Group("/books")
	books.GET("/public", d.BookHandler.ListPublic)
	books.GET("/categories", d.BookHandler.Categories)
	books.GET("/search", d.BookHandler.Search)
	books.GET("", d.BookHandler.List)
	books.GET("/:id", d.BookHandler.Get)
	books.POST("", d.BookHandler.Create, bearer.RequireAuth, require(authz.BookCreate))
	books.POST("/upload", d.BookHandler.Upload, bearer.RequireAuth, require(authz.BookCreate))
	books.PUT("/:id", d.BookHandler.Update, bearer.RequireAuth, require(authz.BookUpdate))
	books.DELETE("/:id", d.BookHandler.Delete, bearer.RequireAuth, require(authz.BookDelete))

	orders := api.Group("/orders", bearer.RequireAuth)
	orders.POST("/prepare", d.OrderHandler.Prepare, require(authz.OrderPrepare))
	orders.POST("/confirm", d.OrderHandler.Confirm, require(authz.OrderConfirm))
	orders.GET("/history", d.OrderHandler.History, require(authz.OrderHistory))
	orders.GET("/seller", d.OrderHandler.Sales, require(authz.OrderSales))
	orders.PUT("/:id/status", d.OrderHandler.UpdateStatus, require(authz.OrderStatus))

	seller := api.Group("/seller", bearer.RequireAuth)
	seller.GET("/books", d.BookHandler.ListMine, require(authz.BookListOwn))
	seller.GET("/payment-codes", d.OrderHandler.PaymentCodes, require(authz.PaymentCodeManage))
	seller.PUT("/payment-codes/:type", d.OrderHandler.SetPaymentCode, require(authz.PaymentCodeManage))
	seller.DELETE("/payment-codes/:type", d.OrderHandler.DeletePaymentCode, require(authz.PaymentCodeManage))
}
