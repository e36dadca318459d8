package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	authhttp "github.com/Skotchmaster/bookstore/internal/auth/httpserver"
	authrepo "github.com/Skotchmaster/bookstore/internal/auth/repo"
	authsvc "github.com/Skotchmaster/bookstore/internal/auth/service"
	cataloghttp "github.com/Skotchmaster/bookstore/internal/catalog/httpserver"
	catalogrepo "github.com/Skotchmaster/bookstore/internal/catalog/repo"
	catalogsvc "github.com/Skotchmaster/bookstore/internal/catalog/service"
	"github.com/Skotchmaster/bookstore/internal/config"
	"github.com/Skotchmaster/bookstore/internal/db"
	"github.com/Skotchmaster/bookstore/internal/es"
	"github.com/Skotchmaster/bookstore/internal/httperr"
	"github.com/Skotchmaster/bookstore/internal/logging"
	loggingmw "github.com/Skotchmaster/bookstore/internal/middleware/logging"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	orderhttp "github.com/Skotchmaster/bookstore/internal/order/httpserver"
	orderrepo "github.com/Skotchmaster/bookstore/internal/order/repo"
	ordersvc "github.com/Skotchmaster/bookstore/internal/order/service"
	"github.com/Skotchmaster/bookstore/internal/search"
	"github.com/Skotchmaster/bookstore/internal/storage"
	"github.com/Skotchmaster/bookstore/internal/tokens"
	httpserver "github.com/Skotchmaster/bookstore/internal/transport/http"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	cfg := config.MustLoad(*envFile)

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	esClient, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword}, logger)
	cancel()
	if err != nil {
		logger.Warn("elasticsearch_unavailable", "error", err)
	}

	images, err := storage.NewImageStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	prod := mykafka.NewProducer(cfg.KafkaBrokers)
	if prod == nil {
		logger.Info("kafka_disabled")
	}

	authSvc := &authsvc.AuthService{
		Repo:   &authrepo.GormRepo{DB: gdb},
		Tokens: tokens.NewIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret),
		Events: prod,
	}
	catalogSvc := &catalogsvc.CatalogService{
		Repo:        &catalogrepo.GormRepo{DB: gdb},
		Images:      images,
		Index:       search.NewBookIndex(esClient, cfg.ESIndex),
		Events:      prod,
		MaxPageSize: cfg.MaxPageSize,
	}
	orderSvc := &ordersvc.OrderService{
		Repo:   &orderrepo.GormRepo{DB: gdb},
		Images: images,
		Events: prod,
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httperr.Handler
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORS())
	e.Use(echomw.BodyLimit("10M"))

	httpserver.Register(e, &httpserver.Deps{
		DB:           gdb,
		AuthHandler:  &authhttp.AuthHTTP{Svc: authSvc},
		BookHandler:  &cataloghttp.BookHTTP{Svc: catalogSvc},
		OrderHandler: &orderhttp.OrderHTTP{Svc: orderSvc},
		JWTSecret:    cfg.JWTAccessSecret,
		UploadDir:    cfg.UploadDir,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	}
	if err := prod.Close(); err != nil {
		logger.Error("kafka_close_error", "error", err)
	}

	logger.Info("shutdown_complete")
}
