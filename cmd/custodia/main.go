package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/custodialabs/custodia/pkg/api"
	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/catalogue"
	"github.com/custodialabs/custodia/pkg/config"
	"github.com/custodialabs/custodia/pkg/entities"
	"github.com/custodialabs/custodia/pkg/observability"
	"github.com/custodialabs/custodia/pkg/rgpd"
	"github.com/custodialabs/custodia/pkg/sso"
	"github.com/custodialabs/custodia/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	files, err := storage.New(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to initialize file storage")
		os.Exit(1)
	}
	logger.WithField("type", cfg.Storage.Type).Info("file storage initialized")

	var oidcProvider sso.Provider
	if cfg.OIDC.Enabled() {
		oidcProvider = sso.NewOIDCProvider(cfg.OIDC)
		logger.WithField("issuer", cfg.OIDC.Issuer).Info("OIDC login enabled")
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	server := api.NewServer(api.Dependencies{
		DB:          db,
		Tokens:      tokens,
		Users:       auth.NewPostgresStore(db),
		Entities:    entities.NewPostgresService(db),
		Records:     rgpd.NewPostgresStore(db),
		Catalogue:   catalogue.NewPostgresStore(db),
		Files:       files,
		StorageType: cfg.Storage.Type,
		OIDC:        oidcProvider,
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
		Metrics:     metrics,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.ObserveDBStats(db)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
