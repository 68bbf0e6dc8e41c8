// Onedev is a self-hosted git server daemon.
//
// The serve command opens the entity store, runs the startup recovery
// sweep over every project directory, and then serves until SIGINT or
// SIGTERM. An operational HTTP endpoint exposes health and metrics.
//
// Usage:
//
//	onedev serve --config /etc/onedev/config.yaml
//
// Configuration can also be supplied through ONEDEV_* environment
// variables; see internal/config.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tonytonyy/onedev/internal/authz"
	"github.com/Tonytonyy/onedev/internal/config"
	"github.com/Tonytonyy/onedev/internal/db"
	"github.com/Tonytonyy/onedev/internal/events"
	"github.com/Tonytonyy/onedev/internal/logging"
	"github.com/Tonytonyy/onedev/internal/project"
	"github.com/Tonytonyy/onedev/internal/services"
	"github.com/Tonytonyy/onedev/internal/storage"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "onedev",
		Short:         "Self-hosted git server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the server daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stdout sync failure is uninteresting

	reg, err := buildServices(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Error("shutdown cleanup failed", zap.Error(err))
		}
	}()

	ctx := context.Background()
	if err := reg.Bus().PublishSystemStarting(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := reg.Bus().PublishSystemStarted(ctx); err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	log.Info("server started", zap.String("site", cfg.Site.Dir), zap.String("addr", cfg.Server.Addr))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	if err := reg.Bus().PublishSystemStopping(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildServices(cfg *config.Config, log *zap.Logger) (services.Registry, error) {
	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	storageMgr := storage.NewManager(cfg.Site.Dir)
	authzSvc := authz.NewService(database)
	projectStore := project.NewStore(database)

	projectMgr, err := project.NewManager(database, projectStore, storageMgr, authzSvc, bus, log)
	if err != nil {
		database.Close() //nolint:errcheck
		return nil, err
	}

	return services.NewRegistry(services.Options{
		Config:   cfg,
		DB:       database,
		Bus:      bus,
		Storage:  storageMgr,
		Authz:    authzSvc,
		Projects: projectMgr,
	}), nil
}
