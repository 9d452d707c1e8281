package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camwatch/internal/auth"
	"camwatch/internal/capture"
	"camwatch/internal/config"
	"camwatch/internal/core"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/notify"
	"camwatch/internal/routes"
	"camwatch/internal/snapshot"
	"camwatch/internal/store"
	"camwatch/internal/worker"
	"camwatch/internal/ws"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	store      *store.Store
	sessions   *auth.SessionManager
	hub        *ws.Hub
	supervisor *worker.Supervisor
}

func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cfg)

	st, err := store.NewStore(store.NewFileStore(cfg.StateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant store: %w", err)
	}

	sessions := auth.NewSessionManager(cfg.SessionTTL, st)
	hub := ws.NewHub(log)
	relay := notify.NewRelayClient(cfg.RelayURL, log)

	sup := worker.NewSupervisor(worker.Deps{
		State:      st,
		Sources:    capture.NewFactory(cfg.OpenTimeout, cfg.ReadTimeout),
		Detectors:  detect.NewNetFactory(cfg.ModelPath, cfg.ModelConfigPath),
		Dispatcher: relay,
		Snapshots:  snapshot.NewWriter(cfg.CaptureDirectory),
		Publisher:  hub,
		Logger:     log,
		Tunables: worker.Tunables{
			OpenAttempts:     3,
			OpenRetryDelay:   5 * time.Second,
			ThrottleInterval: cfg.ThrottleInterval,
			FrameInterval:    cfg.FrameInterval,
		},
	})

	app := &App{
		config:     cfg,
		logger:     log,
		store:      st,
		sessions:   sessions,
		hub:        hub,
		supervisor: sup,
	}

	if err := app.ensureAdmin(); err != nil {
		return nil, err
	}

	return app, nil
}

// ensureAdmin creates the configured admin account if it does not exist.
func (a *App) ensureAdmin() error {
	if a.config.AdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(a.config.AdminPassword)
	if err != nil {
		return err
	}
	err = a.store.CreateUser(a.config.AdminUsername, hash, store.RoleAdmin)
	if err != nil && !errors.Is(err, core.ErrExists) {
		return err
	}
	if err == nil {
		a.logger.Info("Created admin account %s", a.config.AdminUsername)
	}
	return nil
}

func (a *App) Run() error {
	router := routes.SetupRoutes(a.store, a.sessions, a.supervisor, a.hub, a.config, a.logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	a.logger.Info("Camera server listening on :%d", a.config.Port)
	a.logger.Info("State file: %s", a.config.StateFile)
	a.logger.Info("Captures: %s", a.config.CaptureDirectory)

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		a.logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP shutdown error: %v", err)
	}

	a.supervisor.Shutdown()
	a.logger.Info("All camera workers stopped")
	return nil
}
