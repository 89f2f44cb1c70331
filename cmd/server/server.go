package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Process roles.
const (
	roleAPI    = "api"
	roleWorker = "worker"
	roleAll    = "all"
)

const (
	httpShutdownTimeout   = 10 * time.Second
	workerShutdownTimeout = 30 * time.Second
)

// parseRole resolves the -role flag, falling back to the configuration.
func parseRole(flagValue string, runWorkers bool) (string, error) {
	switch flagValue {
	case roleAPI, roleWorker, roleAll:
		return flagValue, nil
	case "":
		if runWorkers {
			return roleAll, nil
		}
		return roleAPI, nil
	}
	return "", fmt.Errorf("unknown role %q (want api, worker or all)", flagValue)
}

// Run starts the components of role and blocks until ctx is cancelled or
// the HTTP server fails, then shuts everything down.
func (app *application) Run(ctx context.Context, role string) error {
	if role == roleWorker || role == roleAll {
		if err := app.runner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
	}

	var serveErr error
	if role == roleAPI || role == roleAll {
		serveErr = app.startHTTPServer(ctx, app.setupRouter())
	} else {
		app.logger.Info("running workers only")
		<-ctx.Done()
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, app.cleanup(cleanupCtx))
}

// startHTTPServer serves router until ctx is cancelled, then shuts the
// server down gracefully.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	waitBudget := time.Duration(app.config.Chat.WaitTimeoutSec) * time.Second
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Chat requests hold the connection for up to the wait budget.
		WriteTimeout: waitBudget + 15*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		app.logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	app.logger.Info("server shutdown completed")
	return nil
}
