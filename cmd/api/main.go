package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paybridge/internal/bootstrap"
	"github.com/cassiomorais/paybridge/internal/controller"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/cassiomorais/paybridge/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paybridge-api", "paybridge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	// --- Stores ---
	products := sqlstore.NewProductStore()
	payments := sqlstore.NewPaymentStore()
	queue := sqlstore.NewQueueStore()

	// --- Services ---
	issuance := service.NewIssuanceService(app.UoW, products, payments, app.Gateway,
		app.Config.App, app.Metrics, app.Logger)
	settlement := service.NewSettlementService(app.UoW, products, payments, queue,
		app.Config.Gateway.APIKey, app.Metrics, app.Logger)
	if app.Config.Gateway.APIKey == "" {
		app.Logger.Warn().Msg("gateway.api_key is empty, every settlement callback will be rejected")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		DB:                app.DB,
		IssuanceService:   issuance,
		SettlementService: settlement,
		Metrics:           app.Metrics,
		Gatherer:          app.Registry,
		Server:            app.Config.Server,
		App:               app.Config.App,
		Logger:            app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		app.Close(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
	app.Logger.Info().Msg("Server exited")
}
