package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hiremebahamas/hirebahamas-api/internal/auth"
	"github.com/hiremebahamas/hirebahamas-api/internal/config"
	"github.com/hiremebahamas/hirebahamas-api/internal/database"
	"github.com/hiremebahamas/hirebahamas-api/internal/handlers"
	"github.com/hiremebahamas/hirebahamas-api/internal/logger"
	"github.com/hiremebahamas/hirebahamas-api/internal/routes"
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	cfg := config.Load()
	log := logger.New(cfg.Server.LogLevel, cfg.Environment)
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. --- Database Engines (lazy) ---
	// Nothing connects here. A bad DATABASE_URL must not stop the server from
	// booting, so /health can still explain what is wrong.
	// Every new primary engine gets the schema applied before first use.
	manager := database.NewManager(cfg.Database,
		database.WithLogger(log),
		database.WithOnReady(database.Bootstrap(log)),
	)
	defer func() {
		if err := manager.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database engines")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. --- Warm Up ---
	warmUp(ctx, log, manager)

	// --- Application Setup ---
	app := &handlers.Handlers{
		DB:       database.NewRouter(manager),
		DBConfig: cfg.Database,
		Tokens:   auth.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.JWTTTL),
		Log:      log,
	}

	// --- 3. Background Worker ---
	// Logs engine state every few minutes so a replica that fell back to the
	// primary shows up in the logs, not just on /health.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ev := log.Info()
				for role, st := range manager.Status() {
					ev = ev.Str(role, st.State+"/"+st.ServedBy)
				}
				ev.Msg("database engines")
			}
		}
	}()

	// --- Router Setup ---
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           routes.SetupRouter(app, cfg.Server.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Start Server ---
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("environment", cfg.Environment).Msg("starting HireBahamas API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// warmUp builds the primary engine, which also applies the schema.
// Failure is logged, not fatal: the slot resets and the first request
// retries construction and the schema bootstrap together.
func warmUp(ctx context.Context, log zerolog.Logger, m *database.Manager) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := m.GetEngine(ctx, database.RolePrimary); err != nil {
		log.Error().Err(err).Msg("primary database not ready at startup")
	}
}
