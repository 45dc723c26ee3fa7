package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go-battlewatch/internal/battles"
	"go-battlewatch/internal/killmails"
	"go-battlewatch/internal/ruleset"
	appMigrations "go-battlewatch/migrations"
	"go-battlewatch/pkg/app"
	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/evegateway"
	"go-battlewatch/pkg/migrations"
	"go-battlewatch/pkg/module"
	"go-battlewatch/pkg/version"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "go.uber.org/automaxprocs"
)

// Exit codes: 0 clean shutdown, 1 configuration or migration failure,
// 2 store connectivity lost beyond the retry window.
const (
	exitConfigFailure = 1
	exitStoreOffline  = 2
)

// quietLoggerMiddleware logs requests but excludes health check endpoints
func quietLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

func main() {
	info := version.Get()
	log.Printf("%s | CPUs: %d | GOMAXPROCS: %d", info.String(), runtime.NumCPU(), runtime.GOMAXPROCS(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appCtx, err := app.InitializeApp("battlewatch")
	if err != nil {
		log.Printf("Failed to initialize application: %v", err)
		os.Exit(exitConfigFailure)
	}

	// Migrations run at boot; a failed migration is unrecoverable.
	runner := migrations.NewRunner(appCtx.MongoDB.Database)
	appMigrations.RegisterAll(runner)
	if err := runner.Run(ctx); err != nil {
		slog.Error("Migrations failed", "error", err)
		appCtx.Shutdown(ctx)
		os.Exit(exitConfigFailure)
	}

	r := chi.NewRouter()
	r.Use(quietLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	gateway := evegateway.NewClient(appCtx.Redis)

	rulesetModule := ruleset.New(appCtx.MongoDB, appCtx.Redis)
	killmailsModule := killmails.New(appCtx.MongoDB, appCtx.Redis, gateway, rulesetModule.Service())
	battlesModule := battles.New(appCtx.MongoDB, appCtx.Redis, gateway, rulesetModule.Service())

	modules := []module.Module{rulesetModule, killmailsModule, battlesModule}

	// Per-module health endpoints live outside the unified API surface.
	r.Route("/status", func(sr chi.Router) {
		sr.Route("/ruleset", rulesetModule.Routes)
		sr.Route("/killmails", killmailsModule.Routes)
		sr.Route("/battles", battlesModule.Routes)
	})

	humaConfig := huma.DefaultConfig("Battlewatch API", info.Version)
	humaConfig.Info.Description = "Killmail ingestion and battle reconstruction backend"
	unifiedAPI := humachi.New(r, humaConfig)

	rulesetModule.RegisterUnifiedRoutes(unifiedAPI)
	killmailsModule.RegisterUnifiedRoutes(unifiedAPI, ctx)
	battlesModule.RegisterUnifiedRoutes(unifiedAPI)

	for _, mod := range modules {
		mod.StartBackgroundTasks(ctx)
	}

	// Store connectivity watchdog. Mongo going away for longer than the retry
	// window is unrecoverable for every pipeline stage.
	storeLost := make(chan struct{}, 1)
	go watchStore(ctx, appCtx, storeLost)

	port := app.GetPort("8080")
	srv := &http.Server{
		Addr:        config.GetEnv("HOST", "0.0.0.0") + ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("Starting battlewatch API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(exitConfigFailure)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		slog.Info("Received shutdown signal, initiating graceful shutdown")
	case <-storeLost:
		slog.Error("Store connectivity lost beyond retry window, shutting down")
		exitCode = exitStoreOffline
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	for _, mod := range modules {
		mod.Stop()
	}

	appCtx.Shutdown(shutdownCtx)
	slog.Info("Battlewatch shutdown completed")
	os.Exit(exitCode)
}

// watchStore pings Mongo on an interval and signals storeLost after a bounded
// run of consecutive failures.
func watchStore(ctx context.Context, appCtx *app.AppContext, storeLost chan<- struct{}) {
	interval := config.GetDurationEnv("STORE_WATCHDOG_INTERVAL", 10*time.Second)
	maxFailures := config.GetIntEnv("STORE_WATCHDOG_MAX_FAILURES", 6)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := appCtx.MongoDB.HealthCheck(ctx); err != nil {
				failures++
				slog.Warn("Store health check failed", "failures", failures, "max", maxFailures, "error", err)
				if failures >= maxFailures {
					select {
					case storeLost <- struct{}{}:
					default:
					}
					return
				}
				continue
			}
			if failures > 0 {
				slog.Info("Store connectivity restored")
			}
			failures = 0
		}
	}
}
