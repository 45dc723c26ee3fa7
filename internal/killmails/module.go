// Package killmails owns the ingestion pipeline: the long-poll killmail
// source, deduplicating ingester, enrichment workers, and the filtered feed
// and stream read API.
package killmails

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go-battlewatch/internal/killmails/routes"
	"go-battlewatch/internal/killmails/services"
	rulesetServices "go-battlewatch/internal/ruleset/services"
	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/database"
	"go-battlewatch/pkg/evegateway"
	"go-battlewatch/pkg/module"
	"go-battlewatch/pkg/names"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
)

// Module is the killmails module.
type Module struct {
	*module.BaseModule

	repository *services.Repository
	source     *services.RedisQSource
	ingester   *services.Ingester
	enricher   *services.Enricher
	feed       *services.FeedService

	gateway    *evegateway.Client
	rulesets   *rulesetServices.Service
	rulesetGen atomic.Int64
	cron       *cron.Cron
}

// New creates the killmails module and wires its pipeline.
func New(mongodb *database.MongoDB, redis *database.Redis, gateway *evegateway.Client, rulesets *rulesetServices.Service) *Module {
	repository := services.NewRepository(mongodb)
	source := services.NewRedisQSource(gateway)
	ingester := services.NewIngester(source, repository, rulesets)
	enricher := services.NewEnricher(repository, gateway)
	feed := services.NewFeedService(repository, rulesets, names.NewEnricher(gateway))

	return &Module{
		BaseModule: module.NewBaseModule("killmails", mongodb, redis),
		repository: repository,
		source:     source,
		ingester:   ingester,
		enricher:   enricher,
		feed:       feed,
		gateway:    gateway,
		rulesets:   rulesets,
		cron:       cron.New(),
	}
}

// Repository exposes the killmail repository to sibling modules.
func (m *Module) Repository() *services.Repository {
	return m.repository
}

// Feed exposes the feed service.
func (m *Module) Feed() *services.FeedService {
	return m.feed
}

// Routes sets up the module's plain HTTP routes.
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// RegisterUnifiedRoutes registers the killmail endpoints on the unified API.
// serverCtx bounds ingester restarts issued through the control endpoint.
func (m *Module) RegisterUnifiedRoutes(api huma.API, serverCtx context.Context) {
	routes.NewRoutes(m.feed, m.ingester, m.source, m.gateway.Budget(), &m.rulesetGen, serverCtx).Register(api)
}

// StartBackgroundTasks starts the pipeline: enrichment workers, the ruleset
// invalidation watcher, periodic sweeps, and (when enabled) the ingester.
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	slog.Info("Starting killmails background tasks")

	m.enricher.Start(ctx, m.ingester.WorkItems())

	go m.rulesets.Watch(ctx, func() {
		m.rulesetGen.Add(1)
		m.ingester.ReloadRuleset(ctx)
	})

	m.cron.AddFunc("@every 1m", func() {
		m.ingester.ResweepPending(ctx)
	})
	m.cron.AddFunc("@every 1m", func() {
		m.enricher.RetrySweep(ctx, m.ingester.Requeue)
	})
	m.cron.Start()

	if config.GetBoolEnv("INGEST_ENABLED", true) {
		if err := m.ingester.Start(ctx); err != nil {
			slog.Error("Failed to auto-start ingester", "error", err)
		}
	} else {
		slog.Info("INGEST_ENABLED=false, ingester ready for manual start via API")
	}
}

// Stop stops the pipeline.
func (m *Module) Stop() {
	slog.Info("Stopping killmails module")

	m.cron.Stop()
	if m.ingester.Running() {
		if err := m.ingester.Stop(); err != nil {
			slog.Warn("Failed to stop ingester gracefully", "error", err)
		}
	}
	m.BaseModule.Stop()
}
