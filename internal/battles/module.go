// Package battles reconstructs battles from unprocessed killmails: the pure
// clustering engine, the transactional clusterer loop, and the battle query
// API.
package battles

import (
	"context"
	"log/slog"

	"go-battlewatch/internal/battles/routes"
	"go-battlewatch/internal/battles/services"
	rulesetServices "go-battlewatch/internal/ruleset/services"
	"go-battlewatch/pkg/database"
	"go-battlewatch/pkg/evegateway"
	"go-battlewatch/pkg/module"
	"go-battlewatch/pkg/names"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

// Module is the battles module.
type Module struct {
	*module.BaseModule

	repository *services.Repository
	clusterer  *services.Clusterer
	enricher   *names.Enricher
}

// New creates the battles module.
func New(mongodb *database.MongoDB, redis *database.Redis, gateway *evegateway.Client, rulesets *rulesetServices.Service) *Module {
	repository := services.NewRepository(mongodb)
	return &Module{
		BaseModule: module.NewBaseModule("battles", mongodb, redis),
		repository: repository,
		clusterer:  services.NewClusterer(repository, rulesets),
		enricher:   names.NewEnricher(gateway),
	}
}

// Routes sets up the module's plain HTTP routes.
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// RegisterUnifiedRoutes registers the battle endpoints on the unified API.
func (m *Module) RegisterUnifiedRoutes(api huma.API) {
	routes.NewRoutes(m.repository, m.clusterer, m.enricher).Register(api)
}

// StartBackgroundTasks runs the clusterer loop.
func (m *Module) StartBackgroundTasks(ctx context.Context) {
	slog.Info("Starting battles background tasks")
	go m.clusterer.Run(ctx)
}
