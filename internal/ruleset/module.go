// Package ruleset owns the singleton tracking filter: persistence, patched
// updates, and cross-process invalidation over pub/sub.
package ruleset

import (
	"context"

	"go-battlewatch/internal/ruleset/routes"
	"go-battlewatch/internal/ruleset/services"
	"go-battlewatch/pkg/database"
	"go-battlewatch/pkg/module"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

// Module is the ruleset module.
type Module struct {
	*module.BaseModule
	service *services.Service
}

// New creates the ruleset module.
func New(mongodb *database.MongoDB, redis *database.Redis) *Module {
	return &Module{
		BaseModule: module.NewBaseModule("ruleset", mongodb, redis),
		service:    services.NewService(mongodb, redis),
	}
}

// Service exposes the ruleset service to sibling modules.
func (m *Module) Service() *services.Service {
	return m.service
}

// Routes sets up the module's plain HTTP routes.
func (m *Module) Routes(r chi.Router) {
	m.RegisterHealthRoute(r)
}

// RegisterUnifiedRoutes registers the ruleset endpoints on the unified API.
func (m *Module) RegisterUnifiedRoutes(api huma.API) {
	routes.NewRoutes(m.service).Register(api)
}

// StartBackgroundTasks is a no-op; invalidation watchers run inside the
// modules that consume the ruleset.
func (m *Module) StartBackgroundTasks(ctx context.Context) {}
