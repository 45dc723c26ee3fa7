package routes

import (
	"context"
	"net/http"

	"go-battlewatch/internal/ruleset/dto"
	"go-battlewatch/internal/ruleset/services"

	"github.com/danielgtaylor/huma/v2"
)

// Routes registers the ruleset endpoints on the unified API.
type Routes struct {
	service *services.Service
}

// NewRoutes creates the ruleset route handlers.
func NewRoutes(service *services.Service) *Routes {
	return &Routes{service: service}
}

// Register registers all ruleset endpoints.
func (r *Routes) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-ruleset-current",
		Method:      http.MethodGet,
		Path:        "/rulesets/current",
		Summary:     "Get the active tracking ruleset",
		Tags:        []string{"Rulesets"},
	}, func(ctx context.Context, input *dto.GetRulesetInput) (*dto.RulesetOutput, error) {
		ruleset, err := r.service.GetActive(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load ruleset")
		}
		return &dto.RulesetOutput{Body: dto.FromModel(ruleset)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-ruleset-current",
		Method:      http.MethodPut,
		Path:        "/rulesets/current",
		Summary:     "Update the active tracking ruleset",
		Description: "Applies a partial patch to the singleton ruleset and broadcasts an invalidation to all ingester and feed instances.",
		Tags:        []string{"Rulesets"},
	}, func(ctx context.Context, input *dto.UpdateRulesetInput) (*dto.RulesetOutput, error) {
		ruleset, err := r.service.UpdateActive(ctx, input.Body)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return &dto.RulesetOutput{Body: dto.FromModel(ruleset)}, nil
	})
}
