package routes

import (
	"context"
	"log/slog"
	"net/http"

	"go-battlewatch/internal/battles/dto"
	"go-battlewatch/internal/battles/models"
	"go-battlewatch/internal/battles/services"
	"go-battlewatch/pkg/names"

	"github.com/danielgtaylor/huma/v2"
)

// Routes registers the battle query and recluster endpoints.
type Routes struct {
	repository *services.Repository
	clusterer  *services.Clusterer
	enricher   *names.Enricher
}

// NewRoutes creates the battle route handlers.
func NewRoutes(repository *services.Repository, clusterer *services.Clusterer, enricher *names.Enricher) *Routes {
	return &Routes{
		repository: repository,
		clusterer:  clusterer,
		enricher:   enricher,
	}
}

// Register registers all battle endpoints.
func (r *Routes) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-battles",
		Method:      http.MethodGet,
		Path:        "/battles",
		Summary:     "List battles",
		Tags:        []string{"Battles"},
	}, r.list)

	huma.Register(api, huma.Operation{
		OperationID: "get-battle",
		Method:      http.MethodGet,
		Path:        "/battles/{id}",
		Summary:     "Get one battle with its killmails and participants",
		Tags:        []string{"Battles"},
	}, r.get)

	huma.Register(api, huma.Operation{
		OperationID: "recluster-battles",
		Method:      http.MethodPost,
		Path:        "/battles/recluster",
		Summary:     "Rebuild battles over a time range",
		Description: "Deletes battles overlapping the range and resets the processing state of killmails in it; the clusterer rebuilds them on its next ticks.",
		Tags:        []string{"Battles"},
	}, r.recluster)
}

func (r *Routes) list(ctx context.Context, input *dto.ListBattlesInput) (*dto.ListBattlesOutput, error) {
	battles, err := r.repository.List(ctx, services.ListFilter{
		SolarSystemID: input.SystemID,
		SpaceClass:    input.SpaceClass,
	}, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list battles")
	}

	ids := make([]int64, 0, len(battles))
	for i := range battles {
		ids = append(ids, battles[i].SolarSystemID)
	}
	resolved := r.lookup(ctx, ids)

	output := &dto.ListBattlesOutput{}
	output.Body.Items = make([]dto.BattleSummary, 0, len(battles))
	for i := range battles {
		output.Body.Items = append(output.Body.Items, dto.SummaryFromModel(&battles[i], resolved))
	}
	output.Body.Count = len(output.Body.Items)
	return output, nil
}

func (r *Routes) get(ctx context.Context, input *dto.GetBattleInput) (*dto.GetBattleOutput, error) {
	battle, events, participants, err := r.repository.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load battle")
	}
	if battle == nil {
		return nil, huma.Error404NotFound("battle not found")
	}

	resolved := r.lookup(ctx, collectIDs(battle, events, participants))

	output := &dto.GetBattleOutput{}
	output.Body.Battle = dto.SummaryFromModel(battle, resolved)
	output.Body.Events = make([]dto.BattleEventItem, 0, len(events))
	for i := range events {
		output.Body.Events = append(output.Body.Events, dto.EventItemFromModel(&events[i], resolved))
	}
	output.Body.Participants = make([]dto.BattleParticipantItem, 0, len(participants))
	for i := range participants {
		output.Body.Participants = append(output.Body.Participants, dto.ParticipantItemFromModel(&participants[i], resolved))
	}
	return output, nil
}

func (r *Routes) recluster(ctx context.Context, input *dto.ReclusterInput) (*dto.ReclusterOutput, error) {
	from, to := input.Body.From, input.Body.To
	if !from.Before(to) {
		return nil, huma.Error400BadRequest("from must be before to")
	}

	reset, err := r.clusterer.Recluster(ctx, from, to)
	if err != nil {
		slog.Error("Recluster failed", "error", err)
		return nil, huma.Error500InternalServerError("recluster failed")
	}

	output := &dto.ReclusterOutput{}
	output.Body.KillmailsReset = reset
	output.Body.Message = "killmails reset; battles will rebuild on upcoming clusterer ticks"
	return output, nil
}

// lookup resolves names, degrading to unnamed IDs on failure.
func (r *Routes) lookup(ctx context.Context, ids []int64) names.Names {
	resolved, err := r.enricher.Lookup(ctx, ids)
	if err != nil {
		slog.Warn("Name resolution failed for battle response", "error", err)
		return names.Names{}
	}
	return resolved
}

func collectIDs(battle *models.Battle, events []models.BattleEvent, participants []models.BattleParticipant) []int64 {
	ids := []int64{battle.SolarSystemID}
	for i := range events {
		ids = append(ids, names.Collect(events[i].VictimAllianceID)...)
		ids = append(ids, events[i].AttackerAllianceIDs...)
	}
	for i := range participants {
		ids = append(ids, participants[i].CharacterID)
		ids = append(ids, names.Collect(participants[i].AllianceID, participants[i].CorpID, participants[i].ShipTypeID)...)
	}
	return ids
}
