package routes

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go-battlewatch/internal/killmails/dto"
	"go-battlewatch/internal/killmails/services"
	"go-battlewatch/pkg/evegateway"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
)

// Routes registers the killmail feed and ingest control endpoints.
type Routes struct {
	feed       *services.FeedService
	ingester   *services.Ingester
	source     *services.RedisQSource
	budget     *evegateway.ErrorBudget
	rulesetGen *atomic.Int64
	serverCtx  context.Context
}

// NewRoutes creates the killmail route handlers. rulesetGen is bumped by the
// module's invalidation watcher; stream sessions compare it each tick.
// serverCtx bounds ingester restarts so they outlive the control request.
func NewRoutes(feed *services.FeedService, ingester *services.Ingester, source *services.RedisQSource, budget *evegateway.ErrorBudget, rulesetGen *atomic.Int64, serverCtx context.Context) *Routes {
	return &Routes{
		feed:       feed,
		ingester:   ingester,
		source:     source,
		budget:     budget,
		rulesetGen: rulesetGen,
		serverCtx:  serverCtx,
	}
}

// Register registers all killmail endpoints.
func (r *Routes) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-killmails-recent",
		Method:      http.MethodGet,
		Path:        "/killmails/recent",
		Summary:     "Recent killmails",
		Description: "Returns the newest killmails passing the tracking ruleset, with entity names attached.",
		Tags:        []string{"Killmails"},
	}, func(ctx context.Context, input *dto.RecentKillmailsInput) (*dto.RecentKillmailsOutput, error) {
		items, err := r.feed.Recent(ctx, feedQuery(input.Limit, input.SpaceType, input.SecurityType, input.TrackedOnly))
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load recent killmails")
		}
		return &dto.RecentKillmailsOutput{
			Body: dto.RecentKillmailsResponse{Items: items, Count: len(items)},
		}, nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "stream-killmails",
		Method:      http.MethodGet,
		Path:        "/killmails/stream",
		Summary:     "Live killmail stream",
		Description: "Server-sent events: one snapshot frame on connect, then one killmail frame per new event, with keep-alive frames between idle polls.",
		Tags:        []string{"Killmails"},
	}, map[string]any{
		"snapshot":   dto.SnapshotEvent{},
		"killmail":   dto.KillmailEvent{},
		"keep-alive": dto.KeepAliveEvent{},
	}, r.streamSession)

	huma.Register(api, huma.Operation{
		OperationID: "get-killmails-ingest-status",
		Method:      http.MethodGet,
		Path:        "/killmails/ingest/status",
		Summary:     "Ingester status",
		Tags:        []string{"Killmails"},
	}, func(ctx context.Context, input *dto.IngestStatusInput) (*dto.IngestStatusOutput, error) {
		return &dto.IngestStatusOutput{
			Body: r.ingester.Status(r.source.QueueID(), r.source.CurrentTTW(), r.source.NullStreak(), r.budget.Remaining()),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "control-killmails-ingest",
		Method:      http.MethodPost,
		Path:        "/killmails/ingest/control",
		Summary:     "Control the ingester",
		Tags:        []string{"Killmails"},
	}, func(ctx context.Context, input *dto.IngestControlInput) (*dto.IngestControlOutput, error) {
		return r.control(input.Body.Action)
	})
}

func (r *Routes) control(action string) (*dto.IngestControlOutput, error) {
	var err error
	switch action {
	case "start":
		err = r.ingester.Start(r.serverCtx)
	case "stop":
		err = r.ingester.Stop()
	case "restart":
		if r.ingester.Running() {
			if err = r.ingester.Stop(); err != nil {
				break
			}
		}
		err = r.ingester.Start(r.serverCtx)
	default:
		return nil, huma.Error400BadRequest("unknown action")
	}
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	status := "stopped"
	if r.ingester.Running() {
		status = "running"
	}
	return &dto.IngestControlOutput{
		Body: dto.IngestControlResponse{Status: status, Message: "action applied: " + action},
	}, nil
}

func feedQuery(limit int, spaceType, securityType string, trackedOnly bool) services.FeedQuery {
	return services.FeedQuery{
		Limit:         limit,
		SpaceClass:    spaceType,
		SecurityClass: securityType,
		TrackedOnly:   trackedOnly,
	}
}

// streamSession runs one SSE connection: snapshot, then a poll loop emitting
// killmail frames for strictly newer events. The cursor survives ruleset
// invalidations; the session ends when the client disconnects.
func (r *Routes) streamSession(ctx context.Context, input *dto.StreamKillmailsInput, send sse.Sender) {
	query := feedQuery(input.Limit, input.SpaceType, input.SecurityType, input.TrackedOnly)

	ruleset, err := r.feed.Ruleset(ctx)
	if err != nil {
		return
	}
	generation := r.rulesetGen.Load()

	items, cursor, err := r.feed.Snapshot(ctx, query, ruleset)
	if err != nil {
		return
	}
	if err := send.Data(dto.SnapshotEvent{Items: items, Count: len(items)}); err != nil {
		return
	}
	if input.Once {
		return
	}

	ticker := time.NewTicker(time.Duration(input.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if current := r.rulesetGen.Load(); current != generation {
			if reloaded, err := r.feed.Ruleset(ctx); err == nil {
				ruleset = reloaded
				generation = current
			}
		}

		newItems, advanced, err := r.feed.NewerThan(ctx, cursor, query, ruleset)
		if err != nil {
			// Recoverable: skip this tick and poll again.
			continue
		}
		cursor = advanced

		if len(newItems) == 0 {
			if err := send.Data(dto.KeepAliveEvent{Time: time.Now().UTC()}); err != nil {
				return
			}
			continue
		}
		for _, item := range newItems {
			if err := send.Data(dto.KillmailEvent{Item: item}); err != nil {
				return
			}
		}
	}
}
