package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go-battlewatch/internal/battles/engine"
	killmailModels "go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/config"
)

// RulesetProvider supplies the active ruleset; min_pilots maps onto the
// engine's min_kills.
type RulesetProvider interface {
	GetActive(ctx context.Context) (*rulesetModels.Ruleset, error)
}

// Clusterer drives the clustering engine on a fixed tick, persisting each
// plan transactionally and marking ignored events processed.
type Clusterer struct {
	repository *Repository
	rulesets   RulesetProvider

	interval  time.Duration
	delay     time.Duration
	batchSize int
	params    engine.Params

	ticks   atomic.Int64
	battles atomic.Int64
}

// NewClusterer creates the clusterer from environment configuration.
func NewClusterer(repository *Repository, rulesets RulesetProvider) *Clusterer {
	defaults := engine.DefaultParams()
	return &Clusterer{
		repository: repository,
		rulesets:   rulesets,
		interval:   config.GetDurationEnv("CLUSTER_INTERVAL", 5*time.Second),
		delay:      config.GetDurationEnv("CLUSTER_DELAY", 30*time.Minute),
		batchSize:  config.GetIntEnv("CLUSTER_BATCH_SIZE", 500),
		params: engine.Params{
			WindowMinutes: config.GetIntEnv("CLUSTER_WINDOW_MINUTES", defaults.WindowMinutes),
			GapMaxMinutes: config.GetIntEnv("CLUSTER_GAP_MAX_MINUTES", defaults.GapMaxMinutes),
			MinKills:      config.GetIntEnv("CLUSTER_MIN_KILLS", defaults.MinKills),
		},
	}
}

// Run loops until the context is cancelled.
func (c *Clusterer) Run(ctx context.Context) {
	slog.Info("Clusterer started",
		"interval", c.interval,
		"delay", c.delay,
		"window_minutes", c.params.WindowMinutes,
		"gap_max_minutes", c.params.GapMaxMinutes)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Clusterer stopped")
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one clustering pass. Failures leave events unprocessed; the next
// tick retries them.
func (c *Clusterer) Tick(ctx context.Context) {
	c.ticks.Add(1)

	cutoff := time.Now().UTC().Add(-c.delay)
	batch, err := c.repository.FetchUnprocessed(ctx, cutoff, c.batchSize)
	if err != nil {
		slog.Error("Failed to fetch unprocessed killmails", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	result := engine.Cluster(toEngineEvents(batch), c.effectiveParams(ctx))

	for _, plan := range result.Plans {
		if err := c.repository.PersistPlan(ctx, plan); err != nil {
			slog.Error("Failed to persist battle plan",
				"battle_id", plan.Battle.ID,
				"system_id", plan.Battle.SystemID,
				"error", err)
			continue
		}
		c.battles.Add(1)
		slog.Info("Battle persisted",
			"battle_id", plan.Battle.ID,
			"system_id", plan.Battle.SystemID,
			"total_kills", plan.Battle.TotalKills,
			"total_isk_destroyed", plan.Battle.TotalISKDestroyed)
	}

	if err := c.repository.MarkIgnored(ctx, result.Ignored); err != nil {
		slog.Error("Failed to mark ignored killmails", "error", err)
	}
}

// effectiveParams overlays the ruleset's min_pilots onto the configured
// engine parameters.
func (c *Clusterer) effectiveParams(ctx context.Context) engine.Params {
	params := c.params
	if ruleset, err := c.rulesets.GetActive(ctx); err == nil && ruleset.MinPilots > params.MinKills {
		params.MinKills = ruleset.MinPilots
	}
	return params
}

// Recluster resets the processing state over a time range and deletes the
// battles it covered. Returns the number of killmails reset.
func (c *Clusterer) Recluster(ctx context.Context, from, to time.Time) (int64, error) {
	return c.repository.Recluster(ctx, from, to)
}

func toEngineEvents(batch []killmailModels.Killmail) []engine.Event {
	events := make([]engine.Event, 0, len(batch))
	for i := range batch {
		km := &batch[i]
		events = append(events, engine.Event{
			EventID:    km.KillmailID,
			SystemID:   km.SolarSystemID,
			OccurredAt: km.KillmailTime,
			SpaceClass: km.SpaceClass,
			ISKValue:   km.ISKValue,

			VictimCharacterID: km.VictimCharacterID,
			VictimCorpID:      km.VictimCorpID,
			VictimAllianceID:  km.VictimAllianceID,
			VictimShipTypeID:  km.VictimShipTypeID,

			AttackerCharacterIDs: km.AttackerCharacterIDs,
			AttackerAllianceIDs:  km.AttackerAllianceIDs,
		})
	}
	return events
}
