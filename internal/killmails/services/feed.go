package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-battlewatch/internal/killmails/dto"
	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/names"
)

// overFetchFactor absorbs post-filter shrinkage on feed reads.
const overFetchFactor = 3

// FeedQuery carries the caller's feed parameters after validation.
type FeedQuery struct {
	Limit         int
	SpaceClass    string
	SecurityClass string
	TrackedOnly   bool
}

// FeedStore is the read surface backing feed and stream queries.
type FeedStore interface {
	Recent(ctx context.Context, filter FeedFilter, limit int) ([]models.Killmail, error)
	After(ctx context.Context, after Cursor, filter FeedFilter, limit int) ([]models.Killmail, error)
}

// FeedService serves the filtered killmail feed: recent reads and the
// strictly-newer cursor fetches backing SSE streams.
type FeedService struct {
	repository FeedStore
	rulesets   RulesetProvider
	enricher   *names.Enricher
}

// NewFeedService creates the feed service.
func NewFeedService(repository FeedStore, rulesets RulesetProvider, enricher *names.Enricher) *FeedService {
	return &FeedService{
		repository: repository,
		rulesets:   rulesets,
		enricher:   enricher,
	}
}

// Recent returns the newest killmails passing both the query filters and the
// tracking ruleset, with names attached. Over-fetches threefold before the
// in-process filter, then trims to the requested limit.
func (s *FeedService) Recent(ctx context.Context, query FeedQuery) ([]dto.KillmailItem, error) {
	ruleset, err := s.rulesets.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	filter := FeedFilter{SpaceClass: query.SpaceClass, SecurityClass: query.SecurityClass}
	rows, err := s.repository.Recent(ctx, filter, query.Limit*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to query killmails: %w", err)
	}

	kept := filterKillmails(rows, ruleset, query.TrackedOnly)
	if len(kept) > query.Limit {
		kept = kept[:query.Limit]
	}
	return s.project(ctx, kept)
}

// Snapshot serves a stream connection's opening frame: the same read as
// Recent plus the cursor to resume from, positioned at the newest item kept
// or at now for an empty snapshot.
func (s *FeedService) Snapshot(ctx context.Context, query FeedQuery, ruleset *rulesetModels.Ruleset) ([]dto.KillmailItem, Cursor, error) {
	filter := FeedFilter{SpaceClass: query.SpaceClass, SecurityClass: query.SecurityClass}
	rows, err := s.repository.Recent(ctx, filter, query.Limit*overFetchFactor)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("failed to query killmails: %w", err)
	}

	kept := filterKillmails(rows, ruleset, query.TrackedOnly)
	if len(kept) > query.Limit {
		kept = kept[:query.Limit]
	}

	cursor := Cursor{KillmailTime: time.Now().UTC()}
	if len(kept) > 0 {
		// Rows are newest-first, so the first kept item is the newest.
		cursor = Cursor{KillmailTime: kept[0].KillmailTime, KillmailID: kept[0].KillmailID}
	}

	items, err := s.project(ctx, kept)
	if err != nil {
		return nil, Cursor{}, err
	}
	return items, cursor, nil
}

// NewerThan returns killmails strictly newer than the cursor, filtered and
// named, in ascending feed order. The ruleset is passed in by the stream
// session, which reloads it on invalidation.
func (s *FeedService) NewerThan(ctx context.Context, after Cursor, query FeedQuery, ruleset *rulesetModels.Ruleset) ([]dto.KillmailItem, Cursor, error) {
	filter := FeedFilter{SpaceClass: query.SpaceClass, SecurityClass: query.SecurityClass}
	rows, err := s.repository.After(ctx, after, filter, query.Limit*overFetchFactor)
	if err != nil {
		return nil, after, fmt.Errorf("failed to query killmails: %w", err)
	}
	if len(rows) == 0 {
		return nil, after, nil
	}

	// The cursor advances over everything observed, filtered or not, so
	// rejected events are never re-examined.
	last := rows[len(rows)-1]
	advanced := Cursor{KillmailTime: last.KillmailTime, KillmailID: last.KillmailID}

	kept := filterKillmails(rows, ruleset, query.TrackedOnly)
	items, err := s.project(ctx, kept)
	if err != nil {
		return nil, after, err
	}
	return items, advanced, nil
}

// Ruleset returns the active ruleset for stream sessions.
func (s *FeedService) Ruleset(ctx context.Context) (*rulesetModels.Ruleset, error) {
	return s.rulesets.GetActive(ctx)
}

func filterKillmails(rows []models.Killmail, ruleset *rulesetModels.Ruleset, trackedOnly bool) []*models.Killmail {
	kept := make([]*models.Killmail, 0, len(rows))
	for idx := range rows {
		if MatchesRuleset(&rows[idx], ruleset, trackedOnly) {
			kept = append(kept, &rows[idx])
		}
	}
	return kept
}

// project attaches names and converts to wire items. Name resolution failures
// degrade to unnamed IDs rather than failing the read.
func (s *FeedService) project(ctx context.Context, rows []*models.Killmail) ([]dto.KillmailItem, error) {
	ids := make([]int64, 0, len(rows)*8)
	for _, km := range rows {
		ids = append(ids, km.SolarSystemID)
		ids = append(ids, names.Collect(km.VictimCharacterID, km.VictimCorpID, km.VictimAllianceID)...)
		ids = append(ids, km.AttackerCharacterIDs...)
		ids = append(ids, km.AttackerCorpIDs...)
		ids = append(ids, km.AttackerAllianceIDs...)
	}

	resolved, err := s.enricher.Lookup(ctx, ids)
	if err != nil {
		slog.Warn("Name resolution failed, serving unnamed feed", "error", err)
		resolved = names.Names{}
	}

	items := make([]dto.KillmailItem, 0, len(rows))
	for _, km := range rows {
		items = append(items, dto.KillmailItemFromModel(km, resolved))
	}
	return items, nil
}
