package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/evegateway"
	"go-battlewatch/pkg/names"
)

type fakeFeedStore struct {
	rows []models.Killmail
}

func (s *fakeFeedStore) Recent(_ context.Context, _ FeedFilter, limit int) ([]models.Killmail, error) {
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func (s *fakeFeedStore) After(_ context.Context, after Cursor, _ FeedFilter, limit int) ([]models.Killmail, error) {
	out := make([]models.Killmail, 0, len(s.rows))
	for _, row := range s.rows {
		newer := row.KillmailTime.After(after.KillmailTime) ||
			(row.KillmailTime.Equal(after.KillmailTime) && row.KillmailID > after.KillmailID)
		if newer {
			out = append(out, row)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRulesets struct {
	ruleset *rulesetModels.Ruleset
}

func (f *fakeRulesets) GetActive(context.Context) (*rulesetModels.Ruleset, error) {
	return f.ruleset, nil
}

type noopResolver struct{}

func (noopResolver) ResolveNames(context.Context, []int64) (map[int64]evegateway.NameEntry, error) {
	return map[int64]evegateway.NameEntry{}, nil
}

func newTestFeed(store *fakeFeedStore, ruleset *rulesetModels.Ruleset) *FeedService {
	return NewFeedService(store, &fakeRulesets{ruleset: ruleset}, names.NewEnricher(noopResolver{}))
}

func feedRow(id int64, at time.Time, allianceID int64) models.Killmail {
	return models.Killmail{
		KillmailID:       id,
		KillmailTime:     at,
		SolarSystemID:    30000142,
		VictimAllianceID: int64Ptr(allianceID),
	}
}

func TestNewerThanAdvancesOverFilteredRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracked := &rulesetModels.Ruleset{
		MinPilots:          1,
		TrackedAllianceIDs: []int64{99000001},
	}
	store := &fakeFeedStore{rows: []models.Killmail{
		feedRow(101, base.Add(time.Minute), 99000009),
		feedRow(102, base.Add(2*time.Minute), 99000009),
	}}
	feed := newTestFeed(store, tracked)
	query := FeedQuery{Limit: 25, TrackedOnly: true}

	// Both rows are untracked: nothing is delivered, but the cursor still
	// moves past them so they are never re-examined.
	items, cursor, err := feed.NewerThan(context.Background(), Cursor{KillmailTime: base}, query, tracked)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, base.Add(2*time.Minute), cursor.KillmailTime)
	assert.Equal(t, int64(102), cursor.KillmailID)

	// Resuming from the advanced cursor finds nothing and keeps it in place.
	items, cursor, err = feed.NewerThan(context.Background(), cursor, query, tracked)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, base.Add(2*time.Minute), cursor.KillmailTime)
	assert.Equal(t, int64(102), cursor.KillmailID)
}

func TestNewerThanDeliversTrackedRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracked := &rulesetModels.Ruleset{
		MinPilots:          1,
		TrackedAllianceIDs: []int64{99000001},
	}
	store := &fakeFeedStore{rows: []models.Killmail{
		feedRow(101, base.Add(time.Minute), 99000009),
		feedRow(102, base.Add(2*time.Minute), 99000001),
	}}
	feed := newTestFeed(store, tracked)

	items, cursor, err := feed.NewerThan(context.Background(), Cursor{KillmailTime: base},
		FeedQuery{Limit: 25, TrackedOnly: true}, tracked)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "102", items[0].KillmailID)
	assert.Equal(t, int64(102), cursor.KillmailID)
}

func TestRecentEmptyWhenTrackedOnlyWithNoLists(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeFeedStore{rows: []models.Killmail{
		feedRow(102, base.Add(2*time.Minute), 99000001),
		feedRow(101, base.Add(time.Minute), 99000009),
	}}
	feed := newTestFeed(store, rulesetModels.Default())

	items, err := feed.Recent(context.Background(), FeedQuery{Limit: 25, TrackedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, items)
}
