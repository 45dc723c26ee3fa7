package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
)

type fakeIngestStore struct {
	inserted    map[int64]bool
	failInserts int
	stubs       []int64
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{inserted: map[int64]bool{}}
}

func (s *fakeIngestStore) InsertKillmail(_ context.Context, km *models.Killmail) (bool, error) {
	if s.failInserts > 0 {
		s.failInserts--
		return false, errors.New("store offline")
	}
	if s.inserted[km.KillmailID] {
		return false, nil
	}
	s.inserted[km.KillmailID] = true
	return true, nil
}

func (s *fakeIngestStore) CreatePendingEnrichment(_ context.Context, killmailID int64, _ time.Time) error {
	s.stubs = append(s.stubs, killmailID)
	return nil
}

func (s *fakeIngestStore) StalePendingIDs(context.Context, time.Time, int) ([]int64, error) {
	return nil, nil
}

func receiveWorkItem(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	default:
		t.Fatal("expected a work item")
		return 0
	}
}

func assertNoWorkItem(t *testing.T, ch <-chan int64) {
	t.Helper()
	select {
	case id := <-ch:
		t.Fatalf("unexpected work item %d", id)
	default:
	}
}

func TestIngestStoresOnceForRepeatedDeliveries(t *testing.T) {
	store := newFakeIngestStore()
	ingester := NewIngester(nil, store, nil)
	km := &models.Killmail{
		KillmailID:    128000001,
		SolarSystemID: 30000142,
		KillmailTime:  time.Date(2026, 3, 1, 11, 58, 42, 0, time.UTC),
		FetchedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, OutcomeStored, ingester.Ingest(context.Background(), km))
	assert.Equal(t, km.KillmailID, receiveWorkItem(t, ingester.WorkItems()))
	assertNoWorkItem(t, ingester.WorkItems())
	require.Len(t, store.stubs, 1)
	assert.Equal(t, km.KillmailID, store.stubs[0])

	// Redelivering the same event changes nothing: no second row, no second
	// enrichment stub, no second work item.
	assert.Equal(t, OutcomeDuplicate, ingester.Ingest(context.Background(), km))
	assertNoWorkItem(t, ingester.WorkItems())
	assert.Len(t, store.stubs, 1)

	assert.Equal(t, int64(1), ingester.metrics.Stored.Load())
	assert.Equal(t, int64(1), ingester.metrics.Duplicates.Load())
}

func TestIngestRetriesStoreFailure(t *testing.T) {
	store := newFakeIngestStore()
	store.failInserts = 1
	ingester := NewIngester(nil, store, nil)
	km := &models.Killmail{KillmailID: 128000002, FetchedAt: time.Now().UTC()}

	// The event was already popped from upstream, so a store failure must
	// not lose it or report it as rejected.
	assert.Equal(t, OutcomeStored, ingester.Ingest(context.Background(), km))
	assert.Equal(t, km.KillmailID, receiveWorkItem(t, ingester.WorkItems()))
	assert.Equal(t, int64(1), ingester.metrics.StoreErrors.Load())
	assert.Equal(t, int64(0), ingester.metrics.Rejected.Load())
	assert.True(t, store.inserted[km.KillmailID])
}

func TestIngestStoreFailureStopsOnCancel(t *testing.T) {
	store := newFakeIngestStore()
	store.failInserts = 100
	ingester := NewIngester(nil, store, nil)
	km := &models.Killmail{KillmailID: 128000003, FetchedAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Equal(t, OutcomeFailed, ingester.Ingest(ctx, km))
	assertNoWorkItem(t, ingester.WorkItems())
	assert.Empty(t, store.stubs)
}

func TestIngestAppliesPreFilter(t *testing.T) {
	store := newFakeIngestStore()
	ingester := NewIngester(nil, store, nil)
	ingester.ruleset.Store(&rulesetModels.Ruleset{MinPilots: 1, IgnoreUnlisted: true})

	km := &models.Killmail{KillmailID: 128000004, FetchedAt: time.Now().UTC()}

	// ignore_unlisted with no tracked lists drops everything before the
	// store is touched.
	assert.Equal(t, OutcomeRejected, ingester.Ingest(context.Background(), km))
	assert.Empty(t, store.inserted)
	assertNoWorkItem(t, ingester.WorkItems())
	assert.Equal(t, int64(1), ingester.metrics.Rejected.Load())
}

func TestStoreRetryBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, storeRetryBackoff(tc.attempt), "attempt=%d", tc.attempt)
	}
}
