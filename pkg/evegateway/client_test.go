package evegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(nil)
	client.baseURL = server.URL
	client.httpClient = server.Client()
	return client, server
}

func TestResolveNamesDeduplicatesAndFilters(t *testing.T) {
	var requests atomic.Int64
	var lastBody []int64

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, "/universe/names/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))

		entries := make([]NameEntry, 0, len(lastBody))
		for _, id := range lastBody {
			entries = append(entries, NameEntry{ID: id, Name: fmt.Sprintf("entity-%d", id), Category: "character"})
		}
		json.NewEncoder(w).Encode(entries)
	}))

	result, err := client.ResolveNames(context.Background(), []int64{42, 42, 0, -7, 99})
	require.NoError(t, err)

	assert.Len(t, result, 2)
	assert.Equal(t, "entity-42", result[42].Name)
	assert.Equal(t, "entity-99", result[99].Name)
	assert.Equal(t, int64(1), requests.Load())
	assert.Equal(t, []int64{42, 99}, lastBody)
}

func TestResolveNamesChunksLargeBatches(t *testing.T) {
	var chunkSizes []int

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ids []int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		chunkSizes = append(chunkSizes, len(ids))

		entries := make([]NameEntry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, NameEntry{ID: id, Name: fmt.Sprintf("entity-%d", id)})
		}
		json.NewEncoder(w).Encode(entries)
	}))

	ids := make([]int64, 1500)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	result, err := client.ResolveNames(context.Background(), ids)
	require.NoError(t, err)

	assert.Len(t, result, 1500)
	assert.Equal(t, []int{1000, 500}, chunkSizes)
}

func TestResolveNamesServesCachedEntries(t *testing.T) {
	var requests atomic.Int64

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var ids []int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))

		entries := make([]NameEntry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, NameEntry{ID: id, Name: fmt.Sprintf("entity-%d", id)})
		}
		json.NewEncoder(w).Encode(entries)
	}))

	_, err := client.ResolveNames(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, int64(1), requests.Load())

	result, err := client.ResolveNames(context.Background(), []int64{2, 3, 4})
	require.NoError(t, err)

	assert.Len(t, result, 3)
	assert.Equal(t, int64(2), requests.Load(), "only the uncached ID should trigger a request")
}

func TestResolveNamesOmitsUnknownIDs(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]NameEntry{{ID: 5, Name: "known"}})
	}))

	result, err := client.ResolveNames(context.Background(), []int64{5, 6})
	require.NoError(t, err)

	assert.Len(t, result, 1)
	_, ok := result[6]
	assert.False(t, ok)
}

func TestRetryRecoversFromThrottle(t *testing.T) {
	var requests atomic.Int64

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]NameEntry{{ID: 9, Name: "after-retry"}})
	}))

	result, err := client.ResolveNames(context.Background(), []int64{9})
	require.NoError(t, err)

	assert.Equal(t, "after-retry", result[9].Name)
	assert.Equal(t, int64(2), requests.Load())
	assert.Equal(t, initialBudget, client.Budget().Remaining(), "success restores the throttled unit")
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int64

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.GetKillmail(context.Background(), 123, "abc")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.True(t, httpErr.IsTransient())
	assert.Equal(t, int64(maxAttempts), requests.Load())
}

func TestErrorBudgetSuspendsCalls(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < initialBudget; i++ {
		client.budget.RecordThrottle()
	}
	require.False(t, client.budget.Allow())

	_, err := client.GetKillmail(context.Background(), 1, "x")
	assert.ErrorIs(t, err, ErrErrorBudgetExhausted)

	client.budget.RecordSuccess()
	assert.True(t, client.budget.Allow())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := client.GetKillmail(context.Background(), 77, "deadbeef")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetKillmailDecodesPayload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/killmails/128000001/deadbeef/", r.URL.Path)
		json.NewEncoder(w).Encode(Killmail{
			KillmailID:    128000001,
			KillmailTime:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			SolarSystemID: 30000142,
			Victim:        KillmailVictim{ShipTypeID: 587, DamageTaken: 4242},
			Attackers: []KillmailAttacker{
				{CharacterID: 9001, DamageDone: 4242, FinalBlow: true},
			},
		})
	}))

	km, err := client.GetKillmail(context.Background(), 128000001, "deadbeef")
	require.NoError(t, err)

	assert.Equal(t, int64(30000142), km.SolarSystemID)
	assert.Len(t, km.Attackers, 1)
	assert.True(t, km.Attackers[0].FinalBlow)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), 20*time.Millisecond)

	data, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	time.Sleep(30 * time.Millisecond)

	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestGetSystemUsesEntityCache(t *testing.T) {
	var requests atomic.Int64

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(SolarSystem{Name: "Jita", SecurityStatus: 0.945})
	}))

	first, err := client.GetSystem(context.Background(), 30000142)
	require.NoError(t, err)
	second, err := client.GetSystem(context.Background(), 30000142)
	require.NoError(t, err)

	assert.Equal(t, "Jita", first.Name)
	assert.Equal(t, int64(30000142), second.SystemID)
	assert.Equal(t, int64(1), requests.Load())
}
