package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-battlewatch/internal/killmails/dto"
	"go-battlewatch/pkg/evegateway"
)

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func rawPayload(t *testing.T, raw dto.RawKillmail) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	return data
}

func TestParsePackage(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pkg := &dto.RedisQPackage{
		KillID: 128000001,
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailID:    int64Ptr(128000001),
			KillmailTime:  "2026-03-01T11:58:42Z",
			SolarSystemID: 30000142,
			Victim: dto.RawVictim{
				CharacterID:   int64Ptr(9001),
				CorporationID: int64Ptr(98000001),
				AllianceID:    int64Ptr(99000001),
				ShipTypeID:    int64Ptr(587),
			},
			Attackers: []dto.RawAttacker{
				{CharacterID: int64Ptr(7001), CorporationID: int64Ptr(98000002), AllianceID: int64Ptr(99000002)},
				{CharacterID: int64Ptr(7002), CorporationID: int64Ptr(98000002), AllianceID: int64Ptr(99000002)},
			},
		}),
		ZKB: dto.ZKBData{
			Hash:       "abc123hash",
			TotalValue: float64Ptr(1_500_000.0),
			URL:        "https://zkillboard.com/kill/128000001/",
		},
	}

	km, err := ParsePackage(pkg, fetchedAt)
	require.NoError(t, err)

	assert.Equal(t, int64(128000001), km.KillmailID)
	assert.Equal(t, "abc123hash", km.KillmailHash)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 58, 42, 0, time.UTC), km.KillmailTime)
	assert.Equal(t, int64(30000142), km.SolarSystemID)
	require.NotNil(t, km.VictimCharacterID)
	assert.Equal(t, int64(9001), *km.VictimCharacterID)
	require.NotNil(t, km.VictimShipTypeID)
	assert.Equal(t, int64(587), *km.VictimShipTypeID)
	assert.Equal(t, []int64{7001, 7002}, km.AttackerCharacterIDs)
	assert.Equal(t, []int64{98000002}, km.AttackerCorpIDs)
	assert.Equal(t, []int64{99000002}, km.AttackerAllianceIDs)
	require.NotNil(t, km.ISKValue)
	assert.Equal(t, int64(1_500_000), *km.ISKValue)
	assert.Equal(t, "https://zkillboard.com/kill/128000001/", km.SourceURL)
	assert.Equal(t, fetchedAt, km.FetchedAt)
}

func TestParsePackageKillIDFallback(t *testing.T) {
	pkg := &dto.RedisQPackage{
		KillID: 128000777,
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailTime:  "2026-03-01T11:58:42Z",
			SolarSystemID: 30000142,
		}),
	}

	km, err := ParsePackage(pkg, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(128000777), km.KillmailID)
}

func TestParsePackageMissingPayload(t *testing.T) {
	for name, payload := range map[string]json.RawMessage{
		"absent": nil,
		"null":   json.RawMessage("null"),
	} {
		t.Run(name, func(t *testing.T) {
			pkg := &dto.RedisQPackage{KillID: 128000001, Killmail: payload}

			_, err := ParsePackage(pkg, time.Now().UTC())
			assert.ErrorIs(t, err, ErrMissingPayload)
		})
	}
}

func TestParsePackageNoUsableID(t *testing.T) {
	pkg := &dto.RedisQPackage{
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailTime:  "2026-03-01T11:58:42Z",
			SolarSystemID: 30000142,
		}),
	}

	_, err := ParsePackage(pkg, time.Now().UTC())
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestParsePackageInvalidTimestamp(t *testing.T) {
	for _, bad := range []string{"", "yesterday", "2026-03-01 11:58:42", "2026-13-01T11:58:42Z"} {
		pkg := &dto.RedisQPackage{
			KillID: 128000001,
			Killmail: rawPayload(t, dto.RawKillmail{
				KillmailTime:  bad,
				SolarSystemID: 30000142,
			}),
		}

		_, err := ParsePackage(pkg, time.Now().UTC())
		assert.ErrorIs(t, err, ErrInvalidTimestamp, "timestamp %q", bad)
	}
}

func TestParsePackageRejectsFutureTimestamp(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pkg := &dto.RedisQPackage{
		KillID: 128000001,
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailTime:  "2026-03-01T12:00:01Z",
			SolarSystemID: 30000142,
		}),
	}

	_, err := ParsePackage(pkg, fetchedAt)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	// Occurring exactly at the fetch instant is allowed.
	pkg.Killmail = rawPayload(t, dto.RawKillmail{
		KillmailTime:  "2026-03-01T12:00:00Z",
		SolarSystemID: 30000142,
	})
	km, err := ParsePackage(pkg, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, fetchedAt, km.KillmailTime)
}

func TestParsePackageMalformedInnerJSON(t *testing.T) {
	pkg := &dto.RedisQPackage{
		KillID:   128000001,
		Killmail: json.RawMessage(`{"killmail_id": "not a number"}`),
	}

	_, err := ParsePackage(pkg, time.Now().UTC())
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestParsePackageSynthesizesSourceURL(t *testing.T) {
	pkg := &dto.RedisQPackage{
		KillID: 128000042,
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailTime:  "2026-03-01T11:58:42Z",
			SolarSystemID: 30000142,
		}),
	}

	km, err := ParsePackage(pkg, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "https://zkillboard.com/kill/128000042/", km.SourceURL)
}

func TestParsePackageISKRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		value float64
		want  int64
	}{
		{1000.5, 1000},
		{1001.5, 1002},
		{1000.4, 1000},
		{1000.6, 1001},
		{0.0, 0},
	}

	for _, tc := range cases {
		pkg := &dto.RedisQPackage{
			KillID: 128000001,
			Killmail: rawPayload(t, dto.RawKillmail{
				KillmailTime:  "2026-03-01T11:58:42Z",
				SolarSystemID: 30000142,
			}),
			ZKB: dto.ZKBData{TotalValue: float64Ptr(tc.value)},
		}

		km, err := ParsePackage(pkg, time.Now().UTC())
		require.NoError(t, err)
		require.NotNil(t, km.ISKValue, "value %v", tc.value)
		assert.Equal(t, tc.want, *km.ISKValue, "value %v", tc.value)
	}
}

func TestParsePackageNilISK(t *testing.T) {
	pkg := &dto.RedisQPackage{
		KillID: 128000001,
		Killmail: rawPayload(t, dto.RawKillmail{
			KillmailTime:  "2026-03-01T11:58:42Z",
			SolarSystemID: 30000142,
		}),
	}

	km, err := ParsePackage(pkg, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, km.ISKValue)
}

func TestDedupOrdered(t *testing.T) {
	ids := []*int64{int64Ptr(3), nil, int64Ptr(1), int64Ptr(3), int64Ptr(2), nil, int64Ptr(1)}

	assert.Equal(t, []int64{3, 1, 2}, dedupOrdered(ids))
	assert.Empty(t, dedupOrdered(nil))
	assert.Empty(t, dedupOrdered([]*int64{nil, nil}))
}

func newTestSource(t *testing.T, handler http.HandlerFunc) *RedisQSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &RedisQSource{
		httpClient:    server.Client(),
		endpoint:      server.URL,
		queueID:       "battlewatch-test",
		userAgent:     "battlewatch-test/1.0",
		ttwMin:        1,
		ttwMax:        10,
		nullThreshold: 3,
	}
}

func TestPullNullPackage(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "battlewatch-test", r.URL.Query().Get("queueID"))
		fmt.Fprint(w, `{"package": null}`)
	})

	for i := 1; i <= 3; i++ {
		km, err := source.Pull(context.Background())
		require.NoError(t, err)
		assert.Nil(t, km)
		assert.Equal(t, i, source.NullStreak())
	}

	// At the threshold the long-poll wait backs off to the maximum.
	assert.Equal(t, 10, source.CurrentTTW())
}

func TestPullResetsNullStreak(t *testing.T) {
	calls := 0
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"package": null}`)
			return
		}
		resp := dto.RedisQResponse{
			Package: &dto.RedisQPackage{
				KillID: 128000001,
				Killmail: rawPayload(t, dto.RawKillmail{
					KillmailID:    int64Ptr(128000001),
					KillmailTime:  "2026-03-01T11:58:42Z",
					SolarSystemID: 30000142,
				}),
				ZKB: dto.ZKBData{Hash: "abc"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	km, err := source.Pull(context.Background())
	require.NoError(t, err)
	assert.Nil(t, km)
	assert.Equal(t, 1, source.NullStreak())

	km, err = source.Pull(context.Background())
	require.NoError(t, err)
	require.NotNil(t, km)
	assert.Equal(t, int64(128000001), km.KillmailID)
	assert.Equal(t, 0, source.NullStreak())
}

func TestPullHTTPError(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := source.Pull(context.Background())
	var httpErr *evegateway.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}

func TestPullDecodeError(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"package": {`)
	})

	_, err := source.Pull(context.Background())
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

type stubSystems struct {
	security float64
	err      error
}

func (s *stubSystems) GetSystem(_ context.Context, systemID int64) (*evegateway.SolarSystem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &evegateway.SolarSystem{SystemID: systemID, SecurityStatus: s.security}, nil
}

func TestPullClassifiesSpace(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		resp := dto.RedisQResponse{
			Package: &dto.RedisQPackage{
				KillID: 128000001,
				Killmail: rawPayload(t, dto.RawKillmail{
					KillmailID:    int64Ptr(128000001),
					KillmailTime:  "2026-03-01T11:58:42Z",
					SolarSystemID: 30000142,
				}),
				ZKB: dto.ZKBData{Hash: "abc"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	source.systems = &stubSystems{security: 0.946}

	km, err := source.Pull(context.Background())
	require.NoError(t, err)
	require.NotNil(t, km)
	assert.Equal(t, "normal", km.SpaceClass)
	assert.Equal(t, "highsec", km.SecurityClass)
}

func TestPullDegradesOnSystemLookupFailure(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		resp := dto.RedisQResponse{
			Package: &dto.RedisQPackage{
				KillID: 128000001,
				Killmail: rawPayload(t, dto.RawKillmail{
					KillmailID:    int64Ptr(128000001),
					KillmailTime:  "2026-03-01T11:58:42Z",
					SolarSystemID: 30000142,
				}),
				ZKB: dto.ZKBData{Hash: "abc"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	source.systems = &stubSystems{err: errors.New("upstream down")}

	km, err := source.Pull(context.Background())
	require.NoError(t, err)
	require.NotNil(t, km)
	assert.Equal(t, "nullsec", km.SecurityClass)
}
