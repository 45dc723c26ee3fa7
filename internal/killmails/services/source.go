package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"go-battlewatch/internal/killmails/dto"
	"go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/evegateway"
)

// Parse failures. Malformed packages are dropped and counted, never persisted.
var (
	ErrMissingPayload   = errors.New("redisq: package has no killmail payload")
	ErrInvalidTimestamp = errors.New("redisq: killmail time is not a valid instant")
)

// DecodeError wraps a malformed JSON body from the upstream queue.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("redisq: failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// KillmailSource produces zero or one killmail per pull. A (nil, nil) return
// is the normal idle case.
type KillmailSource interface {
	Pull(ctx context.Context) (*models.Killmail, error)
}

// SystemSecurityResolver returns the true security status of a solar system.
// The production implementation is the upstream API client with its caches.
type SystemSecurityResolver interface {
	GetSystem(ctx context.Context, systemID int64) (*evegateway.SolarSystem, error)
}

// RedisQSource long-polls the upstream killmail queue. One instance per queue
// identity; replicas must use distinct queue IDs or they will split the
// logical stream.
type RedisQSource struct {
	httpClient *http.Client
	systems    SystemSecurityResolver

	endpoint  string
	queueID   string
	userAgent string

	ttwMin        int
	ttwMax        int
	nullThreshold int
	nullStreak    int
}

// NewRedisQSource creates the production killmail source from environment
// configuration.
func NewRedisQSource(systems SystemSecurityResolver) *RedisQSource {
	queueID := config.GetEnv("REDISQ_QUEUE_ID", "")
	if queueID == "" {
		hostname, _ := os.Hostname()
		queueID = fmt.Sprintf("battlewatch-%s-%d", hostname, time.Now().Unix())
	}

	return &RedisQSource{
		httpClient: &http.Client{
			Timeout: config.GetDurationEnv("REDISQ_HTTP_TIMEOUT", 10*time.Second),
		},
		systems:       systems,
		endpoint:      config.GetEnv("REDISQ_ENDPOINT", "https://zkillredisq.stream/listen.php"),
		queueID:       queueID,
		userAgent:     config.GetEnv("REDISQ_USER_AGENT", "battlewatch/1.0"),
		ttwMin:        config.GetIntEnv("REDISQ_TTW_MIN", 1),
		ttwMax:        config.GetIntEnv("REDISQ_TTW_MAX", 10),
		nullThreshold: config.GetIntEnv("REDISQ_NULL_THRESHOLD", 5),
	}
}

// QueueID returns the queue identity used for sharding.
func (s *RedisQSource) QueueID() string {
	return s.queueID
}

// CurrentTTW returns the adaptive long-poll wait in seconds. After a streak
// of empty responses the source backs off to the maximum wait.
func (s *RedisQSource) CurrentTTW() int {
	if s.nullStreak >= s.nullThreshold {
		return s.ttwMax
	}
	return s.ttwMin
}

// NullStreak returns the current run of consecutive empty responses.
func (s *RedisQSource) NullStreak() int {
	return s.nullStreak
}

// Pull performs one long-poll. Returns (nil, nil) when the queue had nothing.
func (s *RedisQSource) Pull(ctx context.Context) (*models.Killmail, error) {
	url := fmt.Sprintf("%s?queueID=%s&ttw=%d", s.endpoint, s.queueID, s.CurrentTTW())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &evegateway.HTTPError{StatusCode: resp.StatusCode}
	}

	var redisqResp dto.RedisQResponse
	if err := json.NewDecoder(resp.Body).Decode(&redisqResp); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if redisqResp.Package == nil {
		s.nullStreak++
		return nil, nil
	}
	s.nullStreak = 0

	km, err := ParsePackage(redisqResp.Package, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.classify(ctx, km)
	return km, nil
}

// classify fills the derived space and security classes. A failed system
// lookup degrades to security 0.0 rather than blocking ingestion.
func (s *RedisQSource) classify(ctx context.Context, km *models.Killmail) {
	security := 0.0
	if s.systems != nil {
		if system, err := s.systems.GetSystem(ctx, km.SolarSystemID); err == nil {
			security = system.SecurityStatus
		}
	}
	km.SpaceClass = models.ClassifySpace(km.SolarSystemID, security)
	km.SecurityClass = models.ClassifySecurity(km.SolarSystemID, security)
}

// ParsePackage normalizes one upstream package into a killmail. The rules are
// bit-exact against the upstream feed:
//   - event ID prefers the inner killmail_id, falling back to the top-level
//     killID;
//   - the timestamp must parse as an ISO-8601 instant and may not postdate
//     the fetch;
//   - ID arrays are deduplicated preserving first-seen order, dropping nulls;
//   - ISK value is rounded half-to-even, nil when absent;
//   - the source URL is honored when present and synthesized otherwise.
func ParsePackage(pkg *dto.RedisQPackage, fetchedAt time.Time) (*models.Killmail, error) {
	if len(pkg.Killmail) == 0 || string(pkg.Killmail) == "null" {
		return nil, ErrMissingPayload
	}

	var raw dto.RawKillmail
	if err := json.Unmarshal(pkg.Killmail, &raw); err != nil {
		return nil, &DecodeError{Err: err}
	}

	killmailID := pkg.KillID
	if raw.KillmailID != nil {
		killmailID = *raw.KillmailID
	}
	if killmailID <= 0 {
		return nil, ErrMissingPayload
	}

	occurredAt, err := time.Parse(time.RFC3339, raw.KillmailTime)
	if err != nil {
		return nil, ErrInvalidTimestamp
	}
	// A killmail cannot occur after it was fetched.
	if occurredAt.UTC().After(fetchedAt) {
		return nil, ErrInvalidTimestamp
	}

	km := &models.Killmail{
		KillmailID:    killmailID,
		KillmailHash:  pkg.ZKB.Hash,
		KillmailTime:  occurredAt.UTC(),
		SolarSystemID: raw.SolarSystemID,

		VictimCharacterID: raw.Victim.CharacterID,
		VictimCorpID:      raw.Victim.CorporationID,
		VictimAllianceID:  raw.Victim.AllianceID,
		VictimShipTypeID:  raw.Victim.ShipTypeID,

		SourceURL: pkg.ZKB.URL,
		FetchedAt: fetchedAt,
	}

	var chars, corps, alliances []*int64
	for i := range raw.Attackers {
		chars = append(chars, raw.Attackers[i].CharacterID)
		corps = append(corps, raw.Attackers[i].CorporationID)
		alliances = append(alliances, raw.Attackers[i].AllianceID)
	}
	km.AttackerCharacterIDs = dedupOrdered(chars)
	km.AttackerCorpIDs = dedupOrdered(corps)
	km.AttackerAllianceIDs = dedupOrdered(alliances)

	if pkg.ZKB.TotalValue != nil {
		isk := int64(math.RoundToEven(*pkg.ZKB.TotalValue))
		km.ISKValue = &isk
	}

	if km.SourceURL == "" {
		km.SourceURL = fmt.Sprintf("https://zkillboard.com/kill/%d/", killmailID)
	}

	return km, nil
}

// dedupOrdered drops nil entries and deduplicates preserving first-seen order.
func dedupOrdered(ids []*int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == nil {
			continue
		}
		if _, dup := seen[*id]; dup {
			continue
		}
		seen[*id] = struct{}{}
		out = append(out, *id)
	}
	return out
}
