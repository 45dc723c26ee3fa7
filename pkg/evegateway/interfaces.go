package evegateway

import (
	"context"
	"time"
)

// NameEntry is a resolved entity name.
type NameEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// NameResolver resolves entity IDs to names in bulk. Implementations batch,
// deduplicate and cache; callers may pass any mix of character, corporation,
// alliance and system IDs.
type NameResolver interface {
	ResolveNames(ctx context.Context, ids []int64) (map[int64]NameEntry, error)
}

// EntityFetcher fetches single public entities.
type EntityFetcher interface {
	GetCharacter(ctx context.Context, characterID int64) (*Character, error)
	GetCorporation(ctx context.Context, corporationID int64) (*Corporation, error)
	GetAlliance(ctx context.Context, allianceID int64) (*Alliance, error)
	GetSystem(ctx context.Context, systemID int64) (*SolarSystem, error)
}

// KillmailFetcher fetches full killmail payloads.
type KillmailFetcher interface {
	GetKillmail(ctx context.Context, killmailID int64, hash string) (*Killmail, error)
}

// Cache is one tier of response caching. Implementations must be safe for
// concurrent use. A tier that fails is allowed to degrade to a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
}
