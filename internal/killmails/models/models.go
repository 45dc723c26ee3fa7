package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	KillmailsCollection   = "killmails"
	EnrichmentsCollection = "enrichments"
)

// Killmail is one ingested combat event. Immutable after insert except for
// processed_at and battle_id, which are owned by the clusterer.
type Killmail struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	KillmailID   int64              `bson:"killmail_id" json:"killmail_id"`
	KillmailHash string             `bson:"killmail_hash" json:"killmail_hash"`
	KillmailTime time.Time          `bson:"killmail_time" json:"killmail_time"`

	// Location
	SolarSystemID int64  `bson:"solar_system_id" json:"solar_system_id"`
	SpaceClass    string `bson:"space_class" json:"space_class"`
	SecurityClass string `bson:"security_class" json:"security_class"`

	// Victim
	VictimCharacterID *int64 `bson:"victim_character_id,omitempty" json:"victim_character_id,omitempty"`
	VictimCorpID      *int64 `bson:"victim_corp_id,omitempty" json:"victim_corp_id,omitempty"`
	VictimAllianceID  *int64 `bson:"victim_alliance_id,omitempty" json:"victim_alliance_id,omitempty"`
	VictimShipTypeID  *int64 `bson:"victim_ship_type_id,omitempty" json:"victim_ship_type_id,omitempty"`

	// Attackers, deduplicated preserving first-seen order
	AttackerCharacterIDs []int64 `bson:"attacker_character_ids" json:"attacker_character_ids"`
	AttackerCorpIDs      []int64 `bson:"attacker_corp_ids" json:"attacker_corp_ids"`
	AttackerAllianceIDs  []int64 `bson:"attacker_alliance_ids" json:"attacker_alliance_ids"`

	ISKValue  *int64    `bson:"isk_value,omitempty" json:"isk_value,omitempty"`
	SourceURL string    `bson:"source_url" json:"source_url"`
	FetchedAt time.Time `bson:"fetched_at" json:"fetched_at"`

	// Clustering state
	ProcessedAt *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	BattleID    *string    `bson:"battle_id,omitempty" json:"battle_id,omitempty"`
}

// ParticipantCount is the ruleset predicate's participant metric: one for the
// victim character if present plus all attacker characters, floored at 1.
func (k *Killmail) ParticipantCount() int {
	count := len(k.AttackerCharacterIDs)
	if k.VictimCharacterID != nil {
		count++
	}
	if count < 1 {
		count = 1
	}
	return count
}

// Enrichment state machine states.
const (
	EnrichmentPending         = "pending"
	EnrichmentSucceeded       = "succeeded"
	EnrichmentFailedTransient = "failed_transient"
	EnrichmentFailedPermanent = "failed_permanent"
)

// Enrichment is the one-to-one enrichment row for a killmail. Created pending
// by the ingester; every further transition is owned by the enrichment worker.
type Enrichment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	KillmailID int64              `bson:"killmail_id" json:"killmail_id"`
	Status     string             `bson:"status" json:"status"`
	Payload    bson.M             `bson:"payload,omitempty" json:"payload,omitempty"`
	Error      *string            `bson:"error,omitempty" json:"error,omitempty"`
	Attempts   int                `bson:"attempts" json:"attempts"`
	FetchedAt  time.Time          `bson:"fetched_at" json:"fetched_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// Terminal reports whether the enrichment can never change state again.
func (e *Enrichment) Terminal() bool {
	return e.Status == EnrichmentSucceeded || e.Status == EnrichmentFailedPermanent
}
