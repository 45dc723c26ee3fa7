package models

import "time"

const (
	BattlesCollection            = "battles"
	BattleEventsCollection       = "battle_events"
	BattleParticipantsCollection = "battle_participants"
)

// Battle is one reconstructed battle. The primary key is a generated UUID;
// (solar_system_id, start_time, end_time) is the effective natural identity.
type Battle struct {
	ID                   string    `bson:"_id" json:"id"`
	SolarSystemID        int64     `bson:"solar_system_id" json:"solar_system_id"`
	SpaceClass           string    `bson:"space_class" json:"space_class"`
	StartTime            time.Time `bson:"start_time" json:"start_time"`
	EndTime              time.Time `bson:"end_time" json:"end_time"`
	TotalKills           int       `bson:"total_kills" json:"total_kills"`
	TotalISKDestroyed    int64     `bson:"total_isk_destroyed" json:"total_isk_destroyed"`
	ExternalReferenceURL string    `bson:"external_reference_url" json:"external_reference_url"`
	CreatedAt            time.Time `bson:"created_at" json:"created_at"`
}

// BattleEvent attaches one killmail to a battle, keyed
// (battle_id, killmail_id).
type BattleEvent struct {
	BattleID            string    `bson:"battle_id" json:"battle_id"`
	KillmailID          int64     `bson:"killmail_id" json:"killmail_id"`
	OccurredAt          time.Time `bson:"occurred_at" json:"occurred_at"`
	VictimAllianceID    *int64    `bson:"victim_alliance_id,omitempty" json:"victim_alliance_id,omitempty"`
	AttackerAllianceIDs []int64   `bson:"attacker_alliance_ids" json:"attacker_alliance_ids"`
	ISKValue            *int64    `bson:"isk_value,omitempty" json:"isk_value,omitempty"`
	SideID              *int64    `bson:"side_id,omitempty" json:"side_id,omitempty"`
}

// BattleParticipant is one character's presence in a battle, keyed
// (battle_id, character_id). The latest upsert wins conflicts.
type BattleParticipant struct {
	BattleID    string `bson:"battle_id" json:"battle_id"`
	CharacterID int64  `bson:"character_id" json:"character_id"`
	AllianceID  *int64 `bson:"alliance_id,omitempty" json:"alliance_id,omitempty"`
	CorpID      *int64 `bson:"corp_id,omitempty" json:"corp_id,omitempty"`
	ShipTypeID  *int64 `bson:"ship_type_id,omitempty" json:"ship_type_id,omitempty"`
	SideID      *int64 `bson:"side_id,omitempty" json:"side_id,omitempty"`
	IsVictim    bool   `bson:"is_victim" json:"is_victim"`
}
