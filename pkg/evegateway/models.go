package evegateway

import "time"

// Character is the public character sheet.
type Character struct {
	CharacterID    int64     `json:"character_id"`
	Name           string    `json:"name"`
	CorporationID  int64     `json:"corporation_id"`
	AllianceID     int64     `json:"alliance_id,omitempty"`
	SecurityStatus float64   `json:"security_status,omitempty"`
	Birthday       time.Time `json:"birthday,omitempty"`
}

// Corporation is the public corporation sheet.
type Corporation struct {
	CorporationID int64  `json:"corporation_id"`
	Name          string `json:"name"`
	Ticker        string `json:"ticker"`
	AllianceID    int64  `json:"alliance_id,omitempty"`
	MemberCount   int    `json:"member_count,omitempty"`
}

// Alliance is the public alliance sheet.
type Alliance struct {
	AllianceID int64  `json:"alliance_id"`
	Name       string `json:"name"`
	Ticker     string `json:"ticker"`
}

// SolarSystem is the public solar system record.
type SolarSystem struct {
	SystemID        int64   `json:"system_id"`
	Name            string  `json:"name"`
	ConstellationID int64   `json:"constellation_id"`
	SecurityStatus  float64 `json:"security_status"`
}

// Killmail is the full upstream killmail payload.
type Killmail struct {
	KillmailID    int64              `json:"killmail_id"`
	KillmailTime  time.Time          `json:"killmail_time"`
	SolarSystemID int64              `json:"solar_system_id"`
	Victim        KillmailVictim     `json:"victim"`
	Attackers     []KillmailAttacker `json:"attackers"`
}

// KillmailVictim is the victim block of a killmail.
type KillmailVictim struct {
	CharacterID   int64 `json:"character_id,omitempty"`
	CorporationID int64 `json:"corporation_id,omitempty"`
	AllianceID    int64 `json:"alliance_id,omitempty"`
	ShipTypeID    int64 `json:"ship_type_id"`
	DamageTaken   int64 `json:"damage_taken"`
}

// KillmailAttacker is a single attacker block of a killmail.
type KillmailAttacker struct {
	CharacterID    int64   `json:"character_id,omitempty"`
	CorporationID  int64   `json:"corporation_id,omitempty"`
	AllianceID     int64   `json:"alliance_id,omitempty"`
	ShipTypeID     int64   `json:"ship_type_id,omitempty"`
	WeaponTypeID   int64   `json:"weapon_type_id,omitempty"`
	DamageDone     int64   `json:"damage_done"`
	FinalBlow      bool    `json:"final_blow"`
	SecurityStatus float64 `json:"security_status,omitempty"`
}
