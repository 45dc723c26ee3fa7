package dto

import "encoding/json"

// RedisQResponse is one long-poll response from the upstream queue. A nil
// Package is the normal idle case.
type RedisQResponse struct {
	Package *RedisQPackage `json:"package"`
}

// RedisQPackage is a single packaged killmail from the upstream queue. The
// inner killmail is kept raw so parse failures can be classified precisely.
type RedisQPackage struct {
	KillID   int64           `json:"killID"`
	Killmail json.RawMessage `json:"killmail"`
	ZKB      ZKBData         `json:"zkb"`
}

// ZKBData is the queue's own metadata envelope. TotalValue is a pointer so a
// missing value stays distinguishable from zero ISK.
type ZKBData struct {
	Hash       string   `json:"hash"`
	TotalValue *float64 `json:"totalValue"`
	URL        string   `json:"url"`
	NPC        bool     `json:"npc"`
	Solo       bool     `json:"solo"`
}

// RawKillmail is the loosely-typed inner killmail used during parsing. The
// timestamp stays a string until validated; nullable IDs stay pointers so
// null entries can be dropped from the ID arrays.
type RawKillmail struct {
	KillmailID    *int64        `json:"killmail_id"`
	KillmailTime  string        `json:"killmail_time"`
	SolarSystemID int64         `json:"solar_system_id"`
	Victim        RawVictim     `json:"victim"`
	Attackers     []RawAttacker `json:"attackers"`
}

// RawVictim is the victim block of the raw killmail.
type RawVictim struct {
	CharacterID   *int64 `json:"character_id"`
	CorporationID *int64 `json:"corporation_id"`
	AllianceID    *int64 `json:"alliance_id"`
	ShipTypeID    *int64 `json:"ship_type_id"`
}

// RawAttacker is one attacker block of the raw killmail.
type RawAttacker struct {
	CharacterID   *int64 `json:"character_id"`
	CorporationID *int64 `json:"corporation_id"`
	AllianceID    *int64 `json:"alliance_id"`
}
