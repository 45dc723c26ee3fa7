package dto

import (
	"strconv"
	"time"

	"go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/names"
)

// RecentKillmailsInput is the GET /killmails/recent query.
type RecentKillmailsInput struct {
	Limit        int    `query:"limit" minimum:"1" maximum:"100" default:"25" doc:"Maximum number of killmails to return"`
	SpaceType    string `query:"space_type" enum:"normal,wormhole,pochven" required:"false" doc:"Filter by space class"`
	SecurityType string `query:"security_type" enum:"highsec,lowsec,nullsec,wormhole,pochven" required:"false" doc:"Filter by security class"`
	TrackedOnly  bool   `query:"trackedOnly" doc:"Only return killmails matching the tracking ruleset's lists"`
}

// StreamKillmailsInput is the GET /killmails/stream query.
type StreamKillmailsInput struct {
	Limit          int    `query:"limit" minimum:"1" maximum:"100" default:"25" doc:"Snapshot size"`
	SpaceType      string `query:"space_type" enum:"normal,wormhole,pochven" required:"false" doc:"Filter by space class"`
	SecurityType   string `query:"security_type" enum:"highsec,lowsec,nullsec,wormhole,pochven" required:"false" doc:"Filter by security class"`
	TrackedOnly    bool   `query:"trackedOnly" doc:"Only stream killmails matching the tracking ruleset's lists"`
	Once           bool   `query:"once" doc:"Send one snapshot frame and close"`
	PollIntervalMs int    `query:"pollIntervalMs" minimum:"1000" maximum:"60000" default:"5000" doc:"Poll interval between frames in milliseconds"`
}

// NamedID pairs an entity ID with its resolved display name. IDs are decimal
// strings; 64-bit values exceed the safe integer range of some consumers.
type NamedID struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// KillmailItem is one feed entry with names attached.
type KillmailItem struct {
	KillmailID    string    `json:"killmail_id"`
	KillmailTime  time.Time `json:"killmail_time"`
	SolarSystem   NamedID   `json:"solar_system"`
	SpaceClass    string    `json:"space_class"`
	SecurityClass string    `json:"security_class"`

	VictimCharacter *NamedID `json:"victim_character,omitempty"`
	VictimCorp      *NamedID `json:"victim_corp,omitempty"`
	VictimAlliance  *NamedID `json:"victim_alliance,omitempty"`

	AttackerCharacters []NamedID `json:"attacker_characters"`
	AttackerCorps      []NamedID `json:"attacker_corps"`
	AttackerAlliances  []NamedID `json:"attacker_alliances"`

	ISKValue  *string `json:"isk_value,omitempty"`
	SourceURL string  `json:"source_url"`
	BattleID  *string `json:"battle_id,omitempty"`
}

// RecentKillmailsResponse is the recent feed payload.
type RecentKillmailsResponse struct {
	Items []KillmailItem `json:"items"`
	Count int            `json:"count"`
}

// RecentKillmailsOutput wraps the recent feed response.
type RecentKillmailsOutput struct {
	Body RecentKillmailsResponse
}

// SnapshotEvent is the first SSE frame on a stream connection.
type SnapshotEvent struct {
	Items []KillmailItem `json:"items"`
	Count int            `json:"count"`
}

// KillmailEvent carries one new killmail on an SSE stream.
type KillmailEvent struct {
	Item KillmailItem `json:"item"`
}

// KeepAliveEvent is the idle frame between polls with no new data.
type KeepAliveEvent struct {
	Time time.Time `json:"time"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func namedPtr(id *int64, resolved names.Names) *NamedID {
	if id == nil {
		return nil
	}
	return &NamedID{ID: formatID(*id), Name: resolved.Get(*id)}
}

func namedList(ids []int64, resolved names.Names) []NamedID {
	out := make([]NamedID, 0, len(ids))
	for _, id := range ids {
		out = append(out, NamedID{ID: formatID(id), Name: resolved.Get(id)})
	}
	return out
}

// KillmailItemFromModel projects a stored killmail into its wire form,
// attaching resolved names.
func KillmailItemFromModel(km *models.Killmail, resolved names.Names) KillmailItem {
	item := KillmailItem{
		KillmailID:    formatID(km.KillmailID),
		KillmailTime:  km.KillmailTime,
		SolarSystem:   NamedID{ID: formatID(km.SolarSystemID), Name: resolved.Get(km.SolarSystemID)},
		SpaceClass:    km.SpaceClass,
		SecurityClass: km.SecurityClass,

		VictimCharacter: namedPtr(km.VictimCharacterID, resolved),
		VictimCorp:      namedPtr(km.VictimCorpID, resolved),
		VictimAlliance:  namedPtr(km.VictimAllianceID, resolved),

		AttackerCharacters: namedList(km.AttackerCharacterIDs, resolved),
		AttackerCorps:      namedList(km.AttackerCorpIDs, resolved),
		AttackerAlliances:  namedList(km.AttackerAllianceIDs, resolved),

		SourceURL: km.SourceURL,
		BattleID:  km.BattleID,
	}
	if km.ISKValue != nil {
		isk := formatID(*km.ISKValue)
		item.ISKValue = &isk
	}
	return item
}
