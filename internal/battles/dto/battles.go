package dto

import (
	"strconv"
	"time"

	"go-battlewatch/internal/battles/models"
	"go-battlewatch/pkg/names"
)

// ListBattlesInput is the GET /battles query.
type ListBattlesInput struct {
	Limit      int    `query:"limit" minimum:"1" maximum:"100" default:"25" doc:"Maximum number of battles to return"`
	SystemID   int64  `query:"system_id" required:"false" doc:"Filter by solar system ID"`
	SpaceClass string `query:"space_class" enum:"normal,wormhole,pochven" required:"false" doc:"Filter by space class"`
}

// GetBattleInput is the GET /battles/{id} request.
type GetBattleInput struct {
	ID string `path:"id" doc:"Battle UUID"`
}

// ReclusterInput is the POST /battles/recluster request.
type ReclusterInput struct {
	Body struct {
		From time.Time `json:"from" doc:"Start of the range to rebuild"`
		To   time.Time `json:"to" doc:"End of the range to rebuild"`
	}
}

// NamedID pairs an entity ID with its resolved name, ID as a decimal string.
type NamedID struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// BattleSummary is one battle in a listing.
type BattleSummary struct {
	ID                   string    `json:"id"`
	SolarSystem          NamedID   `json:"solar_system"`
	SpaceClass           string    `json:"space_class"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	TotalKills           int       `json:"total_kills"`
	TotalISKDestroyed    string    `json:"total_isk_destroyed"`
	ExternalReferenceURL string    `json:"external_reference_url"`
}

// BattleEventItem is one attached killmail in a battle detail.
type BattleEventItem struct {
	KillmailID        string    `json:"killmail_id"`
	OccurredAt        time.Time `json:"occurred_at"`
	VictimAlliance    *NamedID  `json:"victim_alliance,omitempty"`
	AttackerAlliances []NamedID `json:"attacker_alliances"`
	ISKValue          *string   `json:"isk_value,omitempty"`
}

// BattleParticipantItem is one participant in a battle detail.
type BattleParticipantItem struct {
	Character NamedID  `json:"character"`
	Alliance  *NamedID `json:"alliance,omitempty"`
	Corp      *NamedID `json:"corp,omitempty"`
	ShipType  *NamedID `json:"ship_type,omitempty"`
	IsVictim  bool     `json:"is_victim"`
}

// ListBattlesOutput is the battle listing response.
type ListBattlesOutput struct {
	Body struct {
		Items []BattleSummary `json:"items"`
		Count int             `json:"count"`
	}
}

// GetBattleOutput is the battle detail response.
type GetBattleOutput struct {
	Body struct {
		Battle       BattleSummary           `json:"battle"`
		Events       []BattleEventItem       `json:"events"`
		Participants []BattleParticipantItem `json:"participants"`
	}
}

// ReclusterOutput reports a recluster request's effect.
type ReclusterOutput struct {
	Body struct {
		KillmailsReset int64  `json:"killmails_reset"`
		Message        string `json:"message"`
	}
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

// SummaryFromModel projects a stored battle into its wire form.
func SummaryFromModel(b *models.Battle, resolved names.Names) BattleSummary {
	return BattleSummary{
		ID:                   b.ID,
		SolarSystem:          NamedID{ID: formatID(b.SolarSystemID), Name: resolved.Get(b.SolarSystemID)},
		SpaceClass:           b.SpaceClass,
		StartTime:            b.StartTime,
		EndTime:              b.EndTime,
		TotalKills:           b.TotalKills,
		TotalISKDestroyed:    strconv.FormatInt(b.TotalISKDestroyed, 10),
		ExternalReferenceURL: b.ExternalReferenceURL,
	}
}

// EventItemFromModel projects one battle attachment.
func EventItemFromModel(e *models.BattleEvent, resolved names.Names) BattleEventItem {
	item := BattleEventItem{
		KillmailID:     formatID(e.KillmailID),
		OccurredAt:     e.OccurredAt,
		VictimAlliance: namedPtr(e.VictimAllianceID, resolved),
	}
	item.AttackerAlliances = make([]NamedID, 0, len(e.AttackerAllianceIDs))
	for _, id := range e.AttackerAllianceIDs {
		item.AttackerAlliances = append(item.AttackerAlliances, NamedID{ID: formatID(id), Name: resolved.Get(id)})
	}
	if e.ISKValue != nil {
		isk := formatID(*e.ISKValue)
		item.ISKValue = &isk
	}
	return item
}

// ParticipantItemFromModel projects one battle participant.
func ParticipantItemFromModel(p *models.BattleParticipant, resolved names.Names) BattleParticipantItem {
	return BattleParticipantItem{
		Character: NamedID{ID: formatID(p.CharacterID), Name: resolved.Get(p.CharacterID)},
		Alliance:  namedPtr(p.AllianceID, resolved),
		Corp:      namedPtr(p.CorpID, resolved),
		ShipType:  namedPtr(p.ShipTypeID, resolved),
		IsVictim:  p.IsVictim,
	}
}
