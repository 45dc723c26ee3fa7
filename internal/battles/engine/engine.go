// Package engine is the pure clustering core. It groups killmails into
// candidate battles by system, time window and gap; it performs no I/O and is
// deterministic for a given input and parameter set, UUIDs aside.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Params are the clustering knobs.
type Params struct {
	WindowMinutes int
	GapMaxMinutes int
	MinKills      int
}

// DefaultParams returns the standard clustering parameters.
func DefaultParams() Params {
	return Params{WindowMinutes: 60, GapMaxMinutes: 20, MinKills: 1}
}

// Event is one unprocessed killmail as the engine sees it.
type Event struct {
	EventID    int64
	SystemID   int64
	OccurredAt time.Time
	SpaceClass string
	ISKValue   *int64

	VictimCharacterID *int64
	VictimCorpID      *int64
	VictimAllianceID  *int64
	VictimShipTypeID  *int64

	AttackerCharacterIDs []int64
	AttackerAllianceIDs  []int64
}

// Battle is the battle row of a plan.
type Battle struct {
	ID                string
	SystemID          int64
	SpaceClass        string
	StartTime         time.Time
	EndTime           time.Time
	TotalKills        int
	TotalISKDestroyed int64
	ReferenceURL      string
}

// EventAttachment links one event into a battle.
type EventAttachment struct {
	BattleID            string
	EventID             int64
	OccurredAt          time.Time
	VictimAllianceID    *int64
	AttackerAllianceIDs []int64
	ISKValue            *int64
	SideID              *int64
}

// Participant is one character's presence in a battle, keyed
// (battle_id, character_id). The latest sighting wins conflicts.
type Participant struct {
	BattleID    string
	CharacterID int64
	AllianceID  *int64
	CorpID      *int64
	ShipTypeID  *int64
	SideID      *int64
	IsVictim    bool
}

// Plan is one battle ready for transactional persistence.
type Plan struct {
	Battle       Battle
	Events       []EventAttachment
	Participants []Participant
	EventIDs     []int64
}

// Result is the full outcome of one clustering pass.
type Result struct {
	Plans   []Plan
	Ignored []int64
}

// Cluster partitions events by system, sweeps each partition in time order,
// and splits the resulting clusters into plans and ignored IDs by min_kills.
// Gap and window comparisons are closed intervals: an event exactly
// gap_max_minutes after the previous one extends the cluster.
func Cluster(events []Event, params Params) Result {
	if params.MinKills < 1 {
		params.MinKills = 1
	}
	window := time.Duration(params.WindowMinutes) * time.Minute
	gapMax := time.Duration(params.GapMaxMinutes) * time.Minute

	partitions := make(map[int64][]Event)
	for _, event := range events {
		partitions[event.SystemID] = append(partitions[event.SystemID], event)
	}

	systemIDs := make([]int64, 0, len(partitions))
	for systemID := range partitions {
		systemIDs = append(systemIDs, systemID)
	}
	sort.Slice(systemIDs, func(i, j int) bool { return systemIDs[i] < systemIDs[j] })

	var result Result
	for _, systemID := range systemIDs {
		partition := partitions[systemID]
		sort.Slice(partition, func(i, j int) bool {
			if !partition[i].OccurredAt.Equal(partition[j].OccurredAt) {
				return partition[i].OccurredAt.Before(partition[j].OccurredAt)
			}
			return partition[i].EventID < partition[j].EventID
		})

		var cluster []Event
		flush := func() {
			if len(cluster) == 0 {
				return
			}
			if len(cluster) < params.MinKills {
				for _, event := range cluster {
					result.Ignored = append(result.Ignored, event.EventID)
				}
			} else {
				result.Plans = append(result.Plans, buildPlan(systemID, cluster))
			}
			cluster = nil
		}

		for _, event := range partition {
			if len(cluster) > 0 {
				sinceLast := event.OccurredAt.Sub(cluster[len(cluster)-1].OccurredAt)
				sinceFirst := event.OccurredAt.Sub(cluster[0].OccurredAt)
				if sinceLast > gapMax || sinceFirst > window {
					flush()
				}
			}
			cluster = append(cluster, event)
		}
		flush()
	}

	return result
}

func buildPlan(systemID int64, cluster []Event) Plan {
	battleID := uuid.NewString()

	battle := Battle{
		ID:         battleID,
		SystemID:   systemID,
		SpaceClass: cluster[0].SpaceClass,
		StartTime:  cluster[0].OccurredAt,
		EndTime:    cluster[len(cluster)-1].OccurredAt,
		TotalKills: len(cluster),
	}
	battle.ReferenceURL = relatedURL(systemID, battle.StartTime)

	plan := Plan{
		Battle:   battle,
		EventIDs: make([]int64, 0, len(cluster)),
	}

	participants := make(map[int64]*Participant)

	// Cluster is already (occurred_at, event_id) ordered, so later sightings
	// legitimately overwrite earlier ones.
	for _, event := range cluster {
		plan.EventIDs = append(plan.EventIDs, event.EventID)
		if event.ISKValue != nil {
			plan.Battle.TotalISKDestroyed += *event.ISKValue
		}

		plan.Events = append(plan.Events, EventAttachment{
			BattleID:            battleID,
			EventID:             event.EventID,
			OccurredAt:          event.OccurredAt,
			VictimAllianceID:    event.VictimAllianceID,
			AttackerAllianceIDs: event.AttackerAllianceIDs,
			ISKValue:            event.ISKValue,
		})

		if event.VictimCharacterID != nil {
			sight(participants, battleID, *event.VictimCharacterID, sighting{
				allianceID: event.VictimAllianceID,
				corpID:     event.VictimCorpID,
				shipTypeID: event.VictimShipTypeID,
				isVictim:   true,
			})
		}
		for _, characterID := range event.AttackerCharacterIDs {
			sight(participants, battleID, characterID, sighting{})
		}
	}

	characterIDs := make([]int64, 0, len(participants))
	for characterID := range participants {
		characterIDs = append(characterIDs, characterID)
	}
	sort.Slice(characterIDs, func(i, j int) bool { return characterIDs[i] < characterIDs[j] })
	for _, characterID := range characterIDs {
		plan.Participants = append(plan.Participants, *participants[characterID])
	}

	return plan
}

type sighting struct {
	allianceID *int64
	corpID     *int64
	shipTypeID *int64
	isVictim   bool
}

// sight records one appearance of a character. The latest sighting wins;
// attribute values only overwrite when the new sighting knows them.
func sight(participants map[int64]*Participant, battleID string, characterID int64, s sighting) {
	participant, ok := participants[characterID]
	if !ok {
		participant = &Participant{BattleID: battleID, CharacterID: characterID}
		participants[characterID] = participant
	}
	if s.allianceID != nil {
		participant.AllianceID = s.allianceID
	}
	if s.corpID != nil {
		participant.CorpID = s.corpID
	}
	if s.shipTypeID != nil {
		participant.ShipTypeID = s.shipTypeID
	}
	participant.IsVictim = s.isVictim
}

func relatedURL(systemID int64, start time.Time) string {
	return fmt.Sprintf("https://zkillboard.com/related/%d/%s/", systemID, start.UTC().Format("200601021504"))
}
