package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
)

func trackedKillmail() *models.Killmail {
	return &models.Killmail{
		KillmailID:           128000001,
		SolarSystemID:        30000142,
		SecurityClass:        models.SecurityHighsec,
		VictimCharacterID:    int64Ptr(9001),
		VictimAllianceID:     int64Ptr(99000001),
		VictimCorpID:         int64Ptr(98000001),
		AttackerCharacterIDs: []int64{7001, 7002},
		AttackerAllianceIDs:  []int64{99000002},
		AttackerCorpIDs:      []int64{98000002},
	}
}

func TestMatchesRuleset(t *testing.T) {
	cases := []struct {
		name        string
		killmail    func() *models.Killmail
		ruleset     rulesetModels.Ruleset
		trackedOnly bool
		want        bool
	}{
		{
			name:     "empty lists admit everything",
			killmail: trackedKillmail,
			ruleset:  rulesetModels.Ruleset{MinPilots: 1},
			want:     true,
		},
		{
			name:     "min pilots rejects small fights",
			killmail: trackedKillmail,
			ruleset:  rulesetModels.Ruleset{MinPilots: 10},
			want:     false,
		},
		{
			name:     "lists ignored without ignore_unlisted or trackedOnly",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{12345},
			},
			want: true,
		},
		{
			name:     "ignore_unlisted rejects unmatched event",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{12345},
				IgnoreUnlisted:     true,
			},
			want: false,
		},
		{
			name:     "victim alliance match admits",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{99000001},
				IgnoreUnlisted:     true,
			},
			want: true,
		},
		{
			name:     "attacker alliance match admits",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{99000002},
				IgnoreUnlisted:     true,
			},
			want: true,
		},
		{
			name:     "attacker corp match admits",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:      1,
				TrackedCorpIDs: []int64{98000002},
				IgnoreUnlisted: true,
			},
			want: true,
		},
		{
			name:     "system match admits",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:        1,
				TrackedSystemIDs: []int64{30000142},
				IgnoreUnlisted:   true,
			},
			want: true,
		},
		{
			name:     "security class match admits",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:              1,
				TrackedSecurityClasses: []string{models.SecurityHighsec},
				IgnoreUnlisted:         true,
			},
			want: true,
		},
		{
			name:     "any single list hit is enough",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{12345},
				TrackedSystemIDs:   []int64{30000142},
				IgnoreUnlisted:     true,
			},
			want: true,
		},
		{
			name:     "trackedOnly forces list matching",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{12345},
			},
			trackedOnly: true,
			want:        false,
		},
		{
			name:     "trackedOnly with empty lists drops everything",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots: 1,
			},
			trackedOnly: true,
			want:        false,
		},
		{
			name:     "ignore_unlisted with empty lists drops everything",
			killmail: trackedKillmail,
			ruleset: rulesetModels.Ruleset{
				MinPilots:      1,
				IgnoreUnlisted: true,
			},
			want: false,
		},
		{
			name: "nil victim alliance does not match",
			killmail: func() *models.Killmail {
				km := trackedKillmail()
				km.VictimAllianceID = nil
				km.AttackerAllianceIDs = nil
				return km
			},
			ruleset: rulesetModels.Ruleset{
				MinPilots:          1,
				TrackedAllianceIDs: []int64{99000001},
				IgnoreUnlisted:     true,
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs := tc.ruleset
			assert.Equal(t, tc.want, MatchesRuleset(tc.killmail(), &rs, tc.trackedOnly))
		})
	}
}

func TestParticipantCount(t *testing.T) {
	// Structureless events still count one participant.
	empty := &models.Killmail{}
	assert.Equal(t, 1, empty.ParticipantCount())

	victimOnly := &models.Killmail{VictimCharacterID: int64Ptr(9001)}
	assert.Equal(t, 1, victimOnly.ParticipantCount())

	full := trackedKillmail()
	assert.Equal(t, 3, full.ParticipantCount())

	npcVictim := &models.Killmail{AttackerCharacterIDs: []int64{7001, 7002}}
	assert.Equal(t, 2, npcVictim.ParticipantCount())
}
