package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/names"
)

func int64Ptr(v int64) *int64 { return &v }

func TestKillmailItemFromModel(t *testing.T) {
	isk := int64(9_223_372_036_854_775_807)
	km := &models.Killmail{
		KillmailID:           128000001,
		KillmailTime:         time.Date(2026, 3, 1, 11, 58, 42, 0, time.UTC),
		SolarSystemID:        30000142,
		SpaceClass:           models.SpaceNormal,
		SecurityClass:        models.SecurityHighsec,
		VictimCharacterID:    int64Ptr(9001),
		VictimCorpID:         int64Ptr(98000001),
		AttackerCharacterIDs: []int64{7001, 7002},
		AttackerCorpIDs:      []int64{98000002},
		AttackerAllianceIDs:  []int64{},
		ISKValue:             &isk,
		SourceURL:            "https://zkillboard.com/kill/128000001/",
	}

	resolved := names.Names{
		30000142: "Jita",
		9001:     "Test Victim",
		7001:     "Test Attacker",
	}

	item := KillmailItemFromModel(km, resolved)

	// IDs travel as decimal strings; int64 overflows some JSON consumers.
	assert.Equal(t, "128000001", item.KillmailID)
	assert.Equal(t, NamedID{ID: "30000142", Name: "Jita"}, item.SolarSystem)

	require.NotNil(t, item.VictimCharacter)
	assert.Equal(t, NamedID{ID: "9001", Name: "Test Victim"}, *item.VictimCharacter)
	require.NotNil(t, item.VictimCorp)
	assert.Equal(t, "98000001", item.VictimCorp.ID)
	assert.Empty(t, item.VictimCorp.Name)
	assert.Nil(t, item.VictimAlliance)

	require.Len(t, item.AttackerCharacters, 2)
	assert.Equal(t, NamedID{ID: "7001", Name: "Test Attacker"}, item.AttackerCharacters[0])
	assert.Equal(t, "7002", item.AttackerCharacters[1].ID)
	assert.Empty(t, item.AttackerAlliances)

	require.NotNil(t, item.ISKValue)
	assert.Equal(t, "9223372036854775807", *item.ISKValue)
}

func TestKillmailItemFromModelNilISK(t *testing.T) {
	km := &models.Killmail{
		KillmailID:   128000002,
		KillmailTime: time.Now().UTC(),
	}

	item := KillmailItemFromModel(km, names.Names{})
	assert.Nil(t, item.ISKValue)
	assert.Nil(t, item.VictimCharacter)
	assert.Empty(t, item.AttackerCharacters)
}
