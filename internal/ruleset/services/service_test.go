package services

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-battlewatch/internal/ruleset/dto"
	"go-battlewatch/internal/ruleset/models"
)

func intPtr(v int) *int { return &v }

func classesPtr(classes ...string) *[]string { return &classes }

func TestValidatePatch(t *testing.T) {
	s := &Service{validate: validator.New()}

	cases := []struct {
		name    string
		patch   dto.RulesetPatch
		wantErr bool
	}{
		{"empty patch", dto.RulesetPatch{}, false},
		{"min pilots in range", dto.RulesetPatch{MinPilots: intPtr(25)}, false},
		{"min pilots at lower bound", dto.RulesetPatch{MinPilots: intPtr(1)}, false},
		{"min pilots at upper bound", dto.RulesetPatch{MinPilots: intPtr(1000)}, false},
		{"min pilots zero", dto.RulesetPatch{MinPilots: intPtr(0)}, true},
		{"min pilots too large", dto.RulesetPatch{MinPilots: intPtr(1001)}, true},
		{"valid security classes", dto.RulesetPatch{TrackedSecurityClasses: classesPtr("highsec", "pochven")}, false},
		{"unknown security class", dto.RulesetPatch{TrackedSecurityClasses: classesPtr("midsec")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.validatePatch(tc.patch)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDedupIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupIDs([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, dedupIDs([]int64{0, -5}))
	assert.Empty(t, dedupIDs(nil))
}

func TestDefaultRuleset(t *testing.T) {
	rs := models.Default()

	require.NotNil(t, rs)
	assert.Equal(t, models.RulesetID, rs.ID)
	assert.Equal(t, 1, rs.MinPilots)
	assert.False(t, rs.IgnoreUnlisted)
	assert.False(t, rs.HasTrackedLists())
}

func TestHasTrackedLists(t *testing.T) {
	rs := models.Default()
	assert.False(t, rs.HasTrackedLists())

	rs.TrackedSystemIDs = []int64{30000142}
	assert.True(t, rs.HasTrackedLists())

	rs = models.Default()
	rs.TrackedSecurityClasses = []string{"highsec"}
	assert.True(t, rs.HasTrackedLists())
}
