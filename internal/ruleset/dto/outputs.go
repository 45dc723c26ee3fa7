package dto

import (
	"time"

	"go-battlewatch/internal/ruleset/models"
)

// RulesetBody is the wire form of the tracking ruleset.
type RulesetBody struct {
	MinPilots              int       `json:"min_pilots"`
	TrackedAllianceIDs     []int64   `json:"tracked_alliance_ids"`
	TrackedCorpIDs         []int64   `json:"tracked_corp_ids"`
	TrackedSystemIDs       []int64   `json:"tracked_system_ids"`
	TrackedSecurityClasses []string  `json:"tracked_security_classes"`
	IgnoreUnlisted         bool      `json:"ignore_unlisted"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// RulesetOutput wraps a ruleset response.
type RulesetOutput struct {
	Body RulesetBody
}

// FromModel converts the stored ruleset into its wire form.
func FromModel(r *models.Ruleset) RulesetBody {
	return RulesetBody{
		MinPilots:              r.MinPilots,
		TrackedAllianceIDs:     r.TrackedAllianceIDs,
		TrackedCorpIDs:         r.TrackedCorpIDs,
		TrackedSystemIDs:       r.TrackedSystemIDs,
		TrackedSecurityClasses: r.TrackedSecurityClasses,
		IgnoreUnlisted:         r.IgnoreUnlisted,
		UpdatedAt:              r.UpdatedAt,
	}
}
