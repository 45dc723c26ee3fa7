package models

import "time"

// RulesetID is the fixed document ID of the singleton tracking ruleset.
const RulesetID = "tracking_ruleset"

// Ruleset is the process-wide tracking filter. Exactly one document exists;
// mutations go through the ruleset service, which broadcasts an invalidation
// after every committed update.
type Ruleset struct {
	ID                     string    `bson:"_id" json:"-"`
	MinPilots              int       `bson:"min_pilots" json:"min_pilots"`
	TrackedAllianceIDs     []int64   `bson:"tracked_alliance_ids" json:"tracked_alliance_ids"`
	TrackedCorpIDs         []int64   `bson:"tracked_corp_ids" json:"tracked_corp_ids"`
	TrackedSystemIDs       []int64   `bson:"tracked_system_ids" json:"tracked_system_ids"`
	TrackedSecurityClasses []string  `bson:"tracked_security_classes" json:"tracked_security_classes"`
	IgnoreUnlisted         bool      `bson:"ignore_unlisted" json:"ignore_unlisted"`
	UpdatedAt              time.Time `bson:"updated_at" json:"updated_at"`
}

// Default returns the permissive ruleset seeded at schema init.
func Default() *Ruleset {
	return &Ruleset{
		ID:                     RulesetID,
		MinPilots:              1,
		TrackedAllianceIDs:     []int64{},
		TrackedCorpIDs:         []int64{},
		TrackedSystemIDs:       []int64{},
		TrackedSecurityClasses: []string{},
		IgnoreUnlisted:         false,
		UpdatedAt:              time.Now().UTC(),
	}
}

// HasTrackedLists reports whether any tracked list names anything.
func (r *Ruleset) HasTrackedLists() bool {
	return len(r.TrackedAllianceIDs) > 0 ||
		len(r.TrackedCorpIDs) > 0 ||
		len(r.TrackedSystemIDs) > 0 ||
		len(r.TrackedSecurityClasses) > 0
}
