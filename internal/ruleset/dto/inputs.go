package dto

// RulesetPatch is a partial update of the tracking ruleset. Nil fields are
// left unchanged; list fields replace wholesale.
type RulesetPatch struct {
	MinPilots              *int      `json:"min_pilots,omitempty" minimum:"1" maximum:"1000" doc:"Minimum participant count for an event to be tracked"`
	TrackedAllianceIDs     *[]int64  `json:"tracked_alliance_ids,omitempty" doc:"Alliance IDs to track"`
	TrackedCorpIDs         *[]int64  `json:"tracked_corp_ids,omitempty" doc:"Corporation IDs to track"`
	TrackedSystemIDs       *[]int64  `json:"tracked_system_ids,omitempty" doc:"Solar system IDs to track"`
	TrackedSecurityClasses *[]string `json:"tracked_security_classes,omitempty" doc:"Security classes to track (highsec, lowsec, nullsec, wormhole, pochven)"`
	IgnoreUnlisted         *bool     `json:"ignore_unlisted,omitempty" doc:"Drop events that match no tracked list before ingestion"`
}

// UpdateRulesetInput is the PUT /rulesets/current request.
type UpdateRulesetInput struct {
	Body RulesetPatch
}

// GetRulesetInput is the GET /rulesets/current request.
type GetRulesetInput struct{}
