package services

import (
	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
)

// MatchesRuleset is the tracking predicate shared by the ingester and the
// feed. trackedOnly forces list matching even when the ruleset itself does
// not ignore unlisted events.
//
// An event passes when:
//   - its participant count reaches min_pilots, and
//   - when list matching applies (trackedOnly or ignore_unlisted is set), its
//     victim or any attacker hits a tracked alliance or corp list, or its
//     system is tracked, or its security class is tracked. Any single list
//     match admits; empty lists match nothing, so forcing list matching with
//     no tracked lists drops every event.
func MatchesRuleset(km *models.Killmail, rs *rulesetModels.Ruleset, trackedOnly bool) bool {
	if km.ParticipantCount() < rs.MinPilots {
		return false
	}

	if !trackedOnly && !rs.IgnoreUnlisted {
		return true
	}

	if matchesAny(rs.TrackedAllianceIDs, km.VictimAllianceID, km.AttackerAllianceIDs) {
		return true
	}
	if matchesAny(rs.TrackedCorpIDs, km.VictimCorpID, km.AttackerCorpIDs) {
		return true
	}
	if containsID(rs.TrackedSystemIDs, km.SolarSystemID) {
		return true
	}
	for _, class := range rs.TrackedSecurityClasses {
		if class == km.SecurityClass {
			return true
		}
	}
	return false
}

func matchesAny(tracked []int64, victim *int64, attackers []int64) bool {
	if len(tracked) == 0 {
		return false
	}
	if victim != nil && containsID(tracked, *victim) {
		return true
	}
	for _, id := range attackers {
		if containsID(tracked, id) {
			return true
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
