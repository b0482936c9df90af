// Package decision implements the release decision engine. Decide is a pure
// function: given the same profile, rules, and current file state it always
// returns the same action.
package decision

import (
	"strings"

	"github.com/kumoarr/kumoarr/internal/parser"
	"github.com/kumoarr/kumoarr/internal/quality"
)

// ActionType classifies the outcome of a decision.
type ActionType int

const (
	Reject ActionType = iota
	Accept
	Upgrade
)

func (t ActionType) String() string {
	switch t {
	case Accept:
		return "accept"
	case Upgrade:
		return "upgrade"
	default:
		return "reject"
	}
}

// UpgradeReason explains why an Upgrade action was chosen.
type UpgradeReason string

const (
	UpgradeSeadexRelease UpgradeReason = "seadex_release"
	UpgradeBetterQuality UpgradeReason = "better_quality"
)

// Reject reasons, recorded at debug level by callers.
const (
	RejectQualityNotAllowed = "quality not allowed"
	RejectMissingTerm       = "missing required term"
	RejectBlockedTerm       = "contains blocked term"
	RejectSize              = "size"
	RejectUpgradesDisabled  = "upgrades disabled"
	RejectAtCutoff          = "already at cutoff"
	RejectNoImprovement     = "no improvement"
)

// Action is the outcome of evaluating one candidate for one episode.
type Action struct {
	Type          ActionType      `json:"type"`
	Quality       quality.Quality `json:"quality"`
	IsSeadex      bool            `json:"isSeadex"`
	UpgradeReason UpgradeReason   `json:"upgradeReason,omitempty"`
	RejectReason  string          `json:"rejectReason,omitempty"`
}

// ShouldDownload reports whether the action leads to a grab.
func (a Action) ShouldDownload() bool {
	return a.Type == Accept || a.Type == Upgrade
}

// CurrentFile describes the episode's existing file, if any.
type CurrentFile struct {
	Quality  quality.Quality
	IsSeadex bool
}

func reject(q quality.Quality, reason string) Action {
	return Action{Type: Reject, Quality: q, RejectReason: reason}
}

func upgrade(q quality.Quality, isSeadex bool, reason UpgradeReason) Action {
	return Action{Type: Upgrade, Quality: q, IsSeadex: isSeadex, UpgradeReason: reason}
}

// Decide evaluates one candidate release against the profile, release rules,
// and current episode state. candidateSize of zero means unknown.
func Decide(profile *quality.Profile, rules []quality.Rule, current *CurrentFile, candidateTitle string, candidateSize int64, candidateIsSeadex bool) Action {
	releaseQuality := parser.ParseQuality(candidateTitle)

	if !profile.Allows(releaseQuality.ID) {
		return reject(releaseQuality, RejectQualityNotAllowed)
	}

	lower := strings.ToLower(candidateTitle)
	for _, rule := range rules {
		term := strings.ToLower(rule.Term)
		switch rule.Type {
		case quality.RuleMustContain:
			if !strings.Contains(lower, term) {
				return reject(releaseQuality, RejectMissingTerm)
			}
		case quality.RuleMustNotContain:
			if strings.Contains(lower, term) {
				return reject(releaseQuality, RejectBlockedTerm)
			}
		}
	}

	if !profile.WithinSizeBand(candidateSize) {
		return reject(releaseQuality, RejectSize)
	}

	if current == nil {
		return Action{Type: Accept, Quality: releaseQuality, IsSeadex: candidateIsSeadex}
	}

	cutoff := profile.Cutoff()

	if !profile.UpgradeAllowed {
		return reject(releaseQuality, RejectUpgradesDisabled)
	}

	if profile.SeadexPreferred && candidateIsSeadex && !current.IsSeadex {
		return upgrade(releaseQuality, true, UpgradeSeadexRelease)
	}

	if current.Quality.MeetsCutoff(cutoff) && current.IsSeadex {
		if candidateIsSeadex && releaseQuality.Rank < current.Quality.Rank {
			return upgrade(releaseQuality, true, UpgradeBetterQuality)
		}
		return reject(releaseQuality, RejectAtCutoff)
	}

	if current.Quality.MeetsCutoff(cutoff) {
		if profile.SeadexPreferred && candidateIsSeadex {
			return upgrade(releaseQuality, true, UpgradeSeadexRelease)
		}
		return reject(releaseQuality, RejectAtCutoff)
	}

	if releaseQuality.Rank < current.Quality.Rank {
		return upgrade(releaseQuality, candidateIsSeadex, UpgradeBetterQuality)
	}

	return reject(releaseQuality, RejectNoImprovement)
}

// PreferredScore sums the scores of preferred terms present in the title.
func PreferredScore(rules []quality.Rule, title string) int {
	lower := strings.ToLower(title)
	score := 0
	for _, rule := range rules {
		if rule.Type == quality.RulePreferred && strings.Contains(lower, strings.ToLower(rule.Term)) {
			score += rule.Score
		}
	}
	return score
}
