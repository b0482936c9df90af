package quality

// Profile is a user-defined quality profile. AllowedIDs is the set of
// quality IDs the profile accepts; Cutoff is the quality at which non-seadex
// upgrades stop.
type Profile struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CutoffID        int    `json:"cutoffQualityId"`
	UpgradeAllowed  bool   `json:"upgradeAllowed"`
	SeadexPreferred bool   `json:"seadexPreferred"`
	MinSize         *int64 `json:"minSize,omitempty"`
	MaxSize         *int64 `json:"maxSize,omitempty"`

	AllowedIDs map[int]bool `json:"allowedQualityIds"`
}

// Cutoff returns the profile's cutoff quality.
func (p *Profile) Cutoff() Quality {
	return ByID(p.CutoffID)
}

// Allows reports whether the profile accepts the given quality ID.
func (p *Profile) Allows(qualityID int) bool {
	return p.AllowedIDs[qualityID]
}

// WithinSizeBand reports whether size satisfies the profile's optional
// min/max band. A size of zero means the candidate's size is unknown and is
// never rejected on size alone.
func (p *Profile) WithinSizeBand(size int64) bool {
	if size <= 0 {
		return true
	}
	if p.MinSize != nil && size < *p.MinSize {
		return false
	}
	if p.MaxSize != nil && size > *p.MaxSize {
		return false
	}
	return true
}

// RuleType classifies a release-profile term.
type RuleType string

const (
	RuleMustContain    RuleType = "must_contain"
	RuleMustNotContain RuleType = "must_not_contain"
	RulePreferred      RuleType = "preferred"
)

// Rule is a single term-based release-profile rule.
type Rule struct {
	ProfileID int64    `json:"profileId"`
	Term      string   `json:"term"`
	Score     int      `json:"score"`
	Type      RuleType `json:"ruleType"`
}

// DefaultProfile accepts every quality, allows upgrades, and cuts off at
// BluRay-1080p.
func DefaultProfile() Profile {
	allowed := make(map[int]bool, len(Qualities))
	for _, q := range Qualities {
		allowed[q.ID] = true
	}
	return Profile{
		Name:           "Any",
		CutoffID:       6, // BluRay-1080p
		UpgradeAllowed: true,
		AllowedIDs:     allowed,
	}
}
