// Package ranking orders catalog candidates newest generation first.
package ranking

import (
	"sort"
	"strconv"
	"strings"

	"medportal/internal/core"
)

// RankedCandidate is a ranked identifier with the data that placed it.
type RankedCandidate struct {
	ID   string               `json:"id"`
	Tier string               `json:"tier"`
	Tags []core.CapabilityTag `json:"tags"`
}

// Classify extracts the generation tier from the first "-major[.minor]"
// token of id, where major has at most two digits. Longer numeric tokens
// are build or date stamps. Identifiers without a version are
// core.TierUnversioned.
func Classify(id string) core.Tier {
	for _, part := range strings.Split(id, "-")[1:] {
		major, minor, ok := parseVersion(part)
		if ok {
			return core.NewTier(major, minor)
		}
	}
	return core.TierUnversioned
}

func parseVersion(token string) (int, int, bool) {
	majorStr, minorStr, hasMinor := strings.Cut(token, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil || major <= 0 || len(majorStr) > 2 || !isDigits(majorStr) {
		return 0, 0, false
	}
	if !hasMinor {
		return major, 0, true
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 || minor > 99 || !isDigits(minorStr) {
		return 0, 0, false
	}
	return major, minor, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type tiered struct {
	desc core.ModelDescriptor
	tier core.Tier
}

func order(descs []core.ModelDescriptor) []tiered {
	candidates := make([]tiered, 0, len(descs))
	for _, d := range descs {
		if !d.Eligible || d.HasTag(core.TagVision) {
			continue
		}
		candidates = append(candidates, tiered{desc: d, tier: Classify(d.ID)})
	}
	// Strictly newer tier first; ties keep discovery order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].tier > candidates[j].tier
	})
	return candidates
}

// Rank drops ineligible descriptors and orders the rest by tier, newest first.
func Rank(descs []core.ModelDescriptor) []string {
	ranked := order(descs)
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.desc.ID
	}
	return ids
}

// Explain returns the ranked list with tiers and tags for diagnostics.
func Explain(descs []core.ModelDescriptor) []RankedCandidate {
	ranked := order(descs)
	out := make([]RankedCandidate, len(ranked))
	for i, c := range ranked {
		out[i] = RankedCandidate{
			ID:   c.desc.ID,
			Tier: c.tier.String(),
			Tags: append([]core.CapabilityTag(nil), c.desc.Tags...),
		}
	}
	return out
}
