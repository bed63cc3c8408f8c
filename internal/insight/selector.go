package insight

import (
	"sort"
	"time"
)

// CooldownWindow is how long a shown insight id stays ineligible for
// re-selection. Cooldown is a soft variety heuristic, not a correctness
// requirement: a lost record at worst repeats an insight early.
const CooldownWindow = 7 * 24 * time.Hour

// OnCooldown reports whether insightID was shown within the cooldown window
// ending at now. Records with a zero or future-skewed ShownAt are treated as
// not on cooldown: malformed bookkeeping must never suppress an insight.
func OnCooldown(insightID string, recent []InsightRecord, now time.Time) bool {
	cutoff := now.Add(-CooldownWindow)
	for _, r := range recent {
		if r.InsightID != insightID {
			continue
		}
		if r.ShownAt.IsZero() {
			continue
		}
		// The boundary is inclusive: a record exactly CooldownWindow old is
		// still on cooldown.
		if !r.ShownAt.Before(cutoff) && !r.ShownAt.After(now) {
			return true
		}
	}
	return false
}

// SelectInsight picks at most one insight from the candidate set:
//
//  1. Drop candidates whose id was shown within the last seven days.
//  2. Resolve the category order from the user's phase, the active scan
//     counter, and whether now is a weekend.
//  3. Walk the category order; in the first non-empty group, return the
//     candidate with the highest priority. Equal priorities fall back to
//     candidate order, which the registry keeps deterministic.
//  4. If no ranked category has a member (possible when the sole ranked
//     category was filtered out), return any remaining candidate rather
//     than nothing.
//
// A nil return means every candidate was filtered; the engine substitutes
// the fixed fallback.
func SelectInsight(candidates []Insight, p Profile, c LocalInsightCache, now time.Time) *Insight {
	eligible := make([]Insight, 0, len(candidates))
	for _, cand := range candidates {
		if OnCooldown(cand.ID, p.RecentInsights, now) {
			continue
		}
		eligible = append(eligible, cand)
	}
	if len(eligible) == 0 {
		return nil
	}

	phase := CalculateUserPhase(p, now)
	order := InsightPriority(phase, ActiveScanCounter(c, now), isWeekend(now))

	byCategory := make(map[Category][]Insight, len(order))
	for _, cand := range eligible {
		byCategory[cand.Category] = append(byCategory[cand.Category], cand)
	}
	for _, cat := range order {
		group := byCategory[cat]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Priority > group[j].Priority
		})
		top := group[0]
		return &top
	}

	// Every ranked category came up empty; any survivor beats silence.
	first := eligible[0]
	return &first
}
