package insight

import (
	"sort"
	"time"
)

// CounterResetInterval is how long the weekday/weekend scan counters live
// before both are zeroed together.
const CounterResetInterval = 7 * 24 * time.Hour

// SilenceDuration is how long a silence request suppresses insights.
const SilenceDuration = 4 * time.Hour

// PrecomputedAggregates is a performance cache derived from the full
// transaction history. It is never a source of truth: anything here can be
// recomputed from scratch at any time via ComputeAggregates.
type PrecomputedAggregates struct {
	// MerchantVisits maps merchant name to visit count.
	MerchantVisits map[string]int `json:"merchant_visits"`
	// CategoryTotals maps category to cumulative spend in cents.
	CategoryTotals map[string]int64 `json:"category_totals"`
	ComputedAt     time.Time        `json:"computed_at"`
}

// LocalInsightCache is the ephemeral, device-scoped half of the engine's
// state. It is safe to lose entirely: a missing or corrupt cache is replaced
// by DefaultCache. The cache wins over the profile only for session-local
// tuning (counters and silence).
type LocalInsightCache struct {
	WeekdayScanCount int `json:"weekday_scan_count"`
	WeekendScanCount int `json:"weekend_scan_count"`

	// LastCounterReset is the YYYY-MM-DD date both counters were last
	// zeroed. Counters older than CounterResetInterval are reset before use.
	LastCounterReset string `json:"last_counter_reset"`

	// SilencedUntil suppresses UI-facing insights while in the future.
	SilencedUntil *time.Time `json:"silenced_until,omitempty"`

	PrecomputedAggregates *PrecomputedAggregates `json:"precomputed_aggregates,omitempty"`
}

// DefaultCache returns a fresh cache with both counters at zero and the
// reset marker set to today.
func DefaultCache(now time.Time) LocalInsightCache {
	return LocalInsightCache{LastCounterReset: now.Format(dateLayout)}
}

// IncrementScanCounter returns a copy of the cache with exactly one of the
// two scan counters incremented, after applying the weekly staleness reset.
// A missing or unparseable LastCounterReset counts as stale, so a corrupt
// marker heals itself rather than freezing the counters.
//
// The engine calls this once per generation cycle before the priority
// resolver reads the counter, so the resolver always sees the
// post-increment value for the current scan.
func IncrementScanCounter(c LocalInsightCache, now time.Time) LocalInsightCache {
	reset := parseDate(c.LastCounterReset)
	if reset.IsZero() || now.Sub(reset) >= CounterResetInterval {
		c.WeekdayScanCount = 0
		c.WeekendScanCount = 0
		c.LastCounterReset = now.Format(dateLayout)
	}
	if isWeekend(now) {
		c.WeekendScanCount++
	} else {
		c.WeekdayScanCount++
	}
	return c
}

// ActiveScanCounter returns the counter that applies to now: the weekend
// counter on Saturday/Sunday, the weekday counter otherwise.
func ActiveScanCounter(c LocalInsightCache, now time.Time) int {
	if isWeekend(now) {
		return c.WeekendScanCount
	}
	return c.WeekdayScanCount
}

// SilenceInsights returns a copy of the cache silenced for SilenceDuration
// from now.
func SilenceInsights(c LocalInsightCache, now time.Time) LocalInsightCache {
	until := now.Add(SilenceDuration)
	c.SilencedUntil = &until
	return c
}

// UnsilenceInsights returns a copy of the cache with any silence cleared.
func UnsilenceInsights(c LocalInsightCache) LocalInsightCache {
	c.SilencedUntil = nil
	return c
}

// IsInsightsSilenced reports whether insights are currently suppressed.
func IsInsightsSilenced(c LocalInsightCache, now time.Time) bool {
	return c.SilencedUntil != nil && c.SilencedUntil.After(now)
}

// ComputeAggregates builds the merchant-visit and category-total maps in a
// single linear pass over the history. Generators use the result to avoid
// rescanning the full history on every call.
func ComputeAggregates(txns []Transaction, now time.Time) PrecomputedAggregates {
	agg := PrecomputedAggregates{
		MerchantVisits: make(map[string]int, len(txns)),
		CategoryTotals: make(map[string]int64, 8),
		ComputedAt:     now,
	}
	for _, t := range txns {
		if t.Merchant != "" {
			agg.MerchantVisits[t.Merchant]++
		}
		if t.Category != "" {
			agg.CategoryTotals[t.Category] += t.Total
		}
	}
	return agg
}

// MergeRecentInsights unions two record histories without losing entries,
// deduplicating on (insight id, shown-at) and keeping chronological order.
// It backs the last-write-wins reconciliation of concurrent profile appends:
// callers merge rather than overwrite so a racing append is never dropped.
// The result is trimmed to the most recent MaxRecentInsights.
func MergeRecentInsights(a, b []InsightRecord) []InsightRecord {
	type key struct {
		id string
		at int64
	}
	seen := make(map[key]struct{}, len(a)+len(b))
	merged := make([]InsightRecord, 0, len(a)+len(b))
	for _, src := range [][]InsightRecord{a, b} {
		for _, r := range src {
			k := key{r.InsightID, r.ShownAt.UnixNano()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ShownAt.Before(merged[j].ShownAt)
	})
	if len(merged) > MaxRecentInsights {
		merged = merged[len(merged)-MaxRecentInsights:]
	}
	return merged
}

// AppendRecord appends r to the history and trims to MaxRecentInsights,
// evicting the oldest entries first.
func AppendRecord(history []InsightRecord, r InsightRecord) []InsightRecord {
	out := make([]InsightRecord, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, r)
	if len(out) > MaxRecentInsights {
		out = out[len(out)-MaxRecentInsights:]
	}
	return out
}
