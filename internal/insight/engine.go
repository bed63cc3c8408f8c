package insight

import "time"

// FallbackID is the id of the fixed insight returned when no candidate
// survives filtering.
const FallbackID = "building_profile"

// FallbackInsight returns the hard-coded insight used whenever selection
// comes up empty. UI layers can match on FallbackID to render the
// still-learning state distinctly.
func FallbackInsight() Insight {
	return Insight{
		ID:       FallbackID,
		Category: CategoryQuirkyFirst,
		Title:    "Getting to know you",
		Message:  "We're still building your spending profile. Keep scanning — the insights get better!",
		Icon:     "seedling",
		Priority: 0,
	}
}

// Engine is the single entry point collaborators call. It owns no state
// beyond the generator registry and a clock hook; profile and cache travel
// through as values.
type Engine struct {
	Registry Registry

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// NewEngine returns an engine wired with the production rule set.
func NewEngine() *Engine {
	return &Engine{Registry: DefaultRegistry()}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Result is everything one generation cycle produced: the chosen insight and
// the two updated state values the caller should persist. The engine never
// performs the persistence itself; returning values keeps the call
// synchronous and side-effect-free while the caller schedules the writes.
type Result struct {
	Insight Insight

	// Fallback reports whether Insight is the fixed fallback. Fallbacks are
	// not recorded in the profile history, do not advance the transaction
	// counter, and never enter cooldown.
	Fallback bool

	Profile Profile
	Cache   LocalInsightCache
}

// GenerateForTransaction runs the full cycle for one newly saved
// transaction against snapshots of the user's history, profile, and device
// cache. It always returns a renderable insight: generator faults are
// isolated per rule, empty candidate sets resolve to the fallback, and no
// path panics out.
//
// The scan counter is incremented first, so the priority resolver sees the
// post-increment value for this scan. On a non-fallback pick the profile
// gains an InsightRecord (trimmed to the most recent MaxRecentInsights) and
// its transaction counter advances; the first transaction also anchors the
// phase clock.
func (e *Engine) GenerateForTransaction(txn Transaction, history []Transaction, p Profile, c LocalInsightCache) Result {
	now := e.now()

	if p.SchemaVersion == 0 {
		p.SchemaVersion = ProfileSchemaVersion
	}
	c = IncrementScanCounter(c, now)

	candidates := e.Registry.GenerateAllCandidates(txn, history)
	chosen := SelectInsight(candidates, p, c, now)

	res := Result{Cache: c}
	if chosen == nil {
		res.Insight = FallbackInsight()
		res.Insight.TransactionID = txn.ID
		res.Fallback = true
	} else {
		res.Insight = *chosen
		p.RecentInsights = AppendRecord(p.RecentInsights, InsightRecord{
			InsightID:     chosen.ID,
			ShownAt:       now,
			TransactionID: txn.ID,
		})
		p.TotalTransactions++
	}

	if p.FirstTransactionDate == nil {
		if d := parseDate(txn.Date); !d.IsZero() {
			p.FirstTransactionDate = &d
		} else {
			anchor := now
			p.FirstTransactionDate = &anchor
		}
	}

	res.Profile = p
	return res
}
