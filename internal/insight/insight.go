// Package insight implements the insight generation and selection engine.
//
// The engine turns a newly saved expense transaction plus the user's
// transaction history into exactly one short, contextually relevant
// observation (an Insight). It is deliberately pure: every function takes
// its inputs (including the clock) as values and returns new values, so the
// whole engine is unit-testable without mocks, databases, or shared state.
//
// The moving parts, in the order they run:
//
//  1. Candidate generators (registry.go, generators.go) each look at the
//     transaction and history and produce zero or one candidate Insight.
//  2. The phase detector (phase.go) buckets the user by days since their
//     first transaction.
//  3. The priority resolver (priority.go) maps (phase, scan counter,
//     weekend) to an ordered list of insight categories, with a
//     deterministic every-third-scan inversion for variety.
//  4. The selector (selector.go) drops candidates shown within the last
//     seven days and picks the best remaining one per the category order.
//  5. The engine (engine.go) wires the steps together and guarantees a
//     valid Insight on every call via a fixed fallback.
package insight

import "time"

// Category classifies an insight by intent. The set is closed: every
// generator declares exactly one category, and the selector ranks candidates
// by category before priority.
type Category string

const (
	// CategoryQuirkyFirst is delight-oriented and must work from the very
	// first transaction a user ever records (cold start).
	CategoryQuirkyFirst Category = "quirky_first"

	// CategoryCelebratory is positive reinforcement of an observed behavior.
	CategoryCelebratory Category = "celebratory"

	// CategoryActionable is behavioral or statistical and requires enough
	// history to be meaningful.
	CategoryActionable Category = "actionable"
)

// Insight is an immutable, fully formed observation about the user's
// purchase behavior. The Message is already interpolated with concrete
// values; presentation layers render it as-is.
//
// Only the ID is ever persisted (via InsightRecord); the full value is
// recreated on every generation call.
type Insight struct {
	// ID is a stable slug identifying the rule that produced the insight,
	// not the instance. Used for cooldown bookkeeping.
	ID string `json:"id"`

	Category Category `json:"category"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`

	// Icon is an opaque presentation hint (e.g. "sparkles", "trending-up").
	Icon string `json:"icon"`

	// Priority breaks ties between candidates within the same category.
	// Higher wins. It never reorders candidates across categories.
	Priority int `json:"priority"`

	// TransactionID links back to the triggering transaction, when known.
	TransactionID string `json:"transaction_id,omitempty"`
}

// Item is a single line item on a transaction. Prices are integer cents.
type Item struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Transaction is the engine's view of one expense record, as supplied by the
// persistence layer. Date is "YYYY-MM-DD"; Time, when present, is "HH:MM".
// Total is integer cents.
type Transaction struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Time     string `json:"time,omitempty"`
	Merchant string `json:"merchant"`
	City     string `json:"city,omitempty"`
	Category string `json:"category"`
	Total    int64  `json:"total"`
	Items    []Item `json:"items,omitempty"`
}

// InsightRecord marks one insight as shown at a point in time. The profile
// keeps an append-only, bounded history of these purely for cooldown lookups.
type InsightRecord struct {
	InsightID     string    `json:"insight_id"`
	ShownAt       time.Time `json:"shown_at"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

// ProfileSchemaVersion is the current Profile schema version, stored for
// forward migration.
const ProfileSchemaVersion = 1

// MaxRecentInsights bounds Profile.RecentInsights; the oldest records are
// evicted first.
const MaxRecentInsights = 30

// Profile is the durable, per-user insight state. It is owned by the backend
// store and wins over the device cache for anything it records (cooldown
// history, phase anchor).
type Profile struct {
	SchemaVersion int `json:"schema_version"`

	// FirstTransactionDate anchors phase detection. Nil means the user has
	// no transaction yet and is treated as day zero.
	FirstTransactionDate *time.Time `json:"first_transaction_date,omitempty"`

	// TotalTransactions is a monotonic counter.
	TotalTransactions int `json:"total_transactions"`

	// RecentInsights holds the most recent MaxRecentInsights records,
	// oldest first.
	RecentInsights []InsightRecord `json:"recent_insights"`
}

// NewProfile returns an empty profile at the current schema version.
func NewProfile() Profile {
	return Profile{SchemaVersion: ProfileSchemaVersion}
}

// dateLayout is the wire format for transaction dates and the cache's
// counter-reset marker.
const dateLayout = "2006-01-02"

// parseDate parses a YYYY-MM-DD string, returning the zero time on failure.
// Callers treat the zero time as "unknown" and fail closed.
func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isWeekend reports whether t falls on a Saturday or Sunday.
func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
