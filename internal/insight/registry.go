package insight

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Generator is one named insight rule: a guard predicate plus a producer.
//
// Contract: Generate is only ever called when CanGenerate returned true for
// the same inputs, and both must be free of side effects. CanGenerate is the
// sole place a rule handles missing or insufficient data; below its minimum
// sample size a pattern rule returns false rather than producing a
// degenerate insight.
type Generator interface {
	// ID is the stable slug carried by every Insight this rule produces.
	ID() string

	// Category is the rule's declared category. A pattern rule may re-tag
	// the produced Insight as celebratory when the detected pattern is
	// favorable; the declared category is the default.
	Category() Category

	CanGenerate(txn Transaction, history []Transaction) bool
	Generate(txn Transaction, history []Transaction) Insight
}

// Registry maps generator id to generator. New rules are added by inserting
// entries; nothing else changes.
type Registry map[string]Generator

// Register adds g to the registry, replacing any previous entry with the
// same id.
func (r Registry) Register(g Generator) { r[g.ID()] = g }

// GenerateAllCandidates runs every registered generator against the
// transaction and history and collects the insights whose guards passed.
//
// Generators are visited in sorted id order so equal-priority ties resolve
// the same way on every call. A panicking generator is logged and skipped;
// one broken rule never blocks the others from contributing.
func (r Registry) GenerateAllCandidates(txn Transaction, history []Transaction) []Insight {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Insight, 0, len(r))
	for _, id := range ids {
		if cand, ok := runGenerator(r[id], txn, history); ok {
			out = append(out, cand)
		}
	}
	return out
}

// runGenerator evaluates a single generator with panic isolation.
func runGenerator(g Generator, txn Transaction, history []Transaction) (cand Insight, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().
				Str("generator", g.ID()).
				Interface("panic", rec).
				Msg("insight generator panicked; skipping")
			ok = false
		}
	}()
	if !g.CanGenerate(txn, history) {
		return Insight{}, false
	}
	return g.Generate(txn, history), true
}

// elapsedHistoryDays returns the whole days between the oldest parseable
// transaction date in history and the new transaction's date. Zero when
// either side is unknown.
func elapsedHistoryDays(txn Transaction, history []Transaction) int {
	cur := parseDate(txn.Date)
	if cur.IsZero() {
		return 0
	}
	var oldest time.Time
	for _, h := range history {
		d := parseDate(h.Date)
		if d.IsZero() {
			continue
		}
		if oldest.IsZero() || d.Before(oldest) {
			oldest = d
		}
	}
	if oldest.IsZero() {
		return 0
	}
	days := int(cur.Sub(oldest).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
