// Candidate generators.
//
// Two families live here. Cold-start rules (quirky/celebratory) must work
// from the user's very first transaction using only the transaction itself
// and simple set-membership checks against history. Pattern rules
// (actionable, occasionally re-tagged celebratory when the detected pattern
// is favorable) enforce minimum sample sizes in CanGenerate and never emit a
// degenerate insight below them.
package insight

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimum sample sizes for the pattern rules.
const (
	minMerchantVisits   = 2     // prior visits before the frequency rule fires
	minCategoryRecords  = 5     // prior records before the share rule fires
	minHistoryDays      = 7     // elapsed days before the weekend-ratio rule fires
	bigTicketThreshold  = 10000 // cents
	trendNoiseFloor     = 0.10  // |change| below this is not worth surfacing
	weekendRatioTrigger = 1.5
	shareTrigger        = 0.40
)

// DefaultRegistry returns the full production rule set.
func DefaultRegistry() Registry {
	r := make(Registry, 16)
	r.Register(firstScanGenerator{})
	r.Register(lateNightGenerator{})
	r.Register(weekendTreatGenerator{})
	r.Register(bigTicketGenerator{})
	r.Register(newMerchantGenerator{})
	r.Register(merchantFrequencyGenerator{})
	r.Register(categoryTrendGenerator{})
	r.Register(weekendSpenderGenerator{})
	r.Register(categoryShareGenerator{})
	return r
}

//
// Cold-start rules
//

// firstScanGenerator greets the user's very first recorded transaction.
type firstScanGenerator struct{}

func (firstScanGenerator) ID() string         { return "first_scan" }
func (firstScanGenerator) Category() Category { return CategoryQuirkyFirst }

func (firstScanGenerator) CanGenerate(_ Transaction, history []Transaction) bool {
	return len(history) == 0
}

func (g firstScanGenerator) Generate(txn Transaction, _ []Transaction) Insight {
	msg := "Your first expense is on the books. Every pattern starts somewhere!"
	if txn.Merchant != "" {
		msg = fmt.Sprintf("Your first expense is on the books — %s at %s. Every pattern starts somewhere!",
			formatAmount(txn.Total), txn.Merchant)
	}
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Welcome aboard",
		Message:       msg,
		Icon:          "sparkles",
		Priority:      10,
		TransactionID: txn.ID,
	}
}

// lateNightGenerator notices purchases logged between 22:00 and 05:00.
type lateNightGenerator struct{}

func (lateNightGenerator) ID() string         { return "late_night_scan" }
func (lateNightGenerator) Category() Category { return CategoryQuirkyFirst }

func (lateNightGenerator) CanGenerate(txn Transaction, _ []Transaction) bool {
	h, ok := hourOf(txn.Time)
	return ok && (h >= 22 || h < 5)
}

func (g lateNightGenerator) Generate(txn Transaction, _ []Transaction) Insight {
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Night owl",
		Message:       fmt.Sprintf("A %s purchase after dark — the night owl strikes again.", formatAmount(txn.Total)),
		Icon:          "moon",
		Priority:      4,
		TransactionID: txn.ID,
	}
}

// weekendTreatGenerator fires on Saturday and Sunday purchases.
type weekendTreatGenerator struct{}

func (weekendTreatGenerator) ID() string         { return "weekend_treat" }
func (weekendTreatGenerator) Category() Category { return CategoryQuirkyFirst }

func (weekendTreatGenerator) CanGenerate(txn Transaction, _ []Transaction) bool {
	d := parseDate(txn.Date)
	return !d.IsZero() && isWeekend(d)
}

func (g weekendTreatGenerator) Generate(txn Transaction, _ []Transaction) Insight {
	day := parseDate(txn.Date).Weekday().String()
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Weekend mode",
		Message:       fmt.Sprintf("A little %s treat at %s. Weekends count too!", day, nonEmpty(txn.Merchant, "your favorite spot")),
		Icon:          "sun",
		Priority:      3,
		TransactionID: txn.ID,
	}
}

// bigTicketGenerator highlights a single line item at or above the
// big-ticket threshold; with no line items the transaction total stands in.
type bigTicketGenerator struct{}

func (bigTicketGenerator) ID() string         { return "big_ticket_item" }
func (bigTicketGenerator) Category() Category { return CategoryQuirkyFirst }

func (bigTicketGenerator) CanGenerate(txn Transaction, _ []Transaction) bool {
	if biggestItem(txn).Price >= bigTicketThreshold {
		return true
	}
	return len(txn.Items) == 0 && txn.Total >= bigTicketThreshold
}

func (g bigTicketGenerator) Generate(txn Transaction, _ []Transaction) Insight {
	msg := fmt.Sprintf("That's a %s purchase — a big one for the books.", formatAmount(txn.Total))
	if it := biggestItem(txn); it.Price >= bigTicketThreshold && it.Name != "" {
		msg = fmt.Sprintf("%s at %s — a big-ticket pick. Noted!", it.Name, formatAmount(it.Price))
	}
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Big moves",
		Message:       msg,
		Icon:          "gem",
		Priority:      5,
		TransactionID: txn.ID,
	}
}

// newMerchantGenerator celebrates a merchant absent from all prior records.
// It is a pure set-membership check, so it works with an empty history.
type newMerchantGenerator struct{}

func (newMerchantGenerator) ID() string         { return "new_merchant" }
func (newMerchantGenerator) Category() Category { return CategoryCelebratory }

func (newMerchantGenerator) CanGenerate(txn Transaction, history []Transaction) bool {
	if txn.Merchant == "" {
		return false
	}
	return merchantVisits(txn.Merchant, history) == 0
}

func (g newMerchantGenerator) Generate(txn Transaction, _ []Transaction) Insight {
	where := txn.Merchant
	if txn.City != "" {
		where = fmt.Sprintf("%s in %s", txn.Merchant, txn.City)
	}
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Somewhere new",
		Message:       fmt.Sprintf("First time at %s — exploring pays off.", where),
		Icon:          "map-pin",
		Priority:      6,
		TransactionID: txn.ID,
	}
}

//
// Pattern rules
//

// merchantFrequencyGenerator fires once a merchant has at least
// minMerchantVisits prior visits; the message carries the ordinal of the
// current visit (2 prior visits → "3rd").
type merchantFrequencyGenerator struct{}

func (merchantFrequencyGenerator) ID() string         { return "merchant_frequency" }
func (merchantFrequencyGenerator) Category() Category { return CategoryCelebratory }

func (merchantFrequencyGenerator) CanGenerate(txn Transaction, history []Transaction) bool {
	return txn.Merchant != "" && merchantVisits(txn.Merchant, history) >= minMerchantVisits
}

func (g merchantFrequencyGenerator) Generate(txn Transaction, history []Transaction) Insight {
	visit := merchantVisits(txn.Merchant, history) + 1
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Regular status",
		Message:       fmt.Sprintf("That's your %s visit to %s. They should know your order by now!", ordinal(visit), txn.Merchant),
		Icon:          "repeat",
		Priority:      7,
		TransactionID: txn.ID,
	}
}

// categoryTrendGenerator compares this calendar month's spend in the
// transaction's category against last month's.
//
// Numeric policy: the change is (current-previous)/previous. When the
// previous month is exactly zero the rule takes the first-month branch (an
// always-positive message tagged celebratory) rather than dividing.
// Favorable drops re-tag the insight celebratory; rises stay actionable.
type categoryTrendGenerator struct{}

func (categoryTrendGenerator) ID() string         { return "category_trend" }
func (categoryTrendGenerator) Category() Category { return CategoryActionable }

func (categoryTrendGenerator) CanGenerate(txn Transaction, history []Transaction) bool {
	if txn.Category == "" || parseDate(txn.Date).IsZero() {
		return false
	}
	cur, prev := monthlyCategorySpend(txn, history)
	if prev == 0 {
		// First month with spend: only meaningful when the category existed
		// before at all, otherwise new_merchant-style rules cover it.
		return categoryRecordCount(txn.Category, history) >= 1
	}
	change := relativeChange(cur, prev)
	return change >= trendNoiseFloor || change <= -trendNoiseFloor
}

func (g categoryTrendGenerator) Generate(txn Transaction, history []Transaction) Insight {
	cur, prev := monthlyCategorySpend(txn, history)
	base := Insight{
		ID:            g.ID(),
		Icon:          "trending-up",
		Priority:      8,
		TransactionID: txn.ID,
	}

	if prev == 0 {
		base.Category = CategoryCelebratory
		base.Title = "New territory"
		base.Message = fmt.Sprintf("First %s spending this month — %s so far. A fresh chapter!",
			txn.Category, formatAmount(cur))
		base.Icon = "flag"
		return base
	}

	change := relativeChange(cur, prev)
	if change < 0 {
		base.Category = CategoryCelebratory
		base.Title = "Trending down"
		base.Message = fmt.Sprintf("%s spending is down %s vs last month (%s → %s). Nice restraint!",
			txn.Category, formatPercent(-change), formatAmount(prev), formatAmount(cur))
		base.Icon = "trending-down"
		return base
	}

	base.Category = CategoryActionable
	base.Title = "Trending up"
	base.Message = fmt.Sprintf("%s spending is up %s vs last month (%s → %s). Worth a look?",
		txn.Category, formatPercent(change), formatAmount(prev), formatAmount(cur))
	return base
}

// weekendSpenderGenerator compares average weekend vs weekday transaction
// totals. An empty weekday group means there is no comparison to make, so
// the rule stays silent instead of inventing a ratio.
type weekendSpenderGenerator struct{}

func (weekendSpenderGenerator) ID() string         { return "weekend_spender" }
func (weekendSpenderGenerator) Category() Category { return CategoryActionable }

func (weekendSpenderGenerator) CanGenerate(txn Transaction, history []Transaction) bool {
	if elapsedHistoryDays(txn, history) < minHistoryDays {
		return false
	}
	weekendAvg, weekdayAvg, ok := weekendWeekdayAverages(withCurrent(history, txn))
	return ok && weekendAvg >= weekendRatioTrigger*weekdayAvg
}

func (g weekendSpenderGenerator) Generate(txn Transaction, history []Transaction) Insight {
	weekendAvg, weekdayAvg, _ := weekendWeekdayAverages(withCurrent(history, txn))
	excess := weekendAvg/weekdayAvg - 1
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Weekend spender",
		Message:       fmt.Sprintf("Your average weekend purchase runs %s higher than weekdays. Saturdays add up!", formatPercent(excess)),
		Icon:          "calendar",
		Priority:      6,
		TransactionID: txn.ID,
	}
}

// categoryShareGenerator flags a category that dominates total spend, once
// it has enough records to be a pattern rather than a coincidence.
type categoryShareGenerator struct{}

func (categoryShareGenerator) ID() string         { return "category_share" }
func (categoryShareGenerator) Category() Category { return CategoryActionable }

func (categoryShareGenerator) CanGenerate(txn Transaction, history []Transaction) bool {
	if txn.Category == "" || categoryRecordCount(txn.Category, history) < minCategoryRecords {
		return false
	}
	share, ok := categorySpendShare(txn.Category, withCurrent(history, txn))
	return ok && share >= shareTrigger
}

func (g categoryShareGenerator) Generate(txn Transaction, history []Transaction) Insight {
	share, _ := categorySpendShare(txn.Category, withCurrent(history, txn))
	return Insight{
		ID:            g.ID(),
		Category:      g.Category(),
		Title:         "Category heavyweight",
		Message:       fmt.Sprintf("%s makes up %s of everything you've spent. Is that where you want it going?", txn.Category, formatPercent(share)),
		Icon:          "pie-chart",
		Priority:      5,
		TransactionID: txn.ID,
	}
}

//
// Shared history scans
//

// withCurrent combines history and the current transaction in a fresh slice.
// Appending onto the caller's slice could write into spare capacity of a
// shared backing array, and generators must not touch their inputs.
func withCurrent(history []Transaction, txn Transaction) []Transaction {
	all := make([]Transaction, 0, len(history)+1)
	all = append(all, history...)
	return append(all, txn)
}

func merchantVisits(merchant string, history []Transaction) int {
	n := 0
	for _, h := range history {
		if strings.EqualFold(h.Merchant, merchant) {
			n++
		}
	}
	return n
}

func categoryRecordCount(category string, history []Transaction) int {
	n := 0
	for _, h := range history {
		if strings.EqualFold(h.Category, category) {
			n++
		}
	}
	return n
}

// monthlyCategorySpend returns (current month incl. txn, previous month)
// spend in txn's category, bucketed by calendar month of txn.Date.
func monthlyCategorySpend(txn Transaction, history []Transaction) (cur, prev int64) {
	anchor := parseDate(txn.Date)
	curMonth := anchor.Format("2006-01")
	prevMonth := anchor.AddDate(0, -1, 0).Format("2006-01")

	cur = txn.Total
	for _, h := range history {
		if !strings.EqualFold(h.Category, txn.Category) {
			continue
		}
		d := parseDate(h.Date)
		if d.IsZero() {
			continue
		}
		switch d.Format("2006-01") {
		case curMonth:
			cur += h.Total
		case prevMonth:
			prev += h.Total
		}
	}
	return cur, prev
}

// relativeChange is (cur-prev)/prev; callers guarantee prev != 0.
func relativeChange(cur, prev int64) float64 {
	return float64(cur-prev) / float64(prev)
}

// weekendWeekdayAverages splits transactions by weekday/weekend and returns
// the average totals. ok is false when either group is empty.
func weekendWeekdayAverages(txns []Transaction) (weekendAvg, weekdayAvg float64, ok bool) {
	var weSum, wdSum int64
	var weN, wdN int
	for _, t := range txns {
		d := parseDate(t.Date)
		if d.IsZero() {
			continue
		}
		if isWeekend(d) {
			weSum += t.Total
			weN++
		} else {
			wdSum += t.Total
			wdN++
		}
	}
	if weN == 0 || wdN == 0 {
		return 0, 0, false
	}
	return float64(weSum) / float64(weN), float64(wdSum) / float64(wdN), true
}

// categorySpendShare returns category spend as a fraction of total spend.
// ok is false when total spend is zero.
func categorySpendShare(category string, txns []Transaction) (share float64, ok bool) {
	var catSum, total int64
	for _, t := range txns {
		total += t.Total
		if strings.EqualFold(t.Category, category) {
			catSum += t.Total
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(catSum) / float64(total), true
}

// biggestItem returns the priciest line item, or the zero Item when there
// are none.
func biggestItem(txn Transaction) Item {
	var best Item
	for _, it := range txn.Items {
		if it.Price > best.Price {
			best = it
		}
	}
	return best
}

// hourOf parses "HH:MM" (or "HH:MM:SS") and returns the hour.
func hourOf(s string) (int, bool) {
	if len(s) < 2 {
		return 0, false
	}
	sep := strings.IndexByte(s, ':')
	if sep <= 0 {
		return 0, false
	}
	h, err := strconv.Atoi(s[:sep])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
