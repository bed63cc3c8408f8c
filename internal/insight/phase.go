package insight

import "time"

// Phase is a coarse maturity bucket derived from days since the user's first
// transaction. The anchor is intentionally the first transaction, not account
// creation: a dormant user who keeps their profile never restarts at Week1.
type Phase string

const (
	// PhaseWeek1 covers day 0 through day 7 (inclusive), and any profile
	// with no first transaction yet.
	PhaseWeek1 Phase = "week_1"

	// PhaseWeeks2To3 covers days 8 through 21.
	PhaseWeeks2To3 Phase = "weeks_2_3"

	// PhaseMature covers day 22 onward.
	PhaseMature Phase = "mature"
)

// CalculateUserPhase maps a profile's age to its maturity phase. Elapsed days
// are whole days (floor division, never rounding), so a user is still in
// Week1 at exactly 7×24h elapsed and moves to Weeks2To3 at 8 days.
func CalculateUserPhase(p Profile, now time.Time) Phase {
	if p.FirstTransactionDate == nil {
		return PhaseWeek1
	}
	days := int(now.Sub(*p.FirstTransactionDate).Hours() / 24)
	switch {
	case days <= 7:
		return PhaseWeek1
	case days <= 21:
		return PhaseWeeks2To3
	default:
		return PhaseMature
	}
}
