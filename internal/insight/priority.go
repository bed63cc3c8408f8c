package insight

// InsightPriority resolves the ordered list of categories the selector should
// try, given the user's phase, the active scan counter, and whether today is
// a weekend. It is fully deterministic: the only variety comes from the
// "33/66 sprinkle": a modulo-3 inversion of the leading categories, so two
// of every three scans favor one distribution and the third favors the
// alternate. Same counter in, same order out.
//
// scanCounter is the weekday- or weekend-specific counter from the device
// cache, already incremented for the current scan.
func InsightPriority(phase Phase, scanCounter int, weekend bool) []Category {
	switch phase {
	case PhaseWeek1:
		// Cold users always get delight; no sprinkle.
		return []Category{CategoryQuirkyFirst}

	case PhaseWeeks2To3:
		// Weekday and weekend behave identically in this phase.
		if scanCounter%3 == 0 {
			return []Category{CategoryActionable, CategoryCelebratory, CategoryQuirkyFirst}
		}
		return []Category{CategoryCelebratory, CategoryActionable, CategoryQuirkyFirst}

	default: // PhaseMature
		if weekend {
			if scanCounter%3 == 0 {
				return []Category{CategoryActionable, CategoryCelebratory, CategoryQuirkyFirst}
			}
			return []Category{CategoryCelebratory, CategoryActionable, CategoryQuirkyFirst}
		}
		if scanCounter%3 == 0 {
			return []Category{CategoryCelebratory, CategoryActionable, CategoryQuirkyFirst}
		}
		return []Category{CategoryActionable, CategoryCelebratory, CategoryQuirkyFirst}
	}
}
