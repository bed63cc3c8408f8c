package insight

import (
	"testing"
	"time"
)

// weekday clock used throughout: Tuesday 2026-03-10.
var selNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func matureProfile(recent []InsightRecord) Profile {
	first := selNow.AddDate(0, 0, -60)
	return Profile{
		SchemaVersion:        ProfileSchemaVersion,
		FirstTransactionDate: &first,
		RecentInsights:       recent,
	}
}

func TestOnCooldown(t *testing.T) {
	recent := []InsightRecord{
		{InsightID: "fresh", ShownAt: selNow.Add(-2 * 24 * time.Hour)},
		{InsightID: "stale", ShownAt: selNow.Add(-8 * 24 * time.Hour)},
		{InsightID: "broken"}, // zero ShownAt must never suppress
	}
	if !OnCooldown("fresh", recent, selNow) {
		t.Errorf("insight shown 2 days ago should be on cooldown")
	}
	if OnCooldown("stale", recent, selNow) {
		t.Errorf("insight shown 8 days ago should be off cooldown")
	}
	if OnCooldown("broken", recent, selNow) {
		t.Errorf("zero ShownAt must be treated as not on cooldown")
	}
	if OnCooldown("never_shown", recent, selNow) {
		t.Errorf("unknown id should never be on cooldown")
	}
}

func TestOnCooldown_WindowBoundary(t *testing.T) {
	exactly := []InsightRecord{{InsightID: "edge", ShownAt: selNow.Add(-CooldownWindow)}}
	if !OnCooldown("edge", exactly, selNow) {
		t.Errorf("record exactly %v old should still be on cooldown", CooldownWindow)
	}
	past := []InsightRecord{{InsightID: "edge", ShownAt: selNow.Add(-CooldownWindow - time.Second)}}
	if OnCooldown("edge", past, selNow) {
		t.Errorf("record older than %v should be off cooldown", CooldownWindow)
	}
}

func TestSelectInsight_CooldownInvariant(t *testing.T) {
	cands := []Insight{
		{ID: "a", Category: CategoryActionable, Priority: 9},
		{ID: "b", Category: CategoryActionable, Priority: 1},
	}
	p := matureProfile([]InsightRecord{
		{InsightID: "a", ShownAt: selNow.Add(-24 * time.Hour)},
	})
	// Counter 1 on a weekday in Mature -> actionable leads.
	c := LocalInsightCache{WeekdayScanCount: 1, LastCounterReset: selNow.Format("2006-01-02")}

	got := SelectInsight(cands, p, c, selNow)
	if got == nil {
		t.Fatalf("expected a selection, got nil")
	}
	if got.ID != "b" {
		t.Fatalf("selected %q; want cooldown to eliminate %q", got.ID, "a")
	}
}

func TestSelectInsight_AllFilteredReturnsNil(t *testing.T) {
	cands := []Insight{{ID: "only", Category: CategoryCelebratory, Priority: 5}}
	p := matureProfile([]InsightRecord{
		{InsightID: "only", ShownAt: selNow.Add(-time.Hour)},
	})
	c := DefaultCache(selNow)

	if got := SelectInsight(cands, p, c, selNow); got != nil {
		t.Fatalf("expected nil when every candidate is on cooldown, got %+v", got)
	}
}

func TestSelectInsight_Week1PrefersQuirkyOverCelebratory(t *testing.T) {
	cands := []Insight{
		{ID: "new_merchant", Category: CategoryCelebratory, Priority: 6},
		{ID: "weekend_treat", Category: CategoryQuirkyFirst, Priority: 3},
	}
	p := Profile{SchemaVersion: ProfileSchemaVersion} // no first transaction -> Week1
	c := DefaultCache(selNow)

	got := SelectInsight(cands, p, c, selNow)
	if got == nil {
		t.Fatalf("expected a selection")
	}
	if got.Category != CategoryQuirkyFirst {
		t.Fatalf("Week1 picked %v candidate %q; quirky must win regardless of priority", got.Category, got.ID)
	}
}

func TestSelectInsight_PicksHighestPriorityInLeadingCategory(t *testing.T) {
	cands := []Insight{
		{ID: "low", Category: CategoryActionable, Priority: 2},
		{ID: "high", Category: CategoryActionable, Priority: 9},
		{ID: "celebrate", Category: CategoryCelebratory, Priority: 100},
	}
	p := matureProfile(nil)
	c := LocalInsightCache{WeekdayScanCount: 1, LastCounterReset: selNow.Format("2006-01-02")}

	got := SelectInsight(cands, p, c, selNow)
	if got == nil || got.ID != "high" {
		t.Fatalf("got %+v; want highest-priority actionable candidate", got)
	}
}

func TestSelectInsight_LastResortWhenRankedCategoriesEmpty(t *testing.T) {
	// Week1 ranks only quirky_first; the sole survivor is celebratory.
	cands := []Insight{{ID: "survivor", Category: CategoryCelebratory, Priority: 1}}
	p := Profile{}
	c := DefaultCache(selNow)

	got := SelectInsight(cands, p, c, selNow)
	if got == nil || got.ID != "survivor" {
		t.Fatalf("got %+v; want last-resort pick of the remaining candidate", got)
	}
}

func TestSelectInsight_SprinkleFlipsLeadingCategory(t *testing.T) {
	cands := []Insight{
		{ID: "act", Category: CategoryActionable, Priority: 5},
		{ID: "cel", Category: CategoryCelebratory, Priority: 5},
	}
	p := matureProfile(nil)

	// Weekday Mature, counter 1 -> actionable leads.
	c1 := LocalInsightCache{WeekdayScanCount: 1, LastCounterReset: selNow.Format("2006-01-02")}
	if got := SelectInsight(cands, p, c1, selNow); got == nil || got.ID != "act" {
		t.Fatalf("counter 1: got %+v; want actionable lead", got)
	}

	// Counter 3 -> sprinkle flips to celebratory.
	c3 := LocalInsightCache{WeekdayScanCount: 3, LastCounterReset: selNow.Format("2006-01-02")}
	if got := SelectInsight(cands, p, c3, selNow); got == nil || got.ID != "cel" {
		t.Fatalf("counter 3: got %+v; want celebratory lead", got)
	}
}
