package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/cachestore"
	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"
)

// ----- Fakes -----

type fakeProfileRepo struct {
	mu      sync.Mutex
	profile insight.Profile
	getErr  error
	saveErr error

	saved    []insight.Profile
	appended []insight.InsightRecord
}

func (r *fakeProfileRepo) GetProfile(ctx context.Context, db *gorm.DB, userID string) (insight.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return insight.Profile{}, r.getErr
	}
	return r.profile, nil
}

func (r *fakeProfileRepo) SaveProfile(ctx context.Context, db *gorm.DB, userID string, p insight.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.profile = p
	r.saved = append(r.saved, p)
	return nil
}

func (r *fakeProfileRepo) AppendInsightRecord(ctx context.Context, db *gorm.DB, userID string, rec insight.InsightRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, rec)
	r.profile.RecentInsights = insight.AppendRecord(r.profile.RecentInsights, rec)
	return nil
}

type fakeHistoryRepo struct {
	rows []domain.Transaction
	err  error
}

func (r *fakeHistoryRepo) ListTransactions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Transaction, error) {
	return r.rows, r.err
}

var svcNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // Tuesday

func newTestService(profiles *fakeProfileRepo, history *fakeHistoryRepo) *InsightService {
	s := NewInsightService(nil, profiles, history, cachestore.NewMemory())
	s.Engine.Now = func() time.Time { return svcNow }
	return s
}

// ----- Tests -----

func TestGenerateForTransaction_FirstScan(t *testing.T) {
	profiles := &fakeProfileRepo{profile: insight.NewProfile()}
	s := newTestService(profiles, &fakeHistoryRepo{})

	txn := insight.Transaction{ID: "t1", Date: "2026-03-10", Merchant: "Jumbo", Category: "groceries", Total: 1250}
	res := s.GenerateForTransaction(context.Background(), "u1", "d1", txn)

	if res.Fallback {
		t.Fatalf("first scan should produce a real insight, got fallback")
	}
	if res.Insight.Category != insight.CategoryQuirkyFirst {
		t.Errorf("category = %q; want quirky in week one", res.Insight.Category)
	}
	if res.Phase != insight.PhaseWeek1 {
		t.Errorf("phase = %q; want %q", res.Phase, insight.PhaseWeek1)
	}

	s.WaitForPersist()

	if profiles.profile.TotalTransactions != 1 {
		t.Errorf("TotalTransactions = %d; want 1", profiles.profile.TotalTransactions)
	}
	if profiles.profile.FirstTransactionDate == nil {
		t.Errorf("FirstTransactionDate not anchored")
	}
	if len(profiles.appended) != 1 || profiles.appended[0].InsightID != res.Insight.ID {
		t.Errorf("appended records = %+v", profiles.appended)
	}

	// The cache write landed too: one weekday scan counted.
	c, err := s.Cache.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if c.WeekdayScanCount != 1 || c.WeekendScanCount != 0 {
		t.Errorf("counters = (%d, %d); want (1, 0)", c.WeekdayScanCount, c.WeekendScanCount)
	}
}

func TestGenerateForTransaction_SilencedSuppressesDeliveryOnly(t *testing.T) {
	profiles := &fakeProfileRepo{profile: insight.NewProfile()}
	s := newTestService(profiles, &fakeHistoryRepo{})

	if _, err := s.Silence(context.Background(), "d1"); err != nil {
		t.Fatalf("Silence: %v", err)
	}

	txn := insight.Transaction{ID: "t1", Date: "2026-03-10", Merchant: "Jumbo", Category: "groceries", Total: 1250}
	res := s.GenerateForTransaction(context.Background(), "u1", "d1", txn)
	s.WaitForPersist()

	// The caller sees only the fallback while the mute is active.
	if !res.Fallback || res.Insight.ID != insight.FallbackID {
		t.Fatalf("silenced device should get the fallback, got %+v", res.Insight)
	}

	// The cycle still ran underneath: the generated insight is recorded for
	// later display and all bookkeeping advances.
	if len(profiles.appended) != 1 {
		t.Fatalf("appended records = %+v; want the suppressed insight recorded", profiles.appended)
	}
	if id := profiles.appended[0].InsightID; id == "" || id == insight.FallbackID {
		t.Errorf("recorded insight id = %q; want a real generated id", id)
	}
	if profiles.profile.TotalTransactions != 1 {
		t.Errorf("TotalTransactions = %d; want 1", profiles.profile.TotalTransactions)
	}
	c, _ := s.Cache.Get(context.Background(), "d1")
	if c.WeekdayScanCount != 1 {
		t.Errorf("scan counter = %d; want 1", c.WeekdayScanCount)
	}
	if !insight.IsInsightsSilenced(c, svcNow) {
		t.Errorf("persisting the cycle must not clear the mute")
	}
}

func TestGenerateForTransaction_FallbackDoesNotAdvanceProfile(t *testing.T) {
	profiles := &fakeProfileRepo{profile: insight.NewProfile()}
	s := newTestService(profiles, &fakeHistoryRepo{})
	// An empty rule set forces the fallback outcome.
	s.Engine.Registry = make(insight.Registry)

	txn := insight.Transaction{ID: "t1", Date: "2026-03-10", Merchant: "Jumbo", Total: 100}
	res := s.GenerateForTransaction(context.Background(), "u1", "d1", txn)
	s.WaitForPersist()

	if !res.Fallback {
		t.Fatalf("expected the fallback with no generators registered")
	}
	if profiles.profile.TotalTransactions != 0 || len(profiles.appended) != 0 {
		t.Errorf("fallback scans must not advance the profile: %+v", profiles.profile)
	}
	// The device-side scan counter still moves; only profile state is gated.
	c, _ := s.Cache.Get(context.Background(), "d1")
	if c.WeekdayScanCount != 1 {
		t.Errorf("scan counter = %d; want 1", c.WeekdayScanCount)
	}
}

func TestGenerateForTransaction_DegradesOnStateErrors(t *testing.T) {
	profiles := &fakeProfileRepo{getErr: errors.New("db down")}
	s := newTestService(profiles, &fakeHistoryRepo{err: errors.New("db down")})

	txn := insight.Transaction{ID: "t1", Date: "2026-03-10", Merchant: "Jumbo", Total: 100}
	res := s.GenerateForTransaction(context.Background(), "u1", "d1", txn)
	s.WaitForPersist()

	// Empty snapshots still yield a first-scan insight; nothing blocks.
	if res.Insight.ID == "" {
		t.Fatalf("expected a renderable insight despite state errors")
	}
}

func TestGenerateForTransaction_ConcurrentScansCountAll(t *testing.T) {
	profiles := &fakeProfileRepo{profile: insight.NewProfile()}
	s := newTestService(profiles, &fakeHistoryRepo{})

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		nonFallback int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn := insight.Transaction{ID: "t", Date: "2026-03-10", Merchant: "Jumbo", Total: 100}
			res := s.GenerateForTransaction(context.Background(), "u1", "d1", txn)
			if !res.Fallback {
				mu.Lock()
				nonFallback++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.WaitForPersist()

	if nonFallback == 0 {
		t.Fatalf("expected at least one real selection")
	}
	if profiles.profile.TotalTransactions != nonFallback {
		t.Errorf("TotalTransactions = %d; want %d (no lost increments)", profiles.profile.TotalTransactions, nonFallback)
	}
}

func TestSilenceLifecycle(t *testing.T) {
	s := newTestService(&fakeProfileRepo{profile: insight.NewProfile()}, &fakeHistoryRepo{})
	ctx := context.Background()

	c, err := s.Silence(ctx, "d1")
	if err != nil {
		t.Fatalf("Silence: %v", err)
	}
	if !insight.IsInsightsSilenced(c, svcNow) {
		t.Fatalf("expected silenced cache")
	}
	if insight.IsInsightsSilenced(c, svcNow.Add(insight.SilenceDuration+time.Minute)) {
		t.Errorf("silence should expire after the window")
	}

	c, err = s.Unsilence(ctx, "d1")
	if err != nil {
		t.Fatalf("Unsilence: %v", err)
	}
	if insight.IsInsightsSilenced(c, svcNow) {
		t.Errorf("expected unsilenced cache")
	}
}

func TestRefreshAggregates(t *testing.T) {
	history := &fakeHistoryRepo{rows: []domain.Transaction{
		{ID: "t1", Date: "2026-03-01", Merchant: "Jumbo", Category: "groceries", Total: 1000},
		{ID: "t2", Date: "2026-03-05", Merchant: "Jumbo", Category: "groceries", Total: 2000},
		{ID: "t3", Date: "2026-03-08", Merchant: "Hema", Category: "household", Total: 500},
	}}
	s := newTestService(&fakeProfileRepo{profile: insight.NewProfile()}, history)

	c, err := s.RefreshAggregates(context.Background(), "u1", "d1")
	if err != nil {
		t.Fatalf("RefreshAggregates: %v", err)
	}
	agg := c.PrecomputedAggregates
	if agg == nil {
		t.Fatalf("aggregates not stored")
	}
	if agg.MerchantVisits["Jumbo"] != 2 || agg.MerchantVisits["Hema"] != 1 {
		t.Errorf("merchant visits = %+v", agg.MerchantVisits)
	}
	if agg.CategoryTotals["groceries"] != 3000 {
		t.Errorf("groceries total = %d; want 3000", agg.CategoryTotals["groceries"])
	}
}

func TestSyncHistory_MergesOnlyNewRecords(t *testing.T) {
	shared := insight.InsightRecord{InsightID: "new_merchant", ShownAt: svcNow.Add(-48 * time.Hour)}
	profiles := &fakeProfileRepo{profile: insight.Profile{
		SchemaVersion:  insight.ProfileSchemaVersion,
		RecentInsights: []insight.InsightRecord{shared},
	}}
	s := newTestService(profiles, &fakeHistoryRepo{})

	client := []insight.InsightRecord{
		shared, // already known server-side
		{InsightID: "weekend_treat", ShownAt: svcNow.Add(-24 * time.Hour)},
	}
	p, err := s.SyncHistory(context.Background(), "u1", client)
	if err != nil {
		t.Fatalf("SyncHistory: %v", err)
	}
	if len(p.RecentInsights) != 2 {
		t.Fatalf("merged history length = %d; want 2", len(p.RecentInsights))
	}
	if len(profiles.appended) != 1 || profiles.appended[0].InsightID != "weekend_treat" {
		t.Errorf("appended = %+v; want only the unseen record", profiles.appended)
	}
}

func TestFallbackIsStable(t *testing.T) {
	s := newTestService(&fakeProfileRepo{}, &fakeHistoryRepo{})
	fb := s.Fallback()
	if fb.ID != insight.FallbackID || fb.Message == "" {
		t.Errorf("fallback = %+v", fb)
	}
}
