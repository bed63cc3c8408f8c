// Package services – InsightService
//
// This file implements InsightService, the application-level component that
// owns the insight generation cycle. It assembles the three state snapshots
// the engine needs (transaction history, user profile, device cache), runs
// the pure engine, and schedules the state writes the result prescribes.
//
// The cycle never blocks receipt saving: history and profile loads degrade to
// empty snapshots on error, the engine always yields a renderable insight,
// and persistence happens after the response on a detached context. A
// per-user lock serializes profile writes so concurrent scans cannot lose
// updates.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include user/device identifiers and the selection outcome.

package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insight-backend/internal/cachestore"
	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProfileRepo defines the repository contract required by InsightService for
// the server-side half of the insight state.
type ProfileRepo interface {
	// GetProfile loads the user's profile plus recent insight history.
	// A missing row yields a fresh default profile, not an error.
	GetProfile(ctx context.Context, db *gorm.DB, userID string) (insight.Profile, error)

	// SaveProfile upserts the profile's scalar fields.
	SaveProfile(ctx context.Context, db *gorm.DB, userID string, p insight.Profile) error

	// AppendInsightRecord inserts one shown-insight record and trims the
	// user's history to the retention bound.
	AppendInsightRecord(ctx context.Context, db *gorm.DB, userID string, rec insight.InsightRecord) error
}

// HistoryRepo supplies the transaction feed the generators read.
type HistoryRepo interface {
	ListTransactions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Transaction, error)
}

// GenerationResult is what one scan cycle hands back to the HTTP layer.
type GenerationResult struct {
	Insight  insight.Insight `json:"insight"`
	Fallback bool            `json:"fallback"`
	Phase    insight.Phase   `json:"phase"`
}

// InsightService coordinates insight generation and state persistence.
type InsightService struct {
	DB       *gorm.DB
	Profiles ProfileRepo
	History  HistoryRepo
	Cache    cachestore.Store
	Engine   *insight.Engine

	// PersistTimeout bounds each background state write.
	PersistTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// persistWG lets tests wait for background writes to land.
	persistWG sync.WaitGroup
}

// NewInsightService constructs an InsightService around the production engine.
func NewInsightService(db *gorm.DB, profiles ProfileRepo, history HistoryRepo, cache cachestore.Store) *InsightService {
	return &InsightService{
		DB:             db,
		Profiles:       profiles,
		History:        history,
		Cache:          cache,
		Engine:         insight.NewEngine(),
		PersistTimeout: 5 * time.Second,
	}
}

func (s *InsightService) now() time.Time {
	if s.Engine != nil && s.Engine.Now != nil {
		return s.Engine.Now()
	}
	return time.Now().UTC()
}

// userLock returns the mutex serializing profile writes for one user.
func (s *InsightService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// GenerateForTransaction runs one full insight cycle for a freshly saved
// transaction. It always returns a result; state loading problems degrade to
// empty snapshots and are logged rather than surfaced.
//
// While the device is silenced the cycle still runs and its outcome is
// recorded for later batch display; only the delivered value is replaced by
// the fixed fallback.
func (s *InsightService) GenerateForTransaction(ctx context.Context, userID, deviceID string, txn insight.Transaction) GenerationResult {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "GenerateForTransaction",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("device.id", deviceID),
			attribute.String("transaction.id", txn.ID),
		),
	)
	defer span.End()

	now := s.now()
	cache := cachestore.Load(ctx, s.Cache, deviceID, now)
	silenced := insight.IsInsightsSilenced(cache, now)

	profile, err := s.Profiles.GetProfile(ctx, s.DB, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("profile load failed; generating against empty profile")
		profile = insight.NewProfile()
	}

	var history []insight.Transaction
	if rows, err := s.History.ListTransactions(ctx, s.DB, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("history load failed; generating against empty history")
	} else {
		history = excludeCurrent(rows, txn.ID)
	}

	res := s.Engine.GenerateForTransaction(txn, history, profile, cache)

	if res.Fallback {
		insightFallbacks.Inc()
	} else {
		insightsGenerated.WithLabelValues(string(res.Insight.Category)).Inc()
	}
	span.SetAttributes(
		attribute.String("insight.id", res.Insight.ID),
		attribute.Bool("insight.fallback", res.Fallback),
		attribute.Bool("insight.silenced", silenced),
	)

	s.schedulePersist(ctx, userID, deviceID, txn.ID, res, now)

	out := GenerationResult{
		Insight:  res.Insight,
		Fallback: res.Fallback,
		Phase:    insight.CalculateUserPhase(res.Profile, now),
	}
	if silenced {
		// The generated insight is already scheduled for persistence above;
		// the device just does not get to see it right now.
		fb := insight.FallbackInsight()
		fb.TransactionID = txn.ID
		out.Insight = fb
		out.Fallback = true
	}
	return out
}

// Fallback returns the fixed insight shown while a profile is still thin.
func (s *InsightService) Fallback() insight.Insight {
	return insight.FallbackInsight()
}

// Profile loads the user's profile with recent insight history.
func (s *InsightService) Profile(ctx context.Context, userID string) (insight.Profile, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "Profile",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return s.Profiles.GetProfile(ctx, s.DB, userID)
}

// DeviceCache loads the device's cache, healing missing or corrupt entries.
func (s *InsightService) DeviceCache(ctx context.Context, deviceID string) insight.LocalInsightCache {
	return cachestore.Load(ctx, s.Cache, deviceID, s.now())
}

// PutDeviceCache replaces the stored cache for a device. Used by clients
// restoring state after reinstall.
func (s *InsightService) PutDeviceCache(ctx context.Context, deviceID string, c insight.LocalInsightCache) error {
	return s.Cache.Put(ctx, deviceID, c)
}

// Silence mutes insight delivery for the device for the standard window and
// returns the updated cache.
func (s *InsightService) Silence(ctx context.Context, deviceID string) (insight.LocalInsightCache, error) {
	now := s.now()
	c := insight.SilenceInsights(cachestore.Load(ctx, s.Cache, deviceID, now), now)
	if err := s.Cache.Put(ctx, deviceID, c); err != nil {
		return insight.LocalInsightCache{}, err
	}
	return c, nil
}

// Unsilence clears any active mute for the device.
func (s *InsightService) Unsilence(ctx context.Context, deviceID string) (insight.LocalInsightCache, error) {
	c := insight.UnsilenceInsights(cachestore.Load(ctx, s.Cache, deviceID, s.now()))
	if err := s.Cache.Put(ctx, deviceID, c); err != nil {
		return insight.LocalInsightCache{}, err
	}
	return c, nil
}

// RefreshAggregates recomputes the device's precomputed aggregates from the
// user's full history and stores them on the cache.
func (s *InsightService) RefreshAggregates(ctx context.Context, userID, deviceID string) (insight.LocalInsightCache, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "RefreshAggregates",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("device.id", deviceID),
		),
	)
	defer span.End()

	rows, err := s.History.ListTransactions(ctx, s.DB, userID)
	if err != nil {
		return insight.LocalInsightCache{}, err
	}
	txns := make([]insight.Transaction, 0, len(rows))
	for i := range rows {
		txns = append(txns, rows[i].Engine())
	}

	now := s.now()
	c := cachestore.Load(ctx, s.Cache, deviceID, now)
	agg := insight.ComputeAggregates(txns, now)
	c.PrecomputedAggregates = &agg
	if err := s.Cache.Put(ctx, deviceID, c); err != nil {
		return insight.LocalInsightCache{}, err
	}
	return c, nil
}

// SyncHistory merges insight records a client device held locally into the
// server-side profile history. The union is deduplicated and trimmed to the
// retention bound; only records the server did not already have are written.
func (s *InsightService) SyncHistory(ctx context.Context, userID string, client []insight.InsightRecord) (insight.Profile, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "SyncHistory",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("client.records", len(client)),
		),
	)
	defer span.End()

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	p, err := s.Profiles.GetProfile(ctx, s.DB, userID)
	if err != nil {
		return insight.Profile{}, err
	}

	merged := insight.MergeRecentInsights(p.RecentInsights, client)
	known := make(map[string]struct{}, len(p.RecentInsights))
	for _, r := range p.RecentInsights {
		known[r.InsightID+"@"+r.ShownAt.UTC().Format(time.RFC3339Nano)] = struct{}{}
	}
	for _, r := range merged {
		if _, ok := known[r.InsightID+"@"+r.ShownAt.UTC().Format(time.RFC3339Nano)]; ok {
			continue
		}
		if err := s.Profiles.AppendInsightRecord(ctx, s.DB, userID, r); err != nil {
			return insight.Profile{}, err
		}
	}

	p.RecentInsights = merged
	return p, nil
}

// WaitForPersist blocks until all scheduled background writes complete.
// Intended for tests and graceful shutdown.
func (s *InsightService) WaitForPersist() { s.persistWG.Wait() }

// schedulePersist writes the post-cycle cache and profile state after the
// response, on a context detached from the request's cancellation.
func (s *InsightService) schedulePersist(ctx context.Context, userID, deviceID, txnID string, res insight.Result, shownAt time.Time) {
	base := context.WithoutCancel(ctx)
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()

		timeout := s.PersistTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		pctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		if err := s.Cache.Put(pctx, deviceID, res.Cache); err != nil {
			insightPersistFailures.WithLabelValues("cache").Inc()
			log.Error().Err(err).Str("device_id", deviceID).Msg("cache persist failed")
		}

		l := s.userLock(userID)
		l.Lock()
		defer l.Unlock()

		// Re-read under the lock so concurrent cycles only ever advance the
		// counter, never overwrite each other's increments.
		fresh, err := s.Profiles.GetProfile(pctx, s.DB, userID)
		if err != nil {
			insightPersistFailures.WithLabelValues("profile").Inc()
			log.Error().Err(err).Str("user_id", userID).Msg("profile reload failed; skipping persist")
			return
		}
		fresh.SchemaVersion = res.Profile.SchemaVersion
		if !res.Fallback {
			fresh.TotalTransactions++
		}
		if fresh.FirstTransactionDate == nil {
			fresh.FirstTransactionDate = res.Profile.FirstTransactionDate
		}
		if err := s.Profiles.SaveProfile(pctx, s.DB, userID, fresh); err != nil {
			insightPersistFailures.WithLabelValues("profile").Inc()
			log.Error().Err(err).Str("user_id", userID).Msg("profile persist failed")
			return
		}

		if !res.Fallback {
			rec := insight.InsightRecord{
				InsightID:     res.Insight.ID,
				ShownAt:       shownAt,
				TransactionID: txnID,
			}
			if err := s.Profiles.AppendInsightRecord(pctx, s.DB, userID, rec); err != nil {
				insightPersistFailures.WithLabelValues("profile").Inc()
				log.Error().Err(err).Str("user_id", userID).Str("insight_id", res.Insight.ID).Msg("insight record persist failed")
			}
		}
	}()
}

// excludeCurrent drops the just-saved transaction from the history feed so
// generators compare it against prior behavior only.
func excludeCurrent(rows []domain.Transaction, txnID string) []insight.Transaction {
	out := make([]insight.Transaction, 0, len(rows))
	for i := range rows {
		if txnID != "" && rows[i].ID == txnID {
			continue
		}
		out = append(out, rows[i].Engine())
	}
	return out
}
