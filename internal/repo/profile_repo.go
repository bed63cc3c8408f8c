// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// InsightProfile and InsightRecord models.
//
// The profile store is the source of truth for cooldown history and the
// phase anchor. "Not found" is a normal state here (a user before their
// first insight), so GetProfile materializes an empty default rather than
// propagating ErrNotFound to callers.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"
)

// GetProfile loads the user's insight profile plus their recent record
// history as one engine value. A missing profile row yields an empty
// default profile, never an error.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (insight.Profile, error) {
	p := insight.NewProfile()

	var row domain.InsightProfile
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	switch {
	case err == nil:
		p.SchemaVersion = row.SchemaVersion
		p.FirstTransactionDate = row.FirstTransactionDate
		p.TotalTransactions = row.TotalTransactions
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First contact: serve the default.
	default:
		return p, err
	}

	records, err := ListRecentRecords(ctx, db, userID)
	if err != nil {
		return p, err
	}
	p.RecentInsights = records
	return p, nil
}

// ListRecentRecords returns the user's newest MaxRecentInsights records in
// chronological order (oldest first), matching the engine's history shape.
func ListRecentRecords(ctx context.Context, db *gorm.DB, userID string) ([]insight.InsightRecord, error) {
	var rows []domain.InsightRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("shown_at desc").
		Limit(insight.MaxRecentInsights).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]insight.InsightRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // reverse to oldest-first
		out = append(out, rows[i].Engine())
	}
	return out, nil
}

// SaveProfile upserts the profile row from the engine value. Record history
// is persisted separately via AppendInsightRecord; profile scalars and the
// append-only history have different write patterns.
func SaveProfile(ctx context.Context, db *gorm.DB, userID string, p insight.Profile) error {
	row := domain.InsightProfile{
		UserID:               userID,
		SchemaVersion:        p.SchemaVersion,
		FirstTransactionDate: p.FirstTransactionDate,
		TotalTransactions:    p.TotalTransactions,
	}
	return db.WithContext(ctx).Save(&row).Error
}

// AppendInsightRecord inserts one shown-insight record and trims the user's
// history to the engine bound, evicting oldest rows first. Insert and trim
// run in one transaction so a concurrent append never observes an
// over-bound history.
func AppendInsightRecord(ctx context.Context, db *gorm.DB, userID string, rec insight.InsightRecord) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &domain.InsightRecord{
			ID:            uuid.NewString(),
			UserID:        userID,
			InsightID:     rec.InsightID,
			ShownAt:       rec.ShownAt,
			TransactionID: rec.TransactionID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return trimRecords(tx, userID)
	})
}

// trimRecords deletes everything older than the newest MaxRecentInsights
// rows for the user.
func trimRecords(tx *gorm.DB, userID string) error {
	var keep []string
	err := tx.Model(&domain.InsightRecord{}).
		Where("user_id = ?", userID).
		Order("shown_at desc").
		Limit(insight.MaxRecentInsights).
		Pluck("id", &keep).Error
	if err != nil {
		return err
	}
	return tx.
		Where("user_id = ? AND id NOT IN ?", userID, keep).
		Delete(&domain.InsightRecord{}).Error
}

// ProfileStats returns aggregate metadata used for conditional responses
// (ETag generation): the user's record count and the newest ShownAt.
// When the user has no records, count is 0 and maxShownAt is nil.
func ProfileStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxShownAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.InsightRecord{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Grab the newest shown_at (avoid MAX() -> TEXT in SQLite).
	var row struct {
		ShownAt time.Time
	}
	if err = q.Select("shown_at").Order("shown_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.ShownAt, nil
}
