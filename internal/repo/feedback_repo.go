// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// InsightFeedback model.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/domain"
)

// GetShownRecord finds the record proving the insight was actually shown to
// the user for that transaction. Returns ErrNotFound when no such record
// exists (including evicted history).
func GetShownRecord(ctx context.Context, db *gorm.DB, userID, insightID, transactionID string) (*domain.InsightRecord, error) {
	var row domain.InsightRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND insight_id = ? AND transaction_id = ?", userID, insightID, transactionID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// CreateInsightFeedback inserts one rating row. A second rating for the same
// shown insight maps to ErrDuplicate via the unique index.
func CreateInsightFeedback(ctx context.Context, db *gorm.DB, userID, insightID, transactionID string, value int) (*domain.InsightFeedback, error) {
	row := &domain.InsightFeedback{
		ID:            uuid.NewString(),
		UserID:        userID,
		InsightID:     insightID,
		TransactionID: transactionID,
		Value:         value,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return row, nil
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
