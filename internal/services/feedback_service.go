// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how users rate
// insights they were shown (-1 or +1). It enforces business rules (the
// insight must actually appear in the user's shown history, one rating per
// shown insight) and persists ratings atomically. Service-level errors
// (e.g. ErrInvalidFeedback, ErrUnknownInsight, ErrDuplicateFeedback) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/repo"
)

// FeedbackService implements the use-cases around insight ratings.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Leave records a rating for the insight shown to userID for transactionID.
//
// Semantics and validation:
//   - value must be exactly -1 (negative) or 1 (positive); otherwise
//     ErrInvalidFeedback.
//   - The (insight_id, transaction_id) pair must exist in the user's shown
//     history; otherwise ErrUnknownInsight. Evicted history rows are
//     treated the same as never-shown.
//   - The fixed fallback is never recorded, so it can never be rated.
//   - A user may rate each shown insight at most once; a second attempt
//     yields ErrDuplicateFeedback.
//
// The existence check and the insert run inside one transaction.
func (s *FeedbackService) Leave(ctx context.Context, userID, insightID, transactionID string, value int) error {
	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetShownRecord(ctx, tx, userID, insightID, transactionID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUnknownInsight
			}
			return err
		}

		if _, err := repo.CreateInsightFeedback(ctx, tx, userID, insightID, transactionID, value); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}
