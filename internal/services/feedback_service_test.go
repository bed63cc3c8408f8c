package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-insight-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:feedbacksvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.InsightRecord{}, &domain.InsightFeedback{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedShown(t *testing.T, db *gorm.DB, userID, insightID, txnID string) {
	t.Helper()
	rec := &domain.InsightRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		InsightID:     insightID,
		TransactionID: txnID,
		ShownAt:       time.Now().UTC(),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestFeedback_Leave_InvalidValue(t *testing.T) {
	svc := &FeedbackService{DB: newTestDB(t)}

	err := svc.Leave(context.Background(), "u1", "new_merchant", "t1", 0) // not -1 or 1
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
}

func TestFeedback_Leave_NeverShown(t *testing.T) {
	svc := &FeedbackService{DB: newTestDB(t)}

	// no records seeded -> the insight was never shown to this user
	err := svc.Leave(context.Background(), "u1", "new_merchant", "t1", 1)
	if !errors.Is(err, ErrUnknownInsight) {
		t.Fatalf("expected ErrUnknownInsight, got %v", err)
	}
}

func TestFeedback_Leave_ShownToOtherUser(t *testing.T) {
	db := newTestDB(t)
	seedShown(t, db, "ownerA", "weekend_treat", "t1")

	svc := &FeedbackService{DB: db}
	err := svc.Leave(context.Background(), "uX", "weekend_treat", "t1", 1)
	if !errors.Is(err, ErrUnknownInsight) {
		t.Fatalf("expected ErrUnknownInsight (wrong user), got %v", err)
	}
}

func TestFeedback_Leave_DuplicateFeedback(t *testing.T) {
	db := newTestDB(t)
	seedShown(t, db, "u1", "merchant_frequency", "t3")

	svc := &FeedbackService{DB: db}

	if err := svc.Leave(context.Background(), "u1", "merchant_frequency", "t3", 1); err != nil {
		t.Fatalf("first Leave failed: %v", err)
	}
	err := svc.Leave(context.Background(), "u1", "merchant_frequency", "t3", -1)
	if !errors.Is(err, ErrDuplicateFeedback) {
		t.Fatalf("expected ErrDuplicateFeedback, got %v", err)
	}
}

func TestFeedback_Leave_Success(t *testing.T) {
	db := newTestDB(t)
	seedShown(t, db, "u9", "category_trend", "t4")

	svc := &FeedbackService{DB: db}
	if err := svc.Leave(context.Background(), "u9", "category_trend", "t4", -1); err != nil {
		t.Fatalf("Leave success returned error: %v", err)
	}

	var got domain.InsightFeedback
	if err := db.Where("user_id = ? AND insight_id = ? AND transaction_id = ?", "u9", "category_trend", "t4").First(&got).Error; err != nil {
		t.Fatalf("load feedback: %v", err)
	}
	if got.Value != -1 {
		t.Fatalf("expected value -1, got %d", got.Value)
	}
	if got.CreatedAt.IsZero() || time.Since(got.CreatedAt) > time.Minute {
		t.Fatalf("unexpected CreatedAt: %v", got.CreatedAt)
	}
}

func TestFeedback_Leave_SameInsightDifferentTransaction(t *testing.T) {
	db := newTestDB(t)
	seedShown(t, db, "u1", "weekend_spender", "t5")
	seedShown(t, db, "u1", "weekend_spender", "t6")

	svc := &FeedbackService{DB: db}
	if err := svc.Leave(context.Background(), "u1", "weekend_spender", "t5", 1); err != nil {
		t.Fatalf("first rating: %v", err)
	}
	// A fresh showing of the same rule on a later receipt is rateable again.
	if err := svc.Leave(context.Background(), "u1", "weekend_spender", "t6", -1); err != nil {
		t.Fatalf("second showing rating: %v", err)
	}
}
