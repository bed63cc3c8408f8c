// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Transaction model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTransaction inserts a new expense record owned by userID. The row ID
// is a randomly generated UUID unless the caller supplied one, and CreatedAt
// is set to UTC.
func CreateTransaction(ctx context.Context, db *gorm.DB, userID string, txn insight.Transaction) (*domain.Transaction, error) {
	id := txn.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := &domain.Transaction{
		ID:        id,
		UserID:    userID,
		Date:      txn.Date,
		Time:      txn.Time,
		Merchant:  txn.Merchant,
		City:      txn.City,
		Category:  txn.Category,
		Total:     txn.Total,
		Items:     txn.Items,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// GetTransaction fetches a single transaction by ID and owner. Returns
// ErrNotFound when missing or owned by someone else.
func GetTransaction(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Transaction, error) {
	var row domain.Transaction
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListTransactions returns the full history for userID, oldest first. The
// insight engine consumes this ordering directly.
func ListTransactions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date asc, created_at asc").
		Find(&out).Error
	return out, err
}

// CountTransactions returns the total number of records owned by userID.
func CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListTransactionsPage returns a paginated slice of the user's records,
// newest first (the browsing order, unlike the engine feed).
//
// The caller is responsible for computing offset and limit
// (e.g., (page-1)*pageSize).
func ListTransactionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc, created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// EngineHistory converts rows to the engine's plain transaction values.
func EngineHistory(rows []domain.Transaction) []insight.Transaction {
	out := make([]insight.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Engine())
	}
	return out
}
