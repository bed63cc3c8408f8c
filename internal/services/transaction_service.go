// Package services – TransactionService
//
// This file implements the TransactionService, which owns the lifecycle of
// scanned expense transactions. It validates and normalizes incoming receipts
// (merchant names, dates, amounts), enforces ownership rules, and coordinates
// repository operations for creating, fetching, and listing (with pagination)
// transactions.
//
// Service-level errors (e.g., ErrTransactionNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"
)

// TransactionRepo defines the repository contract required by
// TransactionService. Implementations are responsible for persistence of
// transaction aggregates.
type TransactionRepo interface {
	// CreateTransaction inserts a new transaction row for the given user.
	CreateTransaction(ctx context.Context, db *gorm.DB, userID string, txn insight.Transaction) (*domain.Transaction, error)

	// GetTransaction fetches a transaction by ID ensuring it belongs to the user.
	GetTransaction(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Transaction, error)

	// ListTransactions returns the user's full history, oldest first.
	ListTransactions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Transaction, error)

	// CountTransactions returns the total number of transactions for pagination.
	CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListTransactionsPage returns a page of transactions, newest first.
	ListTransactionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Transaction, error)
}

// TransactionService provides transaction-level operations such as creating,
// fetching, and listing scanned receipts. It enforces validation rules and
// ensures ownership constraints.
type TransactionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the transaction repository used by this service.
	Repo TransactionRepo

	// MerchantMaxLen caps stored merchant names by rune length.
	MerchantMaxLen int
	// MaxItems caps the number of line items accepted per receipt.
	MaxItems int
}

// NewTransactionService constructs a TransactionService with sane defaults.
func NewTransactionService(db *gorm.DB, r TransactionRepo) *TransactionService {
	return &TransactionService{
		DB:             db,
		Repo:           r,
		MerchantMaxLen: 120,
		MaxItems:       200,
	}
}

// Create validates and persists a new transaction owned by userID.
// Merchant and city names are normalized and clipped; the date must be a
// real YYYY-MM-DD calendar date and all amounts must be non-negative.
func (s *TransactionService) Create(ctx context.Context, userID string, txn insight.Transaction) (*domain.Transaction, error) {
	txn.Merchant = normalizeName(txn.Merchant)
	if txn.Merchant == "" {
		return nil, ErrEmptyMerchant
	}
	txn.Merchant = s.clip(txn.Merchant)
	txn.City = s.clip(normalizeName(txn.City))
	txn.Category = strings.ToLower(normalizeName(txn.Category))

	if _, err := time.Parse("2006-01-02", txn.Date); err != nil {
		return nil, ErrInvalidDate
	}
	if txn.Total < 0 {
		return nil, ErrNegativeAmount
	}
	if s.MaxItems > 0 && len(txn.Items) > s.MaxItems {
		return nil, ErrTooManyItems
	}
	for i := range txn.Items {
		if txn.Items[i].Price < 0 {
			return nil, ErrNegativeAmount
		}
		txn.Items[i].Name = normalizeName(txn.Items[i].Name)
	}

	return s.Repo.CreateTransaction(ctx, s.DB, userID, txn)
}

// Get fetches a single transaction, ensuring it belongs to the user.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	row, err := s.Repo.GetTransaction(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return row, nil
}

// History returns the user's full transaction history, oldest first, in the
// engine's value form. This is the feed the insight generators consume.
func (s *TransactionService) History(ctx context.Context, userID string) ([]insight.Transaction, error) {
	rows, err := s.Repo.ListTransactions(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]insight.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Engine())
	}
	return out, nil
}

// ListPage returns a page of transactions for a user, newest first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *TransactionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountTransactions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}

	items, err := s.Repo.ListTransactionsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// clip truncates a name to the configured maximum rune length.
func (s *TransactionService) clip(v string) string {
	if s.MerchantMaxLen > 0 && utf8.RuneCountInString(v) > s.MerchantMaxLen {
		return string([]rune(v)[:s.MerchantMaxLen])
	}
	return v
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
