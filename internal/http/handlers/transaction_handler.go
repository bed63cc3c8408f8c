// Transaction HTTP handlers.
//
// This file exposes REST endpoints for scanned expense transactions:
//   - POST /transactions        (save a receipt, then return its insight)
//   - GET  /transactions        (list, paginated, newest first)
//   - GET  /transactions/{id}   (fetch one receipt)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Saving never fails because of
// insight generation; the insight half of the response degrades to the fixed
// fallback instead.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// save exists for (user, key), the handler returns the recorded transaction
// and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insight-backend/internal/domain"
	"github.com/tbourn/go-insight-backend/internal/insight"
	"github.com/tbourn/go-insight-backend/internal/repo"
	"github.com/tbourn/go-insight-backend/internal/services"
	"github.com/tbourn/go-insight-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// TransactionService defines receipt lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TransactionService interface {
	// Create validates and persists a new transaction for userID.
	Create(ctx context.Context, userID string, txn insight.Transaction) (*domain.Transaction, error)
	// Get fetches a transaction that belongs to userID.
	Get(ctx context.Context, userID, id string) (*domain.Transaction, error)
	// ListPage returns a page of transactions and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Transaction, int64, error)
}

// InsightService defines the insight generation and state operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type InsightService interface {
	// GenerateForTransaction runs one insight cycle; it never fails.
	GenerateForTransaction(ctx context.Context, userID, deviceID string, txn insight.Transaction) services.GenerationResult
	// Fallback returns the fixed still-learning insight.
	Fallback() insight.Insight
	// Profile loads the user's insight profile with recent history.
	Profile(ctx context.Context, userID string) (insight.Profile, error)
	// DeviceCache loads (and heals) the device's local cache.
	DeviceCache(ctx context.Context, deviceID string) insight.LocalInsightCache
	// PutDeviceCache replaces the stored cache for a device.
	PutDeviceCache(ctx context.Context, deviceID string, c insight.LocalInsightCache) error
	// Silence mutes insight delivery for the standard window.
	Silence(ctx context.Context, deviceID string) (insight.LocalInsightCache, error)
	// Unsilence clears any active mute.
	Unsilence(ctx context.Context, deviceID string) (insight.LocalInsightCache, error)
	// RefreshAggregates recomputes the cache's precomputed aggregates.
	RefreshAggregates(ctx context.Context, userID, deviceID string) (insight.LocalInsightCache, error)
	// SyncHistory unions client-held insight records into the profile.
	SyncHistory(ctx context.Context, userID string, client []insight.InsightRecord) (insight.Profile, error)
}

// FeedbackService defines operations to capture user ratings of insights.
type FeedbackService interface {
	// Leave submits a rating (-1 or 1) for a shown insight.
	Leave(ctx context.Context, userID, insightID, transactionID string, value int) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for transactions, insights, the device
// cache, and feedback. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	txnSvc     TransactionService
	insightSvc InsightService
	fbSvc      FeedbackService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(txnSvc TransactionService, insightSvc InsightService, fbSvc FeedbackService) *Handlers {
	return &Handlers{txnSvc: txnSvc, insightSvc: insightSvc, fbSvc: fbSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// deviceID extracts the scanning device id from the "X-Device-ID" header.
// The device cache is keyed by this value; without it the user id doubles as
// a single-device key.
func deviceID(c *gin.Context) string {
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Device-ID")); h != "" {
			return h
		}
	}
	return userID(c)
}

//
// DTOs
//

// CreateTransactionRequest is the JSON payload for saving a scanned receipt.
type CreateTransactionRequest struct {
	// Date is the purchase date as YYYY-MM-DD.
	Date string `json:"date" binding:"required" example:"2026-03-10"`
	// Time optionally carries the purchase time as HH:MM.
	Time string `json:"time,omitempty" example:"21:45"`
	// Merchant is the store name as printed on the receipt.
	Merchant string `json:"merchant" binding:"required" example:"Albert Heijn"`
	// City optionally locates the purchase.
	City string `json:"city,omitempty" example:"Amsterdam"`
	// Category is the spending category (lowercased server-side).
	Category string `json:"category" example:"groceries"`
	// Total is the receipt total in integer cents.
	Total int64 `json:"total" example:"1250"`
	// Items optionally lists the receipt's line items.
	Items []insight.Item `json:"items,omitempty"`
}

// CreateTransactionResponse pairs the stored receipt with the insight chosen
// for it.
type CreateTransactionResponse struct {
	Transaction *domain.Transaction       `json:"transaction"`
	Insight     services.GenerationResult `json:"insight"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTransactionsResponse wraps a page of transactions and pagination
// information.
type ListTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

// serviceDB exposes the GORM handle when the concrete TransactionService is
// in use; ETag and idempotency lookups are best effort and skipped otherwise.
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, ok := h.txnSvc.(*services.TransactionService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreateTransaction godoc
// @ID          createTransaction
// @Summary     Save a scanned receipt
// @Description Persists the transaction and returns it together with the insight selected for it.
// @Description Supports idempotency via the Idempotency-Key header (same key → same transaction, no duplicate).
// @Tags        Transactions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"   example(user123)
// @Param       X-Device-ID      header  string  false "Scanning device ID"      example(device-abc)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateTransactionRequest  true  "Receipt payload"
//
// @Success     201  {object}  handlers.CreateTransactionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /transactions [post]
func (h *Handlers) CreateTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	currentUser := userID(c)

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, currentUser, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := h.txnSvc.Get(ctx, currentUser, rec.TransactionID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					fb := insight.FallbackInsight()
					fb.TransactionID = prev.ID
					ok(c, http.StatusOK, CreateTransactionResponse{
						Transaction: prev,
						Insight:     services.GenerationResult{Insight: fb, Fallback: true},
					})
					return
				}
			}
		}
	}

	txn := insight.Transaction{
		Date:     req.Date,
		Time:     req.Time,
		Merchant: req.Merchant,
		City:     req.City,
		Category: req.Category,
		Total:    req.Total,
		Items:    req.Items,
	}

	row, err := h.txnSvc.Create(ctx, currentUser, txn)
	if err != nil {
		switch err {
		case services.ErrEmptyMerchant, services.ErrInvalidDate,
			services.ErrNegativeAmount, services.ErrTooManyItems:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, db, currentUser, idemKey, row.ID, http.StatusCreated, ttl)
		}
	}

	// The insight half never blocks the save.
	res := h.insightSvc.GenerateForTransaction(ctx, currentUser, deviceID(c), row.Engine())

	ok(c, http.StatusCreated, CreateTransactionResponse{Transaction: row, Insight: res})
}

// ListTransactions godoc
// @ID          listTransactions
// @Summary     List transactions (paginated)
// @Description Returns a page of the user's transactions, newest first.
// @Tags        Transactions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTransactionsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	items, total, err := h.txnSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTransactionsResponse{
		Transactions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Fetch one transaction
// @Description Returns a single transaction owned by the current user.
// @Tags        Transactions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Transaction ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Transaction
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transaction id must be a UUID")
		return
	}

	row, err := h.txnSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		if err == services.ErrTransactionNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, row)
}
