// Insight HTTP handlers.
//
// This file exposes REST endpoints for the insight engine:
//   - POST   /insights/generate   (run one insight cycle for a transaction)
//   - GET    /insights/fallback   (the fixed still-learning insight)
//   - POST   /insights/silence    (mute insight delivery for the device)
//   - DELETE /insights/silence    (clear an active mute)
//   - POST   /insights/feedback   (rate a shown insight)
//   - GET    /profile             (user profile, ETag support)
//   - POST   /profile/sync        (merge client-held insight history)
//
// The generate endpoint embodies the engine's contract: it always answers
// with a renderable insight, no matter how thin or broken the state is.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-insight-backend/internal/insight"
	"github.com/tbourn/go-insight-backend/internal/repo"
	"github.com/tbourn/go-insight-backend/internal/services"
)

//
// DTOs
//

// GenerateInsightRequest is the JSON payload for running one insight cycle
// against an inline transaction (one not necessarily saved yet).
type GenerateInsightRequest struct {
	// Transaction is the receipt to generate against.
	Transaction insight.Transaction `json:"transaction" binding:"required"`
}

// FeedbackRequest is the JSON payload for rating a shown insight.
type FeedbackRequest struct {
	// InsightID names the rule that produced the insight.
	InsightID string `json:"insight_id" binding:"required" example:"weekend_treat"`
	// TransactionID is the receipt the insight was shown for.
	TransactionID string `json:"transaction_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Value is -1 (negative) or 1 (positive).
	Value int `json:"value" binding:"required" example:"1"`
}

// SyncHistoryRequest carries insight records a client device held locally.
type SyncHistoryRequest struct {
	RecentInsights []insight.InsightRecord `json:"recent_insights"`
}

//
// Handlers
//

// GenerateInsight godoc
// @ID          generateInsight
// @Summary     Generate an insight for a transaction
// @Description Runs one full generation cycle and returns the chosen insight (or the fixed fallback).
// @Description This endpoint never fails with missing state; empty history simply yields fewer candidates.
// @Tags        Insights
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(user123)
// @Param       X-Device-ID  header  string  false "Scanning device ID"     example(device-abc)
// @Param       body         body    handlers.GenerateInsightRequest  true  "Transaction payload"
//
// @Success     200  {object}  services.GenerationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /insights/generate [post]
func (h *Handlers) GenerateInsight(c *gin.Context) {
	var req GenerateInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res := h.insightSvc.GenerateForTransaction(c.Request.Context(), userID(c), deviceID(c), req.Transaction)
	ok(c, http.StatusOK, res)
}

// GetFallbackInsight godoc
// @ID          getFallbackInsight
// @Summary     The fixed fallback insight
// @Description Returns the still-learning insight shown when no candidate survives filtering.
// @Tags        Insights
// @Produce     json
//
// @Success     200  {object}  insight.Insight
// @Router      /insights/fallback [get]
func (h *Handlers) GetFallbackInsight(c *gin.Context) {
	ok(c, http.StatusOK, h.insightSvc.Fallback())
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Current user's insight profile
// @Description Returns the profile with recent insight history. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Profile
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} insight.Profile
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if svc, okSvc := h.insightSvc.(*services.InsightService); okSvc && svc.DB != nil {
		count, maxTS, err := repo.ProfileStats(ctx, svc.DB, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"profile:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	p, err := h.insightSvc.Profile(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// SyncProfileHistory godoc
// @ID          syncProfileHistory
// @Summary     Merge client-held insight history
// @Description Unions insight records a device held locally into the server profile, deduplicated and trimmed.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.SyncHistoryRequest  true  "Client records"
//
// @Success     200  {object} insight.Profile
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /profile/sync [post]
func (h *Handlers) SyncProfileHistory(c *gin.Context) {
	var req SyncHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.insightSvc.SyncHistory(c.Request.Context(), userID(c), req.RecentInsights)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// SilenceInsights godoc
// @ID          silenceInsights
// @Summary     Mute insight delivery
// @Description Silences insights for this device for the standard window; scans during the window get the fallback.
// @Tags        Insights
// @Produce     json
//
// @Param       X-Device-ID  header  string  false "Scanning device ID"  example(device-abc)
//
// @Success     200  {object} insight.LocalInsightCache
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /insights/silence [post]
func (h *Handlers) SilenceInsights(c *gin.Context) {
	cache, err := h.insightSvc.Silence(c.Request.Context(), deviceID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, cache)
}

// UnsilenceInsights godoc
// @ID          unsilenceInsights
// @Summary     Clear an active mute
// @Tags        Insights
// @Produce     json
//
// @Param       X-Device-ID  header  string  false "Scanning device ID"  example(device-abc)
//
// @Success     200  {object} insight.LocalInsightCache
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /insights/silence [delete]
func (h *Handlers) UnsilenceInsights(c *gin.Context) {
	cache, err := h.insightSvc.Unsilence(c.Request.Context(), deviceID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, cache)
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a shown insight
// @Description Records a -1/+1 rating for an insight that was actually shown to the user.
// @Tags        Insights
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.FeedbackRequest  true  "Rating payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Insight was not shown"
// @Failure     409  {object} handlers.ErrorResponse "Already rated"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /insights/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "insight_id, transaction_id and value required")
		return
	}

	err := h.fbSvc.Leave(c.Request.Context(), userID(c), req.InsightID, req.TransactionID, req.Value)
	switch err {
	case nil:
		noContent(c)
	case services.ErrInvalidFeedback:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case services.ErrUnknownInsight:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.ErrDuplicateFeedback:
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
