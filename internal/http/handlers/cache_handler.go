// Device cache HTTP handlers.
//
// This file exposes REST endpoints for the per-device insight cache:
//   - GET  /cache             (read, healing missing/corrupt to defaults)
//   - PUT  /cache             (replace, e.g. restoring after reinstall)
//   - POST /cache/aggregates  (recompute precomputed aggregates)
//
// The cache is advisory state; reads never fail, they degrade to defaults.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-insight-backend/internal/insight"
)

// GetDeviceCache godoc
// @ID          getDeviceCache
// @Summary     Read the device cache
// @Description Returns the device's local insight cache. Missing or corrupt entries heal to fresh defaults.
// @Tags        Cache
// @Produce     json
//
// @Param       X-Device-ID  header  string  false "Scanning device ID"  example(device-abc)
//
// @Success     200  {object}  insight.LocalInsightCache
// @Router      /cache [get]
func (h *Handlers) GetDeviceCache(c *gin.Context) {
	ok(c, http.StatusOK, h.insightSvc.DeviceCache(c.Request.Context(), deviceID(c)))
}

// PutDeviceCache godoc
// @ID          putDeviceCache
// @Summary     Replace the device cache
// @Description Stores the provided cache for this device, e.g. when a client restores state.
// @Tags        Cache
// @Accept      json
// @Produce     json
//
// @Param       X-Device-ID  header  string  false "Scanning device ID"  example(device-abc)
// @Param       body         body    insight.LocalInsightCache  true  "Cache payload"
//
// @Success     200  {object}  insight.LocalInsightCache
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cache [put]
func (h *Handlers) PutDeviceCache(c *gin.Context) {
	var cache insight.LocalInsightCache
	if err := c.ShouldBindJSON(&cache); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.insightSvc.PutDeviceCache(c.Request.Context(), deviceID(c), cache); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, cache)
}

// RefreshAggregates godoc
// @ID          refreshAggregates
// @Summary     Recompute cache aggregates
// @Description Rebuilds the device cache's precomputed aggregates (merchant visits, category totals) from the user's full history.
// @Tags        Cache
// @Produce     json
//
// @Param       X-User-ID    header  string  false "User ID (demo header)"  example(user123)
// @Param       X-Device-ID  header  string  false "Scanning device ID"     example(device-abc)
//
// @Success     200  {object}  insight.LocalInsightCache
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cache/aggregates [post]
func (h *Handlers) RefreshAggregates(c *gin.Context) {
	cache, err := h.insightSvc.RefreshAggregates(c.Request.Context(), userID(c), deviceID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, cache)
}
