// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/train-control-panel/backend/internal/hub"
	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/repository"
)

// HubHandler handles HTTP requests for hub management and control.
type HubHandler struct {
	registry   *hub.Registry
	dispatcher *hub.Dispatcher
	frames     *repository.FrameRepository
	scanWindow time.Duration
}

// NewHubHandler creates a new HubHandler. frames may be nil when the
// frame archive is disabled.
func NewHubHandler(registry *hub.Registry, dispatcher *hub.Dispatcher, frames *repository.FrameRepository, scanWindow time.Duration) *HubHandler {
	return &HubHandler{
		registry:   registry,
		dispatcher: dispatcher,
		frames:     frames,
		scanWindow: scanWindow,
	}
}

// SpeedRequest represents the request body for speed commands.
type SpeedRequest struct {
	Speed *int `json:"speed" binding:"required"`
}

// RenameRequest represents the request body for renaming a hub.
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// ScanResponse represents the result of a scan.
type ScanResponse struct {
	New  []string            `json:"new"`
	Hubs []model.HubSnapshot `json:"hubs"`
}

// OutcomeResponse represents a per-hub result of a group operation.
type OutcomeResponse struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendHubError maps the domain error taxonomy to HTTP status codes.
func sendHubError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownHub):
		sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrInvalidCommand), errors.Is(err, model.ErrInvalidName):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrScanInProgress):
		sendError(c, http.StatusConflict, "SCAN_IN_PROGRESS", err.Error())
	case errors.Is(err, model.ErrNotConnected):
		sendError(c, http.StatusConflict, "HUB_NOT_CONNECTED", err.Error())
	case errors.Is(err, model.ErrConnectTimeout):
		sendError(c, http.StatusGatewayTimeout, "CONNECT_TIMEOUT", err.Error())
	case errors.Is(err, model.ErrConnectFailed):
		sendError(c, http.StatusBadGateway, "CONNECT_FAILED", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func toOutcomeResponses(results map[string]hub.Outcome) map[string]OutcomeResponse {
	response := make(map[string]OutcomeResponse, len(results))
	for id, outcome := range results {
		r := OutcomeResponse{OK: outcome.OK, Skipped: outcome.Skipped}
		if outcome.Err != nil {
			r.Error = outcome.Err.Error()
		}
		response[id] = r
	}
	return response
}

// Scan handles POST /api/hubs/scan - discovers nearby hubs.
func (h *HubHandler) Scan(c *gin.Context) {
	newIDs, err := h.registry.Scan(c.Request.Context(), h.scanWindow)
	if err != nil {
		sendHubError(c, err)
		return
	}

	if newIDs == nil {
		newIDs = []string{}
	}
	c.JSON(http.StatusOK, ScanResponse{
		New:  newIDs,
		Hubs: h.registry.Snapshots(),
	})
}

// List handles GET /api/hubs - lists all known hubs.
func (h *HubHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Snapshots())
}

// Get handles GET /api/hubs/:id - gets one hub's state.
func (h *HubHandler) Get(c *gin.Context) {
	sess := h.registry.Get(c.Param("id"))
	if sess == nil {
		sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", "Hub "+c.Param("id")+" not found")
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// Connect handles POST /api/hubs/:id/connect - connects one hub.
func (h *HubHandler) Connect(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Connect(c.Request.Context(), id); err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.registry.Get(id).Snapshot())
}

// ConnectAll handles POST /api/hubs/connect - connects every known hub.
func (h *HubHandler) ConnectAll(c *gin.Context) {
	results := h.registry.ConnectAll(c.Request.Context())

	response := make(map[string]OutcomeResponse, len(results))
	for id, err := range results {
		r := OutcomeResponse{OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		response[id] = r
	}
	c.JSON(http.StatusOK, response)
}

// Disconnect handles POST /api/hubs/:id/disconnect.
func (h *HubHandler) Disconnect(c *gin.Context) {
	sess := h.registry.Get(c.Param("id"))
	if sess == nil {
		sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", "Hub "+c.Param("id")+" not found")
		return
	}
	sess.Disconnect()
	c.JSON(http.StatusOK, sess.Snapshot())
}

// Speed handles POST /api/hubs/:id/speed - sets one hub's drive speed.
func (h *HubHandler) Speed(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	id := c.Param("id")
	if err := h.dispatcher.Command(id, *req.Speed); err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.registry.Get(id).Snapshot())
}

// SpeedAll handles POST /api/hubs/speed - sets every connected hub's speed.
func (h *HubHandler) SpeedAll(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	results, err := h.dispatcher.CommandAll(*req.Speed)
	if err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOutcomeResponses(results))
}

// Stop handles POST /api/hubs/:id/stop - halts one hub.
func (h *HubHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	if err := h.dispatcher.Stop(id); err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.registry.Get(id).Snapshot())
}

// StopAll handles POST /api/hubs/stop - halts every connected hub.
func (h *HubHandler) StopAll(c *gin.Context) {
	c.JSON(http.StatusOK, toOutcomeResponses(h.dispatcher.StopAll()))
}

// Rename handles PUT /api/hubs/:id/name - changes a hub's display name.
func (h *HubHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	id := c.Param("id")
	if err := h.dispatcher.Rename(id, req.Name); err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.registry.Get(id).Snapshot())
}

// Debug handles GET /api/hubs/:id/debug - returns the diagnostic view.
func (h *HubHandler) Debug(c *gin.Context) {
	info, err := h.dispatcher.DebugInfo(c.Param("id"))
	if err != nil {
		sendHubError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Frames handles GET /api/hubs/:id/frames - returns archived wire frames.
func (h *HubHandler) Frames(c *gin.Context) {
	id := c.Param("id")
	if h.registry.Get(id) == nil {
		sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", "Hub "+id+" not found")
		return
	}
	if h.frames == nil {
		sendError(c, http.StatusNotFound, "ARCHIVE_DISABLED", "Frame archive is not enabled")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.frames.RecentByHub(c.Request.Context(), id, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load frames: "+err.Error())
		return
	}
	if records == nil {
		records = []*model.FrameRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// RegisterRoutes registers the hub handler routes on a Gin router group.
func (h *HubHandler) RegisterRoutes(rg *gin.RouterGroup) {
	hubs := rg.Group("/hubs")
	{
		hubs.POST("/scan", h.Scan)
		hubs.GET("", h.List)
		hubs.POST("/connect", h.ConnectAll)
		hubs.POST("/speed", h.SpeedAll)
		hubs.POST("/stop", h.StopAll)
		hubs.GET("/:id", h.Get)
		hubs.POST("/:id/connect", h.Connect)
		hubs.POST("/:id/disconnect", h.Disconnect)
		hubs.POST("/:id/speed", h.Speed)
		hubs.POST("/:id/stop", h.Stop)
		hubs.PUT("/:id/name", h.Rename)
		hubs.GET("/:id/debug", h.Debug)
		hubs.GET("/:id/frames", h.Frames)
	}
}
