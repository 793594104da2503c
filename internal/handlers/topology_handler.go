package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KilluaDB/topology/internal/models"
	"github.com/KilluaDB/topology/internal/responses"
	"github.com/KilluaDB/topology/internal/services"
	"github.com/KilluaDB/topology/internal/topology"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OpenTopologyRequest struct {
	Schema string `json:"schema"`
	Table  string `json:"table" binding:"required"`
}

// ExpandRequest names the node to expand either by key or by schema and table.
type ExpandRequest struct {
	Key    string `json:"key"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type ClickRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

type WheelRequest struct {
	DeltaY float64 `json:"delta_y"`
}

type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TopologyHandler struct {
	topologyService *services.TopologyService
	fetchTimeout    time.Duration
	logger          *slog.Logger
}

func NewTopologyHandler(topologyService *services.TopologyService, fetchTimeout time.Duration, logger *slog.Logger) *TopologyHandler {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &TopologyHandler{
		topologyService: topologyService,
		fetchTimeout:    fetchTimeout,
		logger:          logger,
	}
}

// OpenTopology handles POST /api/v1/topology
func (h *TopologyHandler) OpenTopology(c *gin.Context) {
	var req OpenTopologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx, cancel := h.fetchContext(c)
	defer cancel()

	view, err := h.topologyService.Open(ctx, req.Schema, req.Table)
	if err != nil {
		h.fail(c, err, "Failed to open topology view")
		return
	}

	responses.Success(c, http.StatusCreated, view, "Topology view opened")
}

// GetTopology handles GET /api/v1/topology/:session_id
func (h *TopologyHandler) GetTopology(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.topologyService.Get(id)
	if err != nil {
		h.fail(c, err, "Failed to get topology view")
		return
	}

	responses.Success(c, http.StatusOK, view, "")
}

// CloseTopology handles DELETE /api/v1/topology/:session_id
func (h *TopologyHandler) CloseTopology(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.topologyService.Close(id); err != nil {
		h.fail(c, err, "Failed to close topology view")
		return
	}

	responses.Success(c, http.StatusOK, nil, "Topology view closed")
}

// Expand handles POST /api/v1/topology/:session_id/expand
func (h *TopologyHandler) Expand(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	key := models.NodeKey(req.Key)
	if key == "" {
		if req.Table == "" {
			responses.Fail(c, http.StatusBadRequest, errors.New("key or table is required"), "Invalid request body")
			return
		}
		schema := req.Schema
		if schema == "" {
			schema = services.DefaultSchema
		}
		key = models.NewNodeKey(schema, req.Table)
	}

	ctx, cancel := h.fetchContext(c)
	defer cancel()

	view, started, err := h.topologyService.Expand(ctx, id, key)
	if err != nil {
		h.fail(c, err, "Failed to expand node")
		return
	}

	h.expanded(c, view, started)
}

// Click handles POST /api/v1/topology/:session_id/click
func (h *TopologyHandler) Click(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	ctx, cancel := h.fetchContext(c)
	defer cancel()

	view, started, err := h.topologyService.Click(ctx, id, req.NodeID)
	if err != nil {
		h.fail(c, err, "Failed to expand node")
		return
	}

	h.expanded(c, view, started)
}

// Retry handles POST /api/v1/topology/:session_id/retry
func (h *TopologyHandler) Retry(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	ctx, cancel := h.fetchContext(c)
	defer cancel()

	view, err := h.topologyService.Retry(ctx, id)
	if err != nil {
		h.fail(c, err, "Failed to retry")
		return
	}

	responses.Success(c, http.StatusOK, view, "")
}

// RetryRender handles POST /api/v1/topology/:session_id/render/retry
func (h *TopologyHandler) RetryRender(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.topologyService.RetryRender(id)
	if err != nil {
		h.fail(c, err, "Failed to re-render diagram")
		return
	}

	responses.Success(c, http.StatusOK, view, "")
}

// Wheel handles POST /api/v1/topology/:session_id/viewport/wheel
func (h *TopologyHandler) Wheel(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req WheelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	h.viewport(c)(h.topologyService.Wheel(id, req.DeltaY))
}

// DragStart handles POST /api/v1/topology/:session_id/viewport/drag/start
func (h *TopologyHandler) DragStart(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	h.viewport(c)(h.topologyService.DragStart(id, topology.Point{X: req.X, Y: req.Y}))
}

// DragMove handles POST /api/v1/topology/:session_id/viewport/drag/move
func (h *TopologyHandler) DragMove(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	h.viewport(c)(h.topologyService.DragMove(id, topology.Point{X: req.X, Y: req.Y}))
}

// DragEnd handles POST /api/v1/topology/:session_id/viewport/drag/end
func (h *TopologyHandler) DragEnd(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	h.viewport(c)(h.topologyService.DragEnd(id))
}

// ResetView handles POST /api/v1/topology/:session_id/viewport/reset
func (h *TopologyHandler) ResetView(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	h.viewport(c)(h.topologyService.ResetView(id))
}

func (h *TopologyHandler) expanded(c *gin.Context, view *services.TopologyView, started bool) {
	if !started {
		responses.Success(c, http.StatusOK, view, "Expansion already in progress")
		return
	}
	responses.Success(c, http.StatusOK, view, "")
}

func (h *TopologyHandler) viewport(c *gin.Context) func(topology.ViewportState, error) {
	return func(state topology.ViewportState, err error) {
		if err != nil {
			h.fail(c, err, "Failed to update viewport")
			return
		}
		responses.Success(c, http.StatusOK, state, "")
	}
}

func (h *TopologyHandler) fetchContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.fetchTimeout)
}

func (h *TopologyHandler) fail(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, "path", c.FullPath(), "error", err)
	}
	responses.Fail(c, status, err, message)
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid session ID format")
		return uuid.Nil, false
	}
	return id, true
}
