package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/KilluaDB/topology/internal/responses"
	"github.com/KilluaDB/topology/internal/services"
	"github.com/KilluaDB/topology/internal/topology"

	"github.com/gin-gonic/gin"
)

type RelationshipHandler struct {
	relationshipService *services.RelationshipService
	fetchTimeout        time.Duration
	logger              *slog.Logger
}

func NewRelationshipHandler(relationshipService *services.RelationshipService, fetchTimeout time.Duration, logger *slog.Logger) *RelationshipHandler {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &RelationshipHandler{
		relationshipService: relationshipService,
		fetchTimeout:        fetchTimeout,
		logger:              logger,
	}
}

// GetRelationships handles GET /api/v1/relationships
func (h *RelationshipHandler) GetRelationships(c *gin.Context) {
	schema := c.DefaultQuery("schema", services.DefaultSchema)
	table := c.Query("table")

	depth := topology.DefaultInitialDepth
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			responses.FetchFail(c, http.StatusBadRequest, fmt.Errorf("%w: %q", services.ErrInvalidDepth, raw))
			return
		}
		depth = d
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.fetchTimeout)
	defer cancel()

	node, err := h.relationshipService.GetTableRelationships(ctx, schema, table, depth)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("relationship fetch failed", "schema", schema, "table", table, "depth", depth, "error", err)
		}
		responses.FetchFail(c, status, err)
		return
	}

	responses.FetchOK(c, node)
}
