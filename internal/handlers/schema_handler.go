package handlers

import (
	"log/slog"
	"net/http"

	"github.com/KilluaDB/topology/internal/responses"
	"github.com/KilluaDB/topology/internal/services"

	"github.com/gin-gonic/gin"
)

type SchemaHandler struct {
	schemaService *services.SchemaService
	logger        *slog.Logger
}

func NewSchemaHandler(schemaService *services.SchemaService, logger *slog.Logger) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
		logger:        logger,
	}
}

// VisualizeSchema handles GET /api/v1/schema/visualize
func (h *SchemaHandler) VisualizeSchema(c *gin.Context) {
	schema := c.DefaultQuery("schema", services.DefaultSchema)

	mermaidDiagram, err := h.schemaService.VisualizeSchema(c.Request.Context(), schema)
	if err != nil {
		h.logger.Error("schema visualization failed", "schema", schema, "error", err)
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to visualize schema")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"mermaid": mermaidDiagram,
		"schema":  schema,
	}, "Schema visualization generated successfully")
}

// ListTables handles GET /api/v1/schema/tables
func (h *SchemaHandler) ListTables(c *gin.Context) {
	schema := c.DefaultQuery("schema", services.DefaultSchema)

	tables, err := h.schemaService.ListTables(c.Request.Context(), schema)
	if err != nil {
		h.logger.Error("table listing failed", "schema", schema, "error", err)
		responses.Fail(c, http.StatusInternalServerError, err, "Failed to list tables")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{
		"tables": tables,
		"schema": schema,
	}, "")
}
