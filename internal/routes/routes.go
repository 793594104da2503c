package routes

import (
	"net/http"

	"github.com/KilluaDB/topology/internal/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API under /api/v1. Middlewares such as bearer
// authentication apply to the whole API group but not to the health check.
func RegisterRoutes(router *gin.Engine, relationshipHandler *handlers.RelationshipHandler, schemaHandler *handlers.SchemaHandler, topologyHandler *handlers.TopologyHandler, middlewares ...gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(middlewares...)

	relationshipRoutes := NewRelationshipRoutes(relationshipHandler)
	relationshipRoutes.RegisterRoutes(api)

	schemaRoutes := NewSchemaRoutes(schemaHandler)
	schemaRoutes.RegisterRoutes(api)

	topologyRoutes := NewTopologyRoutes(topologyHandler)
	topologyRoutes.RegisterRoutes(api)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
