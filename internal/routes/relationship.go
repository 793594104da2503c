package routes

import (
	"github.com/KilluaDB/topology/internal/handlers"

	"github.com/gin-gonic/gin"
)

type RelationshipRoutes struct {
	handler *handlers.RelationshipHandler
}

func NewRelationshipRoutes(handler *handlers.RelationshipHandler) *RelationshipRoutes {
	return &RelationshipRoutes{handler: handler}
}

func (r *RelationshipRoutes) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/relationships", r.handler.GetRelationships)
}
