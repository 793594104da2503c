package routes

import (
	"github.com/KilluaDB/topology/internal/handlers"

	"github.com/gin-gonic/gin"
)

type TopologyRoutes struct {
	handler *handlers.TopologyHandler
}

func NewTopologyRoutes(handler *handlers.TopologyHandler) *TopologyRoutes {
	return &TopologyRoutes{handler: handler}
}

func (r *TopologyRoutes) RegisterRoutes(router *gin.RouterGroup) {
	topology := router.Group("/topology")
	{
		topology.POST("", r.handler.OpenTopology)
		topology.GET("/:session_id", r.handler.GetTopology)
		topology.DELETE("/:session_id", r.handler.CloseTopology)

		topology.POST("/:session_id/expand", r.handler.Expand)
		topology.POST("/:session_id/click", r.handler.Click)
		topology.POST("/:session_id/retry", r.handler.Retry)
		topology.POST("/:session_id/render/retry", r.handler.RetryRender)

		viewport := topology.Group("/:session_id/viewport")
		viewport.POST("/wheel", r.handler.Wheel)
		viewport.POST("/drag/start", r.handler.DragStart)
		viewport.POST("/drag/move", r.handler.DragMove)
		viewport.POST("/drag/end", r.handler.DragEnd)
		viewport.POST("/reset", r.handler.ResetView)
	}
}
