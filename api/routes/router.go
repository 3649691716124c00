package routes

import (
	"github.com/gin-gonic/gin"

	"sentra/internal/handlers"
)

// NewRouter wires the JSON API. The UI itself is an external
// collaborator; this surface only serves data and control.
func NewRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/entities", h.ListEntities)
		api.GET("/entities/:id", h.GetEntity)
		api.GET("/entities/:id/children", h.GetChildren)

		api.GET("/executions", h.ListExecutions)
		api.POST("/executions/:id/cancel", h.CancelExecution)
		api.POST("/executions/:id/input", h.SendInput)

		api.GET("/status", h.Status)
		api.GET("/suggestions", h.Suggestions)

		api.POST("/request", h.SubmitRequest)
		api.POST("/approvals/:id", h.ResolveApproval)
	}

	return router
}
