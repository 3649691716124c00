package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sentra/internal/dao"
	"sentra/internal/services"
	"sentra/pkg/ids"
)

// Handlers exposes the knowledge graph, execution history and request
// flow over JSON.
type Handlers struct {
	Store       dao.KnowledgeDAO
	Coordinator *services.Coordinator
	Recommender *services.Recommender
}

func New(store dao.KnowledgeDAO, coordinator *services.Coordinator, recommender *services.Recommender) *Handlers {
	return &Handlers{Store: store, Coordinator: coordinator, Recommender: recommender}
}

// ListEntities handles GET /api/entities?kind=host
func (h *Handlers) ListEntities(c *gin.Context) {
	kind := c.Query("kind")
	if kind == "" || !ids.KnownKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or missing kind"})
		return
	}
	entities, err := h.Store.EntitiesByKind(kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "count": len(entities)})
}

// GetEntity handles GET /api/entities/:id
func (h *Handlers) GetEntity(c *gin.Context) {
	entity, err := h.Store.GetEntity(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, entity)
}

// GetChildren handles GET /api/entities/:id/children?type=has_port
func (h *Handlers) GetChildren(c *gin.Context) {
	relType := c.Query("type")
	if relType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing relationship type"})
		return
	}
	children, err := h.Store.Children(c.Param("id"), relType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"children": children, "count": len(children)})
}

// ListExecutions handles GET /api/executions?tool=nmap_port_scan
func (h *Handlers) ListExecutions(c *gin.Context) {
	records, err := h.Store.ListExecutions(c.Query("tool"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records, "count": len(records)})
}

// Status handles GET /api/status
func (h *Handlers) Status(c *gin.Context) {
	stats, err := h.Store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":             stats,
		"pending_approvals": h.Coordinator.PendingApprovals(),
	})
}

type requestBody struct {
	Text   string `json:"text" binding:"required"`
	Target string `json:"target"`
}

// SubmitRequest handles POST /api/request
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Coordinator.HandleRequest(c.Request.Context(), body.Text, body.Target)
	if err != nil {
		status := http.StatusUnprocessableEntity
		c.JSON(status, gin.H{"error": err.Error(), "outcome": outcome})
		return
	}
	c.JSON(http.StatusAccepted, outcome)
}

type approvalBody struct {
	Approve bool `json:"approve"`
}

// ResolveApproval handles POST /api/approvals/:id
func (h *Handlers) ResolveApproval(c *gin.Context) {
	var body approvalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	approvalID := c.Param("id")
	if !body.Approve {
		if err := h.Coordinator.Reject(approvalID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"approved": false})
		return
	}

	executionID, err := h.Coordinator.Approve(c.Request.Context(), approvalID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": true, "execution_id": executionID})
}

// CancelExecution handles POST /api/executions/:id/cancel
func (h *Handlers) CancelExecution(c *gin.Context) {
	if err := h.Coordinator.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

type inputBody struct {
	Text string `json:"text" binding:"required"`
}

// SendInput handles POST /api/executions/:id/input
func (h *Handlers) SendInput(c *gin.Context) {
	var body inputBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Coordinator.WriteInput(c.Param("id"), body.Text); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// Suggestions handles GET /api/suggestions
func (h *Handlers) Suggestions(c *gin.Context) {
	suggestions, err := h.Recommender.Suggest(5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
