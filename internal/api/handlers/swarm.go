package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// SwarmHandler handles swarm-wide requests.
type SwarmHandler struct {
	scheduler *swarm.Scheduler
}

// NewSwarmHandler creates a new SwarmHandler.
func NewSwarmHandler(scheduler *swarm.Scheduler) *SwarmHandler {
	return &SwarmHandler{scheduler: scheduler}
}

// Status returns every agent plus the aggregate metrics in one snapshot.
func (h *SwarmHandler) Status(c *gin.Context) {
	status, err := h.scheduler.SwarmStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Metrics returns the aggregate swarm metrics.
func (h *SwarmHandler) Metrics(c *gin.Context) {
	metrics, err := h.scheduler.Metrics()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// Broadcast publishes a message to agents, optionally narrowed to one
// coordinator and one agent status.
func (h *SwarmHandler) Broadcast(c *gin.Context) {
	var req struct {
		Scope   string            `json:"scope,omitempty"`
		Status  types.AgentStatus `json:"status,omitempty"`
		Message string            `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	delivered, err := h.scheduler.Broadcast(req.Scope, req.Status, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
