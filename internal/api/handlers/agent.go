package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// AgentHandler handles agent-related requests.
type AgentHandler struct {
	scheduler *swarm.Scheduler
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(scheduler *swarm.Scheduler) *AgentHandler {
	return &AgentHandler{scheduler: scheduler}
}

// List returns all agents matching the filter.
func (h *AgentHandler) List(c *gin.Context) {
	filter := &types.AgentFilter{
		Coordinator: types.Coordinator(c.Query("coordinator")),
		Status:      types.AgentStatus(c.Query("status")),
	}

	agents, err := h.scheduler.ListAgents(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// Get retrieves an agent by ID.
func (h *AgentHandler) Get(c *gin.Context) {
	agent, err := h.scheduler.GetAgent(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Control applies a lifecycle action (pause, resume, stop, restart).
func (h *AgentHandler) Control(c *gin.Context) {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := types.ParseControlAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.scheduler.ControlAgent(c.Param("id"), action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Heartbeat records a liveness report from an agent.
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	if err := h.scheduler.Heartbeat(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
