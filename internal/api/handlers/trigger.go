package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/trigger"
	"github.com/vega-swarm/vega/pkg/types"
)

// TriggerHandler handles trigger-related requests.
type TriggerHandler struct {
	engine *trigger.Engine
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(engine *trigger.Engine) *TriggerHandler {
	return &TriggerHandler{engine: engine}
}

// registerTriggerRequest mirrors types.Trigger with an optional enabled
// flag; omitting it registers the trigger enabled.
type registerTriggerRequest struct {
	Type         types.TriggerType      `json:"type"`
	Condition    types.TriggerCondition `json:"condition"`
	Action       types.TriggerAction    `json:"action"`
	Enabled      *bool                  `json:"enabled,omitempty"`
	CooldownSecs int                    `json:"cooldown_secs,omitempty"`
}

// Register validates and registers a new trigger.
func (h *TriggerHandler) Register(c *gin.Context) {
	var req registerTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := &types.Trigger{
		Type:         req.Type,
		Condition:    req.Condition,
		Action:       req.Action,
		Enabled:      true,
		CooldownSecs: req.CooldownSecs,
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}

	id, err := h.engine.Register(t)
	if err != nil {
		respondError(c, err)
		return
	}

	registered, err := h.engine.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, registered)
}

// List returns all registered triggers.
func (h *TriggerHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.List())
}

// Get retrieves a trigger by ID.
func (h *TriggerHandler) Get(c *gin.Context) {
	t, err := h.engine.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Fire delivers a manual condition signal to the trigger. Cooldown and the
// enabled flag still apply.
func (h *TriggerHandler) Fire(c *gin.Context) {
	var data map[string]any
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	fired, err := h.engine.Fire(c.Param("id"), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fired": fired})
}

// SetEnabled flips the trigger's enabled flag.
func (h *TriggerHandler) SetEnabled(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.engine.SetEnabled(c.Param("id"), req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Delete removes a trigger.
func (h *TriggerHandler) Delete(c *gin.Context) {
	if err := h.engine.Unregister(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
