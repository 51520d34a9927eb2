package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/pipeline"
	"github.com/vega-swarm/vega/pkg/types"
)

// PipelineHandler handles pipeline-related requests.
type PipelineHandler struct {
	engine *pipeline.Engine
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(engine *pipeline.Engine) *PipelineHandler {
	return &PipelineHandler{engine: engine}
}

// runPipelineRequest starts a run from a named template or an inline
// definition. Exactly one of template and definition must be set.
// Priority applies to every step task and defaults to normal.
type runPipelineRequest struct {
	Template   string                    `json:"template,omitempty"`
	Definition *types.PipelineDefinition `json:"definition,omitempty"`
	Input      map[string]any            `json:"input,omitempty"`
	Priority   *types.Priority           `json:"priority,omitempty"`
}

// Run starts a pipeline run.
func (h *PipelineHandler) Run(c *gin.Context) {
	var req runPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		run *types.PipelineRun
		err error
	)
	priority := types.PriorityNormal
	if req.Priority != nil {
		priority = *req.Priority
	}

	switch {
	case req.Template != "" && req.Definition != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "set either template or definition, not both"})
		return
	case req.Template != "":
		run, err = h.engine.RunTemplate(req.Template, req.Input, priority)
	case req.Definition != nil:
		run, err = h.engine.Run(req.Definition, req.Input, priority)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "template or definition is required"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// List returns all pipeline runs, newest first.
func (h *PipelineHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.List())
}

// Get retrieves a pipeline run by ID.
func (h *PipelineHandler) Get(c *gin.Context) {
	run, err := h.engine.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Templates returns the names of the builtin pipeline templates.
func (h *PipelineHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": h.engine.Templates()})
}
