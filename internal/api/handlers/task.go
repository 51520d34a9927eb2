package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// TaskHandler handles task-related requests.
type TaskHandler struct {
	scheduler *swarm.Scheduler
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(scheduler *swarm.Scheduler) *TaskHandler {
	return &TaskHandler{scheduler: scheduler}
}

// List returns all tasks matching the filter.
func (h *TaskHandler) List(c *gin.Context) {
	filter := &types.TaskFilter{}

	for _, s := range c.QueryArray("status") {
		filter.Status = append(filter.Status, types.TaskStatus(s))
	}
	filter.Type = c.Query("type")
	filter.Coordinator = types.Coordinator(c.Query("coordinator"))
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		filter.Limit = n
	}

	tasks, err := h.scheduler.ListTasks(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// Create submits a new task to the queue.
func (h *TaskHandler) Create(c *gin.Context) {
	var req swarm.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.scheduler.CreateTask(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// Get retrieves a task by ID.
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.scheduler.GetTask(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Cancel cancels a task. Cancelling an already-terminal task reports
// cancelled:false rather than an error.
func (h *TaskHandler) Cancel(c *gin.Context) {
	reason := c.Query("reason")

	cancelled, err := h.scheduler.CancelTask(c.Param("id"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}
