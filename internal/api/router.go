// Package api provides the REST control surface and the websocket event
// stream for the swarm daemon.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vega-swarm/vega/internal/api/handlers"
	"github.com/vega-swarm/vega/internal/history"
	"github.com/vega-swarm/vega/internal/pipeline"
	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/internal/trigger"
	"github.com/vega-swarm/vega/pkg/types"
)

// Router holds all API dependencies and routes.
type Router struct {
	engine    *gin.Engine
	scheduler *swarm.Scheduler
	triggers  *trigger.Engine
	pipelines *pipeline.Engine
	archive   *history.Store

	upgrader websocket.Upgrader

	wsClientsMu sync.RWMutex
	wsClients   map[*websocket.Conn]bool
}

// NewRouter creates a new API router and starts the event broadcaster.
func NewRouter(
	scheduler *swarm.Scheduler,
	triggers *trigger.Engine,
	pipelines *pipeline.Engine,
	archive *history.Store,
) *Router {
	r := &Router{
		engine:    gin.Default(),
		scheduler: scheduler,
		triggers:  triggers,
		pipelines: pipelines,
		archive:   archive,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		wsClients: make(map[*websocket.Conn]bool),
	}

	r.setupRoutes()
	go r.broadcastSwarmEvents()

	return r
}

// setupRoutes configures all API routes.
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := r.engine.Group("/api/v1")
	{
		// Swarm-wide operations
		swarmRoutes := v1.Group("/swarm")
		{
			swarmRoutes.GET("/status", r.getSwarmStatus)
			swarmRoutes.GET("/metrics", r.getSwarmMetrics)
			swarmRoutes.POST("/broadcast", r.broadcast)
		}

		// Tasks
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", r.listTasks)
			tasks.POST("", r.createTask)
			tasks.GET("/:id", r.getTask)
			tasks.DELETE("/:id", r.cancelTask)
		}

		// Agents
		agents := v1.Group("/agents")
		{
			agents.GET("", r.listAgents)
			agents.GET("/:id", r.getAgent)
			agents.POST("/:id/control", r.controlAgent)
			agents.POST("/:id/heartbeat", r.agentHeartbeat)
		}

		// Triggers
		triggers := v1.Group("/triggers")
		{
			triggers.GET("", r.listTriggers)
			triggers.POST("", r.registerTrigger)
			triggers.GET("/:id", r.getTrigger)
			triggers.DELETE("/:id", r.deleteTrigger)
			triggers.POST("/:id/fire", r.fireTrigger)
			triggers.PUT("/:id/enabled", r.setTriggerEnabled)
		}

		// Pipelines
		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("", r.listPipelineRuns)
			pipelines.POST("", r.runPipeline)
			pipelines.GET("/templates", r.listPipelineTemplates)
			pipelines.GET("/:id", r.getPipelineRun)
		}

		// History archive
		historyRoutes := v1.Group("/history")
		{
			historyRoutes.GET("/tasks", r.listArchivedTasks)
			historyRoutes.GET("/events", r.listArchivedEvents)
		}
	}

	// WebSocket for real-time updates
	r.engine.GET("/ws", r.handleWebSocket)
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Swarm handlers

func (r *Router) getSwarmStatus(c *gin.Context) {
	h := handlers.NewSwarmHandler(r.scheduler)
	h.Status(c)
}

func (r *Router) getSwarmMetrics(c *gin.Context) {
	h := handlers.NewSwarmHandler(r.scheduler)
	h.Metrics(c)
}

func (r *Router) broadcast(c *gin.Context) {
	h := handlers.NewSwarmHandler(r.scheduler)
	h.Broadcast(c)
}

// Task handlers

func (r *Router) listTasks(c *gin.Context) {
	h := handlers.NewTaskHandler(r.scheduler)
	h.List(c)
}

func (r *Router) createTask(c *gin.Context) {
	h := handlers.NewTaskHandler(r.scheduler)
	h.Create(c)
}

func (r *Router) getTask(c *gin.Context) {
	h := handlers.NewTaskHandler(r.scheduler)
	h.Get(c)
}

func (r *Router) cancelTask(c *gin.Context) {
	h := handlers.NewTaskHandler(r.scheduler)
	h.Cancel(c)
}

// Agent handlers

func (r *Router) listAgents(c *gin.Context) {
	h := handlers.NewAgentHandler(r.scheduler)
	h.List(c)
}

func (r *Router) getAgent(c *gin.Context) {
	h := handlers.NewAgentHandler(r.scheduler)
	h.Get(c)
}

func (r *Router) controlAgent(c *gin.Context) {
	h := handlers.NewAgentHandler(r.scheduler)
	h.Control(c)
}

func (r *Router) agentHeartbeat(c *gin.Context) {
	h := handlers.NewAgentHandler(r.scheduler)
	h.Heartbeat(c)
}

// Trigger handlers

func (r *Router) listTriggers(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.List(c)
}

func (r *Router) registerTrigger(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.Register(c)
}

func (r *Router) getTrigger(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.Get(c)
}

func (r *Router) deleteTrigger(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.Delete(c)
}

func (r *Router) fireTrigger(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.Fire(c)
}

func (r *Router) setTriggerEnabled(c *gin.Context) {
	h := handlers.NewTriggerHandler(r.triggers)
	h.SetEnabled(c)
}

// Pipeline handlers

func (r *Router) listPipelineRuns(c *gin.Context) {
	h := handlers.NewPipelineHandler(r.pipelines)
	h.List(c)
}

func (r *Router) runPipeline(c *gin.Context) {
	h := handlers.NewPipelineHandler(r.pipelines)
	h.Run(c)
}

func (r *Router) getPipelineRun(c *gin.Context) {
	h := handlers.NewPipelineHandler(r.pipelines)
	h.Get(c)
}

func (r *Router) listPipelineTemplates(c *gin.Context) {
	h := handlers.NewPipelineHandler(r.pipelines)
	h.Templates(c)
}

// History handlers

func (r *Router) listArchivedTasks(c *gin.Context) {
	h := handlers.NewHistoryHandler(r.archive)
	h.Tasks(c)
}

func (r *Router) listArchivedEvents(c *gin.Context) {
	h := handlers.NewHistoryHandler(r.archive)
	h.Events(c)
}

// WebSocket handler

func (r *Router) handleWebSocket(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	// Send the current swarm snapshot so clients start consistent. The
	// client registers only after this write: once registered, the
	// broadcaster goroutine is the sole writer on the connection.
	if status, err := r.scheduler.SwarmStatus(); err == nil {
		msg := types.WebSocketMessage{
			Type:    "swarm_status",
			Payload: status,
		}
		data, _ := json.Marshal(msg)
		conn.WriteMessage(websocket.TextMessage, data)
	}

	r.wsClientsMu.Lock()
	r.wsClients[conn] = true
	r.wsClientsMu.Unlock()

	defer func() {
		r.wsClientsMu.Lock()
		delete(r.wsClients, conn)
		r.wsClientsMu.Unlock()
		conn.Close()
	}()

	// Drain client messages until disconnect. The stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcastSwarmEvents pushes scheduler events to all WebSocket clients.
func (r *Router) broadcastSwarmEvents() {
	eventCh := r.scheduler.Subscribe("api_broadcaster")
	defer r.scheduler.Unsubscribe("api_broadcaster")

	for event := range eventCh {
		msg := types.WebSocketMessage{
			Type:    string(event.Type),
			Payload: event,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		// Broadcast to all clients
		r.wsClientsMu.RLock()
		for conn := range r.wsClients {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Client will be removed when read fails
				continue
			}
		}
		r.wsClientsMu.RUnlock()
	}
}
