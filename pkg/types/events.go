package types

import "time"

// EventType classifies swarm lifecycle events on the live stream.
type EventType string

const (
	EventTaskCreated    EventType = "task_created"
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventTaskCancelled  EventType = "task_cancelled"
	EventTaskTimedOut   EventType = "task_timed_out"
	EventAgentStatus    EventType = "agent_status"
	EventBroadcast      EventType = "broadcast"
	EventTriggerFired   EventType = "trigger_fired"
	EventPipelineStep   EventType = "pipeline_step"
	EventPipelineDone   EventType = "pipeline_done"
)

// SwarmEvent is one entry on the live event stream. Terminal task events
// are also appended to the history archive.
type SwarmEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	TriggerID string         `json:"trigger_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WebSocketMessage is the envelope sent to dashboard clients.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// BusMessage is a message published on an in-process bus topic. Broadcasts
// publish one; message triggers subscribe to them.
type BusMessage struct {
	Topic     string         `json:"topic"`
	Text      string         `json:"text,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SwarmMetrics is the snapshot served by getMetrics.
type SwarmMetrics struct {
	TotalAgents        int `json:"total_agents"`
	ActiveAgents       int `json:"active_agents"`
	TotalTasks         int `json:"total_tasks"`
	ActiveTasks        int `json:"active_tasks"`
	QueuedTasks        int `json:"queued_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	FailedTasks        int `json:"failed_tasks"`
	OldestQueuedAgeSec int `json:"oldest_queued_age_sec"` // 0 when the queue is empty
}
