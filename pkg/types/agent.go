package types

import (
	"fmt"
	"strings"
	"time"
)

// Coordinator is a supervisory grouping of agents sharing a domain.
// Tasks route to agents within the matching coordinator.
type Coordinator string

const (
	CoordinatorResearch   Coordinator = "research"
	CoordinatorQuality    Coordinator = "quality"
	CoordinatorOperations Coordinator = "operations"
)

// Valid returns true if the coordinator is a known group.
func (c Coordinator) Valid() bool {
	switch c {
	case CoordinatorResearch, CoordinatorQuality, CoordinatorOperations:
		return true
	default:
		return false
	}
}

// Coordinators lists the fixed set of supervisory groups.
func Coordinators() []Coordinator {
	return []Coordinator{CoordinatorResearch, CoordinatorQuality, CoordinatorOperations}
}

// AgentStatus represents the runtime state of an agent.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentProcessing AgentStatus = "processing"
	AgentPaused     AgentStatus = "paused"
	AgentError      AgentStatus = "error"
	AgentTerminated AgentStatus = "terminated" // Absorbing: no further assignment
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentIdle, AgentProcessing, AgentPaused, AgentError, AgentTerminated:
		return true
	default:
		return false
	}
}

// ControlAction is an explicit lifecycle command applied to an agent.
// Unknown action strings are rejected at the boundary by ParseControlAction.
type ControlAction string

const (
	ControlPause   ControlAction = "pause"
	ControlResume  ControlAction = "resume"
	ControlStop    ControlAction = "stop"
	ControlRestart ControlAction = "restart"
)

// ParseControlAction maps a wire action name to the closed action set.
// "start" is accepted as an alias for resume, matching the bridge wire form.
func ParseControlAction(s string) (ControlAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pause":
		return ControlPause, nil
	case "resume", "start":
		return ControlResume, nil
	case "stop":
		return ControlStop, nil
	case "restart":
		return ControlRestart, nil
	default:
		return "", fmt.Errorf("unknown control action %q", s)
	}
}

// AgentSpec is the static roster entry for an agent. Stored in the
// config file as YAML, or supplied by the built-in roster.
type AgentSpec struct {
	ID                  string      `json:"id" yaml:"id"`
	Name                string      `json:"name" yaml:"name"`
	Role                string      `json:"role" yaml:"role"`
	Coordinator         Coordinator `json:"coordinator" yaml:"coordinator"`
	Capabilities        []string    `json:"capabilities" yaml:"capabilities"`
	MaxConcurrentTasks  int         `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	HeartbeatIntervalMs int         `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
	TaskTimeoutMs       int         `json:"task_timeout_ms" yaml:"task_timeout_ms"`
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (s *AgentSpec) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMs) * time.Millisecond
}

// TaskTimeout returns the agent's task budget as a duration. It applies
// to tasks assigned to the agent without an explicit timeout.
func (s *AgentSpec) TaskTimeout() time.Duration {
	return time.Duration(s.TaskTimeoutMs) * time.Millisecond
}

// HasCapability reports whether the agent advertises the given task type.
func (s *AgentSpec) HasCapability(taskType string) bool {
	for _, c := range s.Capabilities {
		if c == taskType {
			return true
		}
	}
	return false
}

// Validate checks the roster entry for registration.
func (s *AgentSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if !s.Coordinator.Valid() {
		return fmt.Errorf("agent %s: unknown coordinator %q", s.ID, s.Coordinator)
	}
	if len(s.Capabilities) == 0 {
		return fmt.Errorf("agent %s: at least one capability is required", s.ID)
	}
	if s.MaxConcurrentTasks < 1 {
		return fmt.Errorf("agent %s: max_concurrent_tasks must be >= 1", s.ID)
	}
	return nil
}

// Agent combines the static roster entry with mutable runtime state.
type Agent struct {
	AgentSpec      `yaml:",inline"`
	Status         AgentStatus `json:"status"`
	CurrentTaskIDs []string    `json:"current_task_ids"`
	LastHeartbeat  *time.Time  `json:"last_heartbeat,omitempty"`
	TasksCompleted int         `json:"tasks_completed"`
	TasksFailed    int         `json:"tasks_failed"`
	LastError      string      `json:"last_error,omitempty"`
}

// Load returns the number of tasks the agent is currently working on.
func (a *Agent) Load() int {
	return len(a.CurrentTaskIDs)
}

// Clone returns a copy safe to hand outside the scheduler loop.
func (a *Agent) Clone() *Agent {
	c := *a
	c.CurrentTaskIDs = append([]string(nil), a.CurrentTaskIDs...)
	c.Capabilities = append([]string(nil), a.Capabilities...)
	if a.LastHeartbeat != nil {
		v := *a.LastHeartbeat
		c.LastHeartbeat = &v
	}
	return &c
}

// AgentFilter defines criteria for listing agents.
type AgentFilter struct {
	Coordinator Coordinator `json:"coordinator,omitempty"`
	Status      AgentStatus `json:"status,omitempty"`
}

// Matches reports whether the agent satisfies every set criterion.
func (f *AgentFilter) Matches(a *Agent) bool {
	if f.Coordinator != "" && a.Coordinator != f.Coordinator {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
