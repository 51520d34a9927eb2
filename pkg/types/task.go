// Package types provides shared type definitions for the Vega swarm scheduler.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"     // Waiting for an eligible agent
	TaskAssigned   TaskStatus = "assigned"   // Matched to an agent, not yet running
	TaskProcessing TaskStatus = "processing" // Agent is working on it
	TaskCompleted  TaskStatus = "completed"  // Finished successfully
	TaskFailed     TaskStatus = "failed"     // Agent reported failure
	TaskCancelled  TaskStatus = "cancelled"  // Cancelled by the caller
	TaskTimedOut   TaskStatus = "timed_out"  // Exceeded its timeout budget
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		return true
	default:
		return false
	}
}

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskQueued, TaskAssigned, TaskProcessing, TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		return true
	default:
		return false
	}
}

// Priority orders tasks in the queue. Lower ordinal means more urgent,
// matching the wire convention of the swarm bridge (0=emergency ... 3=background).
type Priority int

const (
	PriorityEmergency  Priority = 0
	PriorityHigh       Priority = 1
	PriorityNormal     Priority = 2
	PriorityBackground Priority = 3
)

// Valid returns true if the priority is in range.
func (p Priority) Valid() bool {
	return p >= PriorityEmergency && p <= PriorityBackground
}

// String returns the symbolic name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority accepts a symbolic priority name. An empty string maps to normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency":
		return PriorityEmergency, nil
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "background":
		return PriorityBackground, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalJSON emits the ordinal wire form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(p))
}

// UnmarshalJSON accepts either the ordinal (2) or symbolic ("normal") form.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		v := Priority(n)
		if !v.Valid() {
			return fmt.Errorf("priority out of range: %d", n)
		}
		*p = v
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("priority must be an integer or a name: %s", string(data))
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Task represents a unit of work dispatched to a swarm agent.
type Task struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`     // Capability tag the task requires
	Priority        Priority       `json:"priority"` // Queue ordering
	Status          TaskStatus     `json:"status"`
	Coordinator     Coordinator    `json:"coordinator"` // Derived from type routing
	AssignedAgentID string         `json:"assigned_agent_id,omitempty"`
	TargetAgentID   string         `json:"target_agent_id,omitempty"` // Optional pin to one agent
	InputData       map[string]any `json:"input_data,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	TimeoutSeconds  int            `json:"timeout_seconds"`
	RetryCount      int            `json:"retry_count"` // Bookkeeping only; retries are a caller decision
	CancelReason    string         `json:"cancel_reason,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// Clone returns a copy safe to hand outside the scheduler loop.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	c.InputData = cloneMap(t.InputData)
	c.OutputData = cloneMap(t.OutputData)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TaskFilter defines criteria for listing tasks.
type TaskFilter struct {
	Status      []TaskStatus `json:"status,omitempty"`
	Type        string       `json:"type,omitempty"`
	Coordinator Coordinator  `json:"coordinator,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// Matches reports whether the task satisfies every set criterion.
func (f *TaskFilter) Matches(t *Task) bool {
	if len(f.Status) > 0 {
		ok := false
		for _, s := range f.Status {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Coordinator != "" && t.Coordinator != f.Coordinator {
		return false
	}
	return true
}
