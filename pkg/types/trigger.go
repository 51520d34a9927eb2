package types

import (
	"fmt"
	"time"
)

// TriggerType identifies the external condition a trigger watches.
type TriggerType string

const (
	TriggerSchedule  TriggerType = "schedule"   // Cron expression or fixed interval
	TriggerFileWatch TriggerType = "file_watch" // Filesystem change under a path
	TriggerMessage   TriggerType = "message"    // Message published on a bus topic
)

// Valid returns true if the trigger type is a known value.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerSchedule, TriggerFileWatch, TriggerMessage:
		return true
	default:
		return false
	}
}

// TriggerCondition is the type-specific predicate configuration.
// Exactly the fields for the trigger's type must be set.
type TriggerCondition struct {
	// Schedule: one of Cron or IntervalMs.
	Cron       string `json:"cron,omitempty" yaml:"cron,omitempty"`
	IntervalMs int    `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`

	// File watch: directory or file to observe, optional glob on base names.
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Message: bus topic to subscribe to.
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty"`
}

// TriggerTaskSpec is the preset task a trigger enqueues when it fires.
type TriggerTaskSpec struct {
	Type           string         `json:"type" yaml:"type"`
	Priority       Priority       `json:"priority" yaml:"priority"`
	InputData      map[string]any `json:"input_data,omitempty" yaml:"input_data,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// BroadcastSpec is the preset broadcast a trigger sends when it fires.
// An empty Coordinator addresses every agent.
type BroadcastSpec struct {
	Coordinator Coordinator `json:"coordinator,omitempty" yaml:"coordinator,omitempty"`
	Message     string      `json:"message" yaml:"message"`
}

// TriggerAction is what happens when the trigger fires. Exactly one of
// CreateTask or Broadcast must be set.
type TriggerAction struct {
	CreateTask *TriggerTaskSpec `json:"create_task,omitempty" yaml:"create_task,omitempty"`
	Broadcast  *BroadcastSpec   `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
}

// Trigger is a standing, cooldown-gated rule that creates a task or
// broadcasts a message when an external condition fires.
type Trigger struct {
	ID           string           `json:"id"`
	Type         TriggerType      `json:"type"`
	Condition    TriggerCondition `json:"condition"`
	Action       TriggerAction    `json:"action"`
	Enabled      bool             `json:"enabled"`
	CooldownSecs int              `json:"cooldown_secs"`
	FireCount    int              `json:"fire_count"`
	LastFired    *time.Time       `json:"last_fired,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Cooldown returns the minimum spacing between two firings.
func (t *Trigger) Cooldown() time.Duration {
	return time.Duration(t.CooldownSecs) * time.Second
}

// Validate rejects misconfigured triggers at registration time.
func (t *Trigger) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	if t.CooldownSecs < 0 {
		return fmt.Errorf("cooldown_secs must be >= 0")
	}

	switch t.Type {
	case TriggerSchedule:
		if t.Condition.Cron == "" && t.Condition.IntervalMs <= 0 {
			return fmt.Errorf("schedule trigger requires cron or interval_ms")
		}
		if t.Condition.Cron != "" && t.Condition.IntervalMs > 0 {
			return fmt.Errorf("schedule trigger takes cron or interval_ms, not both")
		}
	case TriggerFileWatch:
		if t.Condition.Path == "" {
			return fmt.Errorf("file_watch trigger requires a path")
		}
	case TriggerMessage:
		if t.Condition.Topic == "" {
			return fmt.Errorf("message trigger requires a topic")
		}
	}

	if (t.Action.CreateTask == nil) == (t.Action.Broadcast == nil) {
		return fmt.Errorf("trigger action must set exactly one of create_task or broadcast")
	}
	if t.Action.CreateTask != nil {
		if t.Action.CreateTask.Type == "" {
			return fmt.Errorf("create_task action requires a task type")
		}
		if !t.Action.CreateTask.Priority.Valid() {
			return fmt.Errorf("create_task action has invalid priority")
		}
	}
	if t.Action.Broadcast != nil {
		if t.Action.Broadcast.Message == "" {
			return fmt.Errorf("broadcast action requires a message")
		}
		if c := t.Action.Broadcast.Coordinator; c != "" && !c.Valid() {
			return fmt.Errorf("broadcast action has unknown coordinator %q", c)
		}
	}
	return nil
}

// Clone returns a copy safe to hand outside the trigger engine.
func (t *Trigger) Clone() *Trigger {
	c := *t
	if t.LastFired != nil {
		v := *t.LastFired
		c.LastFired = &v
	}
	if t.Action.CreateTask != nil {
		spec := *t.Action.CreateTask
		spec.InputData = cloneMap(t.Action.CreateTask.InputData)
		c.Action.CreateTask = &spec
	}
	if t.Action.Broadcast != nil {
		spec := *t.Action.Broadcast
		c.Action.Broadcast = &spec
	}
	return &c
}
