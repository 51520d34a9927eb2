package types

import (
	"fmt"
	"time"
)

// PipelineTransition routes a completed step to its next state. When every
// key in When equals the corresponding field of the step's output, the run
// moves to Next. A transition with an empty When always matches.
type PipelineTransition struct {
	When map[string]any `json:"when,omitempty" yaml:"when,omitempty"`
	Next string         `json:"next" yaml:"next"`
}

// PipelineState is one node of a workflow definition: the task it submits
// and the transition rules evaluated against that task's output.
type PipelineState struct {
	TaskType string         `json:"task_type" yaml:"task_type"`
	Input    map[string]any `json:"input,omitempty" yaml:"input,omitempty"`

	// Transitions are evaluated in order against the completed task's
	// output; the first match wins. Default names the state to move to
	// when nothing matches; empty means the run completes here.
	Transitions []PipelineTransition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Default     string               `json:"default,omitempty" yaml:"default,omitempty"`

	// OnFailure names the state to move to if the step's task ends in a
	// non-completed terminal status. Empty fails the whole run.
	OnFailure string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// PipelineDefinition is a declarative state machine of steps. Each step is
// a task submission; outputs accumulate in the run context.
type PipelineDefinition struct {
	Name         string                   `json:"name" yaml:"name"`
	InitialState string                   `json:"initial_state" yaml:"initial_state"`
	States       map[string]PipelineState `json:"states" yaml:"states"`
}

// Validate checks the definition is a closed graph: every named transition
// target exists and the initial state is declared.
func (d *PipelineDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(d.States) == 0 {
		return fmt.Errorf("pipeline %s: at least one state is required", d.Name)
	}
	if _, ok := d.States[d.InitialState]; !ok {
		return fmt.Errorf("pipeline %s: initial state %q is not declared", d.Name, d.InitialState)
	}
	for name, st := range d.States {
		if st.TaskType == "" {
			return fmt.Errorf("pipeline %s: state %q has no task type", d.Name, name)
		}
		for _, tr := range st.Transitions {
			if _, ok := d.States[tr.Next]; !ok {
				return fmt.Errorf("pipeline %s: state %q transitions to undeclared state %q", d.Name, name, tr.Next)
			}
		}
		if st.Default != "" {
			if _, ok := d.States[st.Default]; !ok {
				return fmt.Errorf("pipeline %s: state %q defaults to undeclared state %q", d.Name, name, st.Default)
			}
		}
		if st.OnFailure != "" {
			if _, ok := d.States[st.OnFailure]; !ok {
				return fmt.Errorf("pipeline %s: state %q fails over to undeclared state %q", d.Name, name, st.OnFailure)
			}
		}
	}
	return nil
}

// PipelineRunStatus represents the state of a workflow run.
type PipelineRunStatus string

const (
	PipelineRunning   PipelineRunStatus = "running"
	PipelineCompleted PipelineRunStatus = "completed"
	PipelineFailed    PipelineRunStatus = "failed"
)

// PipelineRun is one execution instance of a workflow definition.
type PipelineRun struct {
	ID           string                    `json:"id"`
	Definition   PipelineDefinition        `json:"definition"`
	CurrentState string                    `json:"current_state"`
	Priority     Priority                  `json:"priority"` // applied to every step task
	Context      map[string]map[string]any `json:"context"`  // state name -> step output
	Status       PipelineRunStatus         `json:"status"`
	TaskIDs      []string                  `json:"task_ids"`
	Error        string                    `json:"error,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand outside the pipeline engine.
func (r *PipelineRun) Clone() *PipelineRun {
	c := *r
	c.TaskIDs = append([]string(nil), r.TaskIDs...)
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		c.CompletedAt = &v
	}
	if r.Context != nil {
		ctx := make(map[string]map[string]any, len(r.Context))
		for k, v := range r.Context {
			ctx[k] = cloneMap(v)
		}
		c.Context = ctx
	}
	return &c
}
