// Package pipeline runs declarative multi-step workflows. Each state of a
// definition submits one task to the swarm; the task's output selects the
// next state. Runs are tracked in memory only.
package pipeline

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// maxSteps bounds a single run so a cyclic definition cannot spin forever.
const maxSteps = 64

// pollInterval backstops the event stream; a run re-polls its task at this
// cadence in case a terminal event was dropped by a full buffer.
const pollInterval = 500 * time.Millisecond

// Runner is the slice of the scheduler surface a pipeline run uses.
type Runner interface {
	CreateTask(req swarm.CreateTaskRequest) (*types.Task, error)
	GetTask(taskID string) (*types.Task, error)
	Subscribe(name string) <-chan *types.SwarmEvent
	Unsubscribe(name string)
	Announce(ev *types.SwarmEvent)
}

// Engine tracks pipeline runs and drives each one on its own goroutine.
type Engine struct {
	runner Runner
	logger *slog.Logger

	mu        sync.Mutex
	runs      map[string]*types.PipelineRun
	templates map[string]*types.PipelineDefinition

	now func() time.Time
}

// NewEngine creates a pipeline engine preloaded with the builtin templates.
func NewEngine(runner Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		runner:    runner,
		logger:    logger,
		runs:      make(map[string]*types.PipelineRun),
		templates: make(map[string]*types.PipelineDefinition),
		now:       time.Now,
	}
	for _, def := range BuiltinTemplates() {
		e.templates[def.Name] = def
	}
	return e
}

// Templates returns the names of the registered pipeline templates.
func (e *Engine) Templates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run validates the definition, records a new run, and starts executing it.
// Every step task is submitted at the given priority. The returned snapshot
// is taken before the first step runs.
func (e *Engine) Run(def *types.PipelineDefinition, input map[string]any, priority types.Priority) (*types.PipelineRun, error) {
	if err := def.Validate(); err != nil {
		return nil, swarm.Errorf(swarm.ErrCodeInvalidRequest, "%v", err)
	}

	run := &types.PipelineRun{
		ID:           uuid.NewString(),
		Definition:   *def,
		CurrentState: def.InitialState,
		Priority:     priority,
		Context:      make(map[string]map[string]any),
		Status:       types.PipelineRunning,
		CreatedAt:    e.now(),
	}
	if input != nil {
		run.Context["input"] = input
	}

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	e.logger.Info("pipeline run started", "run", run.ID, "pipeline", def.Name)
	go e.execute(run.ID)
	return run.Clone(), nil
}

// RunTemplate starts a run of a registered template by name.
func (e *Engine) RunTemplate(name string, input map[string]any, priority types.Priority) (*types.PipelineRun, error) {
	e.mu.Lock()
	def, ok := e.templates[name]
	e.mu.Unlock()
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeNotFound, "pipeline template %q not found", name)
	}
	return e.Run(def, input, priority)
}

// Get returns a snapshot of one run.
func (e *Engine) Get(runID string) (*types.PipelineRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeNotFound, "pipeline run %s not found", runID)
	}
	return run.Clone(), nil
}

// List returns snapshots of all runs, newest first.
func (e *Engine) List() []*types.PipelineRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*types.PipelineRun, 0, len(e.runs))
	for _, run := range e.runs {
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// execute walks the state machine until a state has no successor, a step
// fails without an on_failure branch, or the step bound is hit.
func (e *Engine) execute(runID string) {
	e.mu.Lock()
	run, ok := e.runs[runID]
	if !ok {
		e.mu.Unlock()
		return
	}
	def := &run.Definition
	state := run.CurrentState
	e.mu.Unlock()

	for step := 0; step < maxSteps; step++ {
		task, err := e.runStep(runID, def, state)
		if err != nil {
			e.finish(runID, types.PipelineFailed, fmt.Sprintf("state %s: %v", state, err))
			return
		}

		e.mu.Lock()
		run.Context[state] = task.OutputData
		e.mu.Unlock()

		var next string
		switch task.Status {
		case types.TaskCompleted:
			next = nextState(def.States[state], task.OutputData)
		default:
			next = def.States[state].OnFailure
			if next == "" {
				reason := task.ErrorMessage
				if reason == "" {
					reason = string(task.Status)
				}
				e.finish(runID, types.PipelineFailed, fmt.Sprintf("state %s: task %s", state, reason))
				return
			}
		}

		if next == "" {
			e.finish(runID, types.PipelineCompleted, "")
			return
		}

		state = next
		e.mu.Lock()
		run.CurrentState = state
		e.mu.Unlock()
		e.runner.Announce(&types.SwarmEvent{
			Type:    types.EventPipelineStep,
			RunID:   runID,
			Message: fmt.Sprintf("pipeline advanced to state %s", state),
		})
	}

	e.finish(runID, types.PipelineFailed, fmt.Sprintf("exceeded %d steps", maxSteps))
}

// runStep submits the state's task and blocks until it reaches a terminal
// status. Subscription happens before submission so a fast completion
// cannot slip between the two.
func (e *Engine) runStep(runID string, def *types.PipelineDefinition, state string) (*types.Task, error) {
	st := def.States[state]

	input := make(map[string]any, len(st.Input)+2)
	for k, v := range st.Input {
		input[k] = v
	}
	priority := types.PriorityNormal
	e.mu.Lock()
	if run, ok := e.runs[runID]; ok {
		priority = run.Priority
		if len(run.Context) > 0 {
			ctx := make(map[string]any, len(run.Context))
			for name, out := range run.Context {
				ctx[name] = out
			}
			input["pipeline_context"] = ctx
		}
	}
	e.mu.Unlock()
	input["pipeline_run_id"] = runID

	subName := "pipeline-" + runID
	events := e.runner.Subscribe(subName)
	defer e.runner.Unsubscribe(subName)

	task, err := e.runner.CreateTask(swarm.CreateTaskRequest{
		Type:      st.TaskType,
		Priority:  priority,
		InputData: input,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if run, ok := e.runs[runID]; ok {
		run.TaskIDs = append(run.TaskIDs, task.ID)
	}
	e.mu.Unlock()

	return e.await(task.ID, events)
}

// await blocks until the task is terminal, preferring the event stream and
// falling back to polling.
func (e *Engine) await(taskID string, events <-chan *types.SwarmEvent) (*types.Task, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return e.fetchTerminal(taskID)
			}
			if ev.TaskID != taskID {
				continue
			}
			switch ev.Type {
			case types.EventTaskCompleted, types.EventTaskFailed,
				types.EventTaskCancelled, types.EventTaskTimedOut:
				return e.fetchTerminal(taskID)
			}
		case <-ticker.C:
			t, err := e.runner.GetTask(taskID)
			if err != nil {
				return nil, err
			}
			if t.Status.Terminal() {
				return t, nil
			}
		}
	}
}

func (e *Engine) fetchTerminal(taskID string) (*types.Task, error) {
	return e.runner.GetTask(taskID)
}

// finish stamps the run terminal and announces it.
func (e *Engine) finish(runID string, status types.PipelineRunStatus, errMsg string) {
	e.mu.Lock()
	run, ok := e.runs[runID]
	if ok {
		run.Status = status
		run.Error = errMsg
		done := e.now()
		run.CompletedAt = &done
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	msg := fmt.Sprintf("pipeline run %s %s", runID, status)
	if errMsg != "" {
		msg += ": " + errMsg
	}
	e.runner.Announce(&types.SwarmEvent{
		Type:    types.EventPipelineDone,
		RunID:   runID,
		Message: msg,
	})
	e.logger.Info("pipeline run finished", "run", runID, "status", status, "error", errMsg)
}

// nextState evaluates the state's transitions against the step output in
// declaration order, then falls back to the default successor.
func nextState(st types.PipelineState, output map[string]any) string {
	for _, tr := range st.Transitions {
		if matches(tr.When, output) {
			return tr.Next
		}
	}
	return st.Default
}

// matches reports whether every expected key appears in the output with an
// equal value. An empty When always matches. Numbers are compared by their
// printed form since JSON round-trips blur int and float.
func matches(when, output map[string]any) bool {
	for k, want := range when {
		got, ok := output[k]
		if !ok {
			return false
		}
		if reflect.DeepEqual(want, got) {
			continue
		}
		if fmt.Sprintf("%v", want) != fmt.Sprintf("%v", got) {
			return false
		}
	}
	return true
}
