package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// outcome scripts what the fake scheduler returns for a task type.
type outcome struct {
	status types.TaskStatus
	output map[string]any
	errMsg string
}

// fakeRunner settles every submitted task immediately according to the
// scripted outcomes and feeds terminal events to subscribers.
type fakeRunner struct {
	mu        sync.Mutex
	outcomes  map[string]outcome
	tasks     map[string]*types.Task
	requests  []swarm.CreateTaskRequest
	subs      map[string]chan *types.SwarmEvent
	announced []*types.SwarmEvent
	seq       int
}

func newFakeRunner(outcomes map[string]outcome) *fakeRunner {
	return &fakeRunner{
		outcomes: outcomes,
		tasks:    make(map[string]*types.Task),
		subs:     make(map[string]chan *types.SwarmEvent),
	}
}

func (f *fakeRunner) CreateTask(req swarm.CreateTaskRequest) (*types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.requests = append(f.requests, req)

	out, ok := f.outcomes[req.Type]
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeAgentUnavailable, "no agent handles task type %q", req.Type)
	}

	task := &types.Task{
		ID:           fmt.Sprintf("task-%d", f.seq),
		Type:         req.Type,
		Status:       out.status,
		InputData:    req.InputData,
		OutputData:   out.output,
		ErrorMessage: out.errMsg,
	}
	f.tasks[task.ID] = task

	eventType := types.EventTaskCompleted
	if out.status != types.TaskCompleted {
		eventType = types.EventTaskFailed
	}
	for _, ch := range f.subs {
		select {
		case ch <- &types.SwarmEvent{Type: eventType, TaskID: task.ID}:
		default:
		}
	}
	return task.Clone(), nil
}

func (f *fakeRunner) GetTask(taskID string) (*types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeNotFound, "task %s not found", taskID)
	}
	return t.Clone(), nil
}

func (f *fakeRunner) Subscribe(name string) <-chan *types.SwarmEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *types.SwarmEvent, 64)
	f.subs[name] = ch
	return ch
}

func (f *fakeRunner) Unsubscribe(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[name]; ok {
		delete(f.subs, name)
		close(ch)
	}
}

func (f *fakeRunner) Announce(ev *types.SwarmEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, ev)
}

func (f *fakeRunner) requestAt(i int) swarm.CreateTaskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func waitRunStatus(t *testing.T, e *Engine, runID string, want types.PipelineRunStatus) *types.PipelineRun {
	t.Helper()
	var got *types.PipelineRun
	require.Eventually(t, func() bool {
		run, err := e.Get(runID)
		if err != nil {
			return false
		}
		got = run
		return run.Status == want
	}, 3*time.Second, 5*time.Millisecond, "run %s never reached %s", runID, want)
	return got
}

func linearDefinition() *types.PipelineDefinition {
	return &types.PipelineDefinition{
		Name:         "brief",
		InitialState: "gather",
		States: map[string]types.PipelineState{
			"gather":    {TaskType: "web_search", Input: map[string]any{"query": "tides"}, Default: "summarize"},
			"summarize": {TaskType: "summarize", Default: "report"},
			"report":    {TaskType: "reporting"},
		},
	}
}

func TestLinearPipelineRunsToCompletion(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"web_search": {status: types.TaskCompleted, output: map[string]any{"hits": 3}},
		"summarize":  {status: types.TaskCompleted, output: map[string]any{"summary": "short"}},
		"reporting":  {status: types.TaskCompleted, output: map[string]any{"sent": true}},
	})
	e := NewEngine(runner, nil)

	run, err := e.Run(linearDefinition(), map[string]any{"audience": "ops"}, types.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, types.PipelineRunning, run.Status)
	assert.Equal(t, "gather", run.CurrentState)

	done := waitRunStatus(t, e, run.ID, types.PipelineCompleted)
	assert.Len(t, done.TaskIDs, 3)
	assert.Empty(t, done.Error)
	assert.NotNil(t, done.CompletedAt)

	// Each step's output lands in the run context.
	assert.Equal(t, map[string]any{"hits": 3}, done.Context["gather"])
	assert.Equal(t, map[string]any{"summary": "short"}, done.Context["summarize"])
	assert.Equal(t, map[string]any{"audience": "ops"}, done.Context["input"])

	// The second step sees the first step's output and carries the run's
	// priority.
	second := runner.requestAt(1)
	assert.Equal(t, types.PriorityHigh, second.Priority)
	ctx, ok := second.InputData["pipeline_context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"hits": 3}, ctx["gather"])
	assert.Equal(t, run.ID, second.InputData["pipeline_run_id"])

	// Step and completion events were announced.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	var steps, dones int
	for _, ev := range runner.announced {
		switch ev.Type {
		case types.EventPipelineStep:
			steps++
		case types.EventPipelineDone:
			dones++
		}
	}
	assert.Equal(t, 2, steps)
	assert.Equal(t, 1, dones)
}

func TestTransitionsSelectNextState(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"code_review":  {status: types.TaskCompleted, output: map[string]any{"verdict": "approved"}},
		"testing":      {status: types.TaskCompleted, output: map[string]any{}},
		"notification": {status: types.TaskCompleted, output: map[string]any{}},
	})
	e := NewEngine(runner, nil)

	def := &types.PipelineDefinition{
		Name:         "gate",
		InitialState: "review",
		States: map[string]types.PipelineState{
			"review": {
				TaskType: "code_review",
				Transitions: []types.PipelineTransition{
					{When: map[string]any{"verdict": "approved"}, Next: "test"},
				},
				Default: "reject",
			},
			"test":   {TaskType: "testing"},
			"reject": {TaskType: "notification"},
		},
	}

	run, err := e.Run(def, nil, types.PriorityNormal)
	require.NoError(t, err)
	done := waitRunStatus(t, e, run.ID, types.PipelineCompleted)

	// The matching transition beat the default.
	require.Len(t, done.TaskIDs, 2)
	assert.Equal(t, "testing", runner.requestAt(1).Type)
}

func TestFailureWithoutBranchFailsRun(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"web_search": {status: types.TaskFailed, errMsg: "upstream 503"},
	})
	e := NewEngine(runner, nil)

	run, err := e.Run(&types.PipelineDefinition{
		Name:         "doomed",
		InitialState: "gather",
		States:       map[string]types.PipelineState{"gather": {TaskType: "web_search"}},
	}, nil, types.PriorityNormal)
	require.NoError(t, err)

	done := waitRunStatus(t, e, run.ID, types.PipelineFailed)
	assert.Contains(t, done.Error, "upstream 503")
}

func TestOnFailureBranchRuns(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"security_audit": {status: types.TaskFailed, errMsg: "finding"},
		"notification":   {status: types.TaskCompleted, output: map[string]any{"alerted": true}},
	})
	e := NewEngine(runner, nil)

	run, err := e.Run(&types.PipelineDefinition{
		Name:         "sweep",
		InitialState: "audit",
		States: map[string]types.PipelineState{
			"audit": {TaskType: "security_audit", OnFailure: "alert"},
			"alert": {TaskType: "notification"},
		},
	}, nil, types.PriorityNormal)
	require.NoError(t, err)

	done := waitRunStatus(t, e, run.ID, types.PipelineCompleted)
	assert.Len(t, done.TaskIDs, 2)
	assert.Equal(t, map[string]any{"alerted": true}, done.Context["alert"])
}

func TestCyclicDefinitionHitsStepBound(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"ping": {status: types.TaskCompleted, output: map[string]any{}},
		"pong": {status: types.TaskCompleted, output: map[string]any{}},
	})
	e := NewEngine(runner, nil)

	run, err := e.Run(&types.PipelineDefinition{
		Name:         "loop",
		InitialState: "a",
		States: map[string]types.PipelineState{
			"a": {TaskType: "ping", Default: "b"},
			"b": {TaskType: "pong", Default: "a"},
		},
	}, nil, types.PriorityNormal)
	require.NoError(t, err)

	done := waitRunStatus(t, e, run.ID, types.PipelineFailed)
	assert.Contains(t, done.Error, "exceeded")
}

func TestRunValidatesDefinition(t *testing.T) {
	e := NewEngine(newFakeRunner(nil), nil)

	_, err := e.Run(&types.PipelineDefinition{Name: "bad", InitialState: "ghost"}, nil, types.PriorityNormal)
	assert.Equal(t, swarm.ErrCodeInvalidRequest, swarm.CodeOf(err))
}

func TestRunTemplate(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"web_search": {status: types.TaskCompleted, output: map[string]any{}},
		"summarize":  {status: types.TaskCompleted, output: map[string]any{}},
		"reporting":  {status: types.TaskCompleted, output: map[string]any{}},
	})
	e := NewEngine(runner, nil)

	assert.Contains(t, e.Templates(), "research-brief")

	run, err := e.RunTemplate("research-brief", nil, types.PriorityBackground)
	require.NoError(t, err)
	waitRunStatus(t, e, run.ID, types.PipelineCompleted)

	_, err = e.RunTemplate("nope", nil, types.PriorityNormal)
	assert.Equal(t, swarm.ErrCodeNotFound, swarm.CodeOf(err))
}

func TestGetAndList(t *testing.T) {
	runner := newFakeRunner(map[string]outcome{
		"web_search": {status: types.TaskCompleted, output: map[string]any{}},
	})
	e := NewEngine(runner, nil)

	_, err := e.Get("missing")
	assert.Equal(t, swarm.ErrCodeNotFound, swarm.CodeOf(err))

	def := &types.PipelineDefinition{
		Name:         "single",
		InitialState: "gather",
		States:       map[string]types.PipelineState{"gather": {TaskType: "web_search"}},
	}
	run1, err := e.Run(def, nil, types.PriorityNormal)
	require.NoError(t, err)
	run2, err := e.Run(def, nil, types.PriorityNormal)
	require.NoError(t, err)

	waitRunStatus(t, e, run1.ID, types.PipelineCompleted)
	waitRunStatus(t, e, run2.ID, types.PipelineCompleted)

	runs := e.List()
	assert.Len(t, runs, 2)
}
