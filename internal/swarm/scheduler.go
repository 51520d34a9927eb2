package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vega-swarm/vega/internal/bus"
	"github.com/vega-swarm/vega/pkg/types"
)

// BroadcastTopic is the bus topic every broadcast is published on, in
// addition to the per-coordinator topic ("broadcast.research" etc.).
const BroadcastTopic = "broadcast"

// Archiver receives terminal tasks and swarm events for the history
// archive. Implementations must not block the caller.
type Archiver interface {
	ArchiveTask(t *types.Task)
	AppendEvent(ev *types.SwarmEvent)
}

// Scheduler is the dispatch engine. All queue and registry state is owned
// by a single loop goroutine; operations post closures onto that loop and
// wait for the reply, so a read-then-write inside one operation can never
// race with another. Agent invocations run on their own goroutines and
// post their completions back onto the loop.
type Scheduler struct {
	cfg      types.SwarmConfig
	logger   *slog.Logger
	executor Executor
	messages *bus.Bus
	history  Archiver

	// Loop-owned state. Never touched off the loop goroutine.
	registry  *registry
	queue     *queue
	tasks     map[string]*types.Task
	taskOrder []string
	inflight  map[string]context.CancelFunc
	streaks   map[string]int // consecutive failures per agent

	commands chan func()
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	subsMu      sync.RWMutex
	subscribers map[string]chan *types.SwarmEvent

	// now is the scheduler clock, swappable in tests.
	now func() time.Time
}

// New builds a Scheduler over the given roster. The executor runs the
// agents; the bus carries broadcasts. The executor may be nil at
// construction when it needs the scheduler itself (as Heartbeater); set
// it with SetExecutor before Start.
func New(cfg types.SwarmConfig, roster []types.AgentSpec, executor Executor, messages *bus.Bus, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := newRegistry(roster)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:         cfg,
		logger:      logger,
		executor:    executor,
		messages:    messages,
		registry:    reg,
		queue:       newQueue(),
		tasks:       make(map[string]*types.Task),
		inflight:    make(map[string]context.CancelFunc),
		streaks:     make(map[string]int),
		commands:    make(chan func()),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[string]chan *types.SwarmEvent),
		now:         time.Now,
	}, nil
}

// SetExecutor attaches the agent executor. Must be called before Start
// when New was given a nil executor.
func (s *Scheduler) SetExecutor(e Executor) {
	s.executor = e
}

// SetHistory attaches the archive store. Optional.
func (s *Scheduler) SetHistory(h Archiver) {
	s.history = h
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	if s.executor == nil {
		panic("swarm: Start called without an executor")
	}
	go s.run()
}

// Stop shuts the loop down, cancelling all in-flight work, and waits for
// it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	dispatchEvery := s.cfg.DispatchInterval()
	if dispatchEvery <= 0 {
		dispatchEvery = 500 * time.Millisecond
	}
	monitorEvery := s.cfg.MonitorInterval()
	if monitorEvery <= 0 {
		monitorEvery = time.Second
	}
	dispatch := time.NewTicker(dispatchEvery)
	defer dispatch.Stop()
	monitor := time.NewTicker(monitorEvery)
	defer monitor.Stop()

	s.logger.Info("scheduler started",
		"agents", len(s.registry.order),
		"dispatch_interval", s.cfg.DispatchInterval(),
		"monitor_interval", s.cfg.MonitorInterval(),
	)

	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-dispatch.C:
			s.dispatchCycle()
		case <-monitor.C:
			s.sweep()
		case <-s.stopCh:
			for id, cancel := range s.inflight {
				cancel()
				delete(s.inflight, id)
			}
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// call runs fn on the scheduler loop and waits for its result.
func call[T any](s *Scheduler, fn func() (T, error)) (T, error) {
	reply := make(chan struct{})
	var out T
	var err error
	select {
	case s.commands <- func() { out, err = fn(); close(reply) }:
		<-reply
		return out, err
	case <-s.done:
		var zero T
		return zero, Errorf(ErrCodeShuttingDown, "scheduler is not running")
	}
}

// post runs fn on the scheduler loop without waiting. Used by invocation
// goroutines to hand their results back; results arriving after shutdown
// are dropped.
func (s *Scheduler) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.done:
	}
}

// CreateTaskRequest is the createTask operation payload.
type CreateTaskRequest struct {
	Type           string         `json:"type"`
	Priority       types.Priority `json:"priority"`
	InputData      map[string]any `json:"input_data,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	TargetAgentID  string         `json:"target_agent_id,omitempty"`
}

// CreateTask validates the request, enqueues a new task, and runs a
// dispatch cycle. The task stays queued when no agent is free; a type no
// roster agent advertises at all is rejected.
func (s *Scheduler) CreateTask(req CreateTaskRequest) (*types.Task, error) {
	return call(s, func() (*types.Task, error) {
		if req.Type == "" {
			return nil, Errorf(ErrCodeInvalidRequest, "task type is required")
		}
		if !req.Priority.Valid() {
			return nil, Errorf(ErrCodeInvalidRequest, "priority out of range: %d", req.Priority)
		}
		coordinator, ok := s.registry.coordinatorFor(req.Type)
		if !ok {
			return nil, Errorf(ErrCodeAgentUnavailable, "no agent handles task type %q", req.Type)
		}
		if req.TargetAgentID != "" {
			target, ok := s.registry.get(req.TargetAgentID)
			if !ok {
				return nil, Errorf(ErrCodeNotFound, "target agent %s not found", req.TargetAgentID)
			}
			if !target.HasCapability(req.Type) {
				return nil, Errorf(ErrCodeInvalidRequest, "agent %s does not handle task type %q", target.ID, req.Type)
			}
		}

		// A task without an explicit budget is resolved at dispatch:
		// the assigned agent's configured timeout, then the global
		// default.
		timeout := req.TimeoutSeconds
		if timeout < 0 {
			timeout = 0
		}

		t := &types.Task{
			ID:             uuid.NewString(),
			Type:           req.Type,
			Priority:       req.Priority,
			Status:         types.TaskQueued,
			Coordinator:    coordinator,
			TargetAgentID:  req.TargetAgentID,
			InputData:      req.InputData,
			CreatedAt:      s.now(),
			TimeoutSeconds: timeout,
		}
		s.tasks[t.ID] = t
		s.taskOrder = append(s.taskOrder, t.ID)
		s.queue.push(t)

		s.emit(&types.SwarmEvent{
			Type:    types.EventTaskCreated,
			TaskID:  t.ID,
			Message: fmt.Sprintf("%s task queued (%s)", t.Type, t.Priority),
		})
		s.dispatchCycle()
		return t.Clone(), nil
	})
}

// GetTask returns a snapshot of the task.
func (s *Scheduler) GetTask(taskID string) (*types.Task, error) {
	return call(s, func() (*types.Task, error) {
		t, ok := s.tasks[taskID]
		if !ok {
			return nil, Errorf(ErrCodeNotFound, "task %s not found", taskID)
		}
		return t.Clone(), nil
	})
}

// ListTasks returns snapshots of tasks matching the filter, oldest first.
func (s *Scheduler) ListTasks(filter *types.TaskFilter) ([]*types.Task, error) {
	return call(s, func() ([]*types.Task, error) {
		var out []*types.Task
		for _, id := range s.taskOrder {
			t := s.tasks[id]
			if filter != nil && !filter.Matches(t) {
				continue
			}
			out = append(out, t.Clone())
			if filter != nil && filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return out, nil
	})
}

// CancelTask cancels a queued, assigned, or processing task. It returns
// false without error when the task is already terminal. Cancellation is
// cooperative: an in-flight agent call gets its context cancelled and any
// late result is discarded.
func (s *Scheduler) CancelTask(taskID, reason string) (bool, error) {
	return call(s, func() (bool, error) {
		t, ok := s.tasks[taskID]
		if !ok {
			return false, Errorf(ErrCodeNotFound, "task %s not found", taskID)
		}
		if t.Status.Terminal() {
			return false, nil
		}

		switch t.Status {
		case types.TaskQueued:
			s.queue.remove(taskID)
		case types.TaskAssigned, types.TaskProcessing:
			if cancel, ok := s.inflight[taskID]; ok {
				cancel()
				delete(s.inflight, taskID)
			}
			if a, ok := s.registry.get(t.AssignedAgentID); ok {
				s.registry.release(a, taskID)
			}
		}

		t.CancelReason = reason
		s.finalize(t, types.TaskCancelled)
		s.dispatchCycle()
		return true, nil
	})
}

// GetAgent returns a snapshot of one agent.
func (s *Scheduler) GetAgent(agentID string) (*types.Agent, error) {
	return call(s, func() (*types.Agent, error) {
		a, ok := s.registry.get(agentID)
		if !ok {
			return nil, Errorf(ErrCodeNotFound, "agent %s not found", agentID)
		}
		return a.Clone(), nil
	})
}

// ListAgents returns snapshots of agents matching the filter.
func (s *Scheduler) ListAgents(filter *types.AgentFilter) ([]*types.Agent, error) {
	return call(s, func() ([]*types.Agent, error) {
		return s.registry.list(filter), nil
	})
}

// ControlAgent applies pause/resume/stop/restart to an agent. Illegal
// transitions are rejected with no state change.
func (s *Scheduler) ControlAgent(agentID string, action types.ControlAction) (*types.Agent, error) {
	return call(s, func() (*types.Agent, error) {
		a, ok := s.registry.get(agentID)
		if !ok {
			return nil, Errorf(ErrCodeNotFound, "agent %s not found", agentID)
		}
		if err := s.registry.control(a, action, s.now()); err != nil {
			return nil, err
		}

		s.emit(&types.SwarmEvent{
			Type:    types.EventAgentStatus,
			AgentID: a.ID,
			Message: fmt.Sprintf("agent %s: %s -> %s", a.ID, action, a.Status),
		})
		s.logger.Info("agent control", "agent", a.ID, "action", action, "status", a.Status)

		// Resume and restart free capacity; see if anything can dispatch.
		if action == types.ControlResume || action == types.ControlRestart {
			s.dispatchCycle()
		}
		return a.Clone(), nil
	})
}

// Heartbeat records a liveness signal from an agent.
func (s *Scheduler) Heartbeat(agentID string) error {
	_, err := call(s, func() (struct{}, error) {
		a, ok := s.registry.get(agentID)
		if !ok {
			return struct{}{}, Errorf(ErrCodeNotFound, "agent %s not found", agentID)
		}
		if a.Status == types.AgentTerminated {
			return struct{}{}, Errorf(ErrCodeInvalidRequest, "agent %s is terminated", agentID)
		}
		s.registry.heartbeat(a, s.now())
		return struct{}{}, nil
	})
	return err
}

// Broadcast sends a message to every non-terminated agent in the scope
// ("all" or a coordinator name), optionally narrowed to one agent status,
// and returns the number of agents it reached. The message is also
// published on the bus, where message triggers may pick it up.
func (s *Scheduler) Broadcast(scope string, status types.AgentStatus, message string) (int, error) {
	return call(s, func() (int, error) {
		var coordinator types.Coordinator
		if scope != "" && scope != "all" {
			coordinator = types.Coordinator(scope)
			if !coordinator.Valid() {
				return 0, Errorf(ErrCodeInvalidRequest, "unknown coordinator %q", scope)
			}
		}
		if status != "" && !status.Valid() {
			return 0, Errorf(ErrCodeInvalidRequest, "unknown agent status %q", status)
		}

		delivered := 0
		for _, id := range s.registry.order {
			a := s.registry.agents[id]
			if a.Status == types.AgentTerminated {
				continue
			}
			if coordinator != "" && a.Coordinator != coordinator {
				continue
			}
			if status != "" && a.Status != status {
				continue
			}
			delivered++
		}

		if s.messages != nil {
			msg := types.BusMessage{
				Text:      message,
				Data:      map[string]any{"scope": scope},
				Timestamp: s.now(),
			}
			s.messages.Publish(BroadcastTopic, msg)
			if coordinator != "" {
				s.messages.Publish(BroadcastTopic+"."+string(coordinator), msg)
			}
		}

		s.emit(&types.SwarmEvent{
			Type:    types.EventBroadcast,
			Message: message,
			Payload: map[string]any{"scope": scope, "delivered": delivered},
		})
		return delivered, nil
	})
}

// Metrics returns the scheduler-wide counters.
func (s *Scheduler) Metrics() (types.SwarmMetrics, error) {
	return call(s, func() (types.SwarmMetrics, error) {
		return s.metricsLocked(), nil
	})
}

// Status is the combined swarm snapshot: every agent plus the metrics.
type Status struct {
	Agents  []*types.Agent     `json:"agents"`
	Metrics types.SwarmMetrics `json:"metrics"`
}

// SwarmStatus returns agents and metrics in one consistent snapshot.
func (s *Scheduler) SwarmStatus() (*Status, error) {
	return call(s, func() (*Status, error) {
		return &Status{
			Agents:  s.registry.list(nil),
			Metrics: s.metricsLocked(),
		}, nil
	})
}

// metricsLocked computes metrics on the loop.
func (s *Scheduler) metricsLocked() types.SwarmMetrics {
	m := types.SwarmMetrics{
		TotalAgents: len(s.registry.order),
		TotalTasks:  len(s.tasks),
		QueuedTasks: s.queue.len(),
	}
	for _, id := range s.registry.order {
		if s.registry.agents[id].Status == types.AgentProcessing {
			m.ActiveAgents++
		}
	}
	for _, t := range s.tasks {
		switch t.Status {
		case types.TaskAssigned, types.TaskProcessing:
			m.ActiveTasks++
		case types.TaskCompleted:
			m.CompletedTasks++
		case types.TaskFailed, types.TaskTimedOut:
			m.FailedTasks++
		}
	}
	if oldest, ok := s.queue.oldestCreatedAt(); ok {
		m.OldestQueuedAgeSec = int(s.now().Sub(oldest) / time.Second)
	}
	return m
}

// dispatchCycle matches queued tasks to eligible agents until nothing
// more can be placed. Runs on the loop after every enqueue, completion,
// control change, and on the dispatch timer.
func (s *Scheduler) dispatchCycle() {
	for {
		var agent *types.Agent
		task := s.queue.popMatch(func(t *types.Task) bool {
			agent = s.registry.selectAgent(t)
			return agent != nil
		})
		if task == nil {
			return
		}
		s.assign(task, agent)
	}
}

// assign hands the task to the agent and launches the invocation
// goroutine. The agent sees copies; results come back through the loop.
func (s *Scheduler) assign(t *types.Task, a *types.Agent) {
	now := s.now()
	t.Status = types.TaskAssigned
	t.AssignedAgentID = a.ID
	s.registry.assign(a, t.ID, now)

	if t.TimeoutSeconds <= 0 {
		if d := a.TaskTimeout(); d > 0 {
			t.TimeoutSeconds = int(d / time.Second)
		} else {
			t.TimeoutSeconds = s.cfg.DefaultTaskTimeoutSecs
		}
	}

	t.Status = types.TaskProcessing
	started := now
	t.StartedAt = &started

	ctx, cancel := context.WithCancel(context.Background())
	s.inflight[t.ID] = cancel

	s.emit(&types.SwarmEvent{
		Type:    types.EventTaskDispatched,
		TaskID:  t.ID,
		AgentID: a.ID,
		Message: fmt.Sprintf("task %s dispatched to %s", t.ID, a.ID),
	})
	s.logger.Info("task dispatched", "task", t.ID, "type", t.Type, "agent", a.ID, "load", a.Load())

	agentCopy := a.Clone()
	taskCopy := t.Clone()
	go func() {
		res, err := s.executor.ProcessTask(ctx, agentCopy, taskCopy)
		s.post(func() { s.complete(taskCopy.ID, agentCopy.ID, res, err) })
	}()
}

// complete handles an agent result on the loop. Results for tasks that
// were cancelled or timed out in the meantime are discarded: the inflight
// entry is the ownership token, and the reaper that removed it already
// settled the bookkeeping.
func (s *Scheduler) complete(taskID, agentID string, res *Result, err error) {
	cancel, owned := s.inflight[taskID]
	if !owned {
		s.logger.Debug("discarding late result", "task", taskID, "agent", agentID)
		return
	}
	delete(s.inflight, taskID)
	cancel()

	t := s.tasks[taskID]
	a, ok := s.registry.get(agentID)
	if !ok || t == nil {
		return
	}
	s.registry.release(a, taskID)
	s.registry.heartbeat(a, s.now())

	success := err == nil && res != nil && res.Success
	if success {
		a.TasksCompleted++
		s.streaks[agentID] = 0
		t.OutputData = res.Output
		s.finalize(t, types.TaskCompleted)
	} else {
		msg := "agent returned failure"
		if err != nil {
			msg = err.Error()
		} else if res != nil && res.Error != "" {
			msg = res.Error
		}
		a.TasksFailed++
		a.LastError = msg
		s.streaks[agentID]++
		t.ErrorMessage = msg
		s.finalize(t, types.TaskFailed)
		s.escalateIfStreaky(a)
	}

	s.dispatchCycle()
}

// finalize moves a task into a terminal state, emits the matching event,
// and hands the record to the archive.
func (s *Scheduler) finalize(t *types.Task, status types.TaskStatus) {
	t.Status = status
	completed := s.now()
	t.CompletedAt = &completed

	eventType := map[types.TaskStatus]types.EventType{
		types.TaskCompleted: types.EventTaskCompleted,
		types.TaskFailed:    types.EventTaskFailed,
		types.TaskCancelled: types.EventTaskCancelled,
		types.TaskTimedOut:  types.EventTaskTimedOut,
	}[status]

	var payload map[string]any
	switch status {
	case types.TaskFailed:
		payload = map[string]any{"code": string(ErrCodeAgentExecution)}
	case types.TaskTimedOut:
		payload = map[string]any{"code": string(ErrCodeTaskTimeout)}
	}

	s.emit(&types.SwarmEvent{
		Type:    eventType,
		TaskID:  t.ID,
		AgentID: t.AssignedAgentID,
		Message: fmt.Sprintf("task %s %s", t.ID, status),
		Payload: payload,
	})
	s.logger.Info("task finished", "task", t.ID, "status", status, "agent", t.AssignedAgentID)

	if s.history != nil {
		s.history.ArchiveTask(t.Clone())
	}
}

// escalateIfStreaky moves an agent to error after too many consecutive
// failures or timeouts.
func (s *Scheduler) escalateIfStreaky(a *types.Agent) {
	if s.cfg.FailureEscalationStreak <= 0 {
		return
	}
	if s.streaks[a.ID] < s.cfg.FailureEscalationStreak {
		return
	}
	s.registry.markError(a, fmt.Sprintf("%d consecutive failures", s.streaks[a.ID]))
	s.emit(&types.SwarmEvent{
		Type:    types.EventAgentStatus,
		AgentID: a.ID,
		Message: fmt.Sprintf("agent %s escalated to error after %d consecutive failures", a.ID, s.streaks[a.ID]),
	})
	s.logger.Warn("agent escalated to error", "agent", a.ID, "streak", s.streaks[a.ID])
}

// Subscribe registers a named consumer of the live event stream. The
// channel is buffered; slow consumers lose events rather than stalling
// the scheduler.
func (s *Scheduler) Subscribe(name string) <-chan *types.SwarmEvent {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	ch := make(chan *types.SwarmEvent, 64)
	s.subscribers[name] = ch
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (s *Scheduler) Unsubscribe(name string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subscribers[name]; ok {
		delete(s.subscribers, name)
		close(ch)
	}
}

// Announce publishes an event from outside the scheduler onto the shared
// stream. Used by the pipeline engine for step and completion events.
func (s *Scheduler) Announce(ev *types.SwarmEvent) {
	s.post(func() { s.emit(ev) })
}

// emit stamps and fans out an event, and appends it to the archive.
func (s *Scheduler) emit(ev *types.SwarmEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now()

	if s.history != nil {
		s.history.AppendEvent(ev)
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
