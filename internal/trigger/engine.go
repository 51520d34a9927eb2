// Package trigger implements the trigger engine: standing, cooldown-gated
// rules that enqueue a task or broadcast a message when a schedule elapses,
// a file changes, or a bus message arrives. The engine never mutates
// scheduler state directly; every firing goes through the Controller.
package trigger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/vega-swarm/vega/internal/bus"
	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// Controller is the slice of the scheduler surface a firing trigger uses.
type Controller interface {
	CreateTask(req swarm.CreateTaskRequest) (*types.Task, error)
	Broadcast(scope string, status types.AgentStatus, message string) (int, error)
	Announce(ev *types.SwarmEvent)
}

// watch ties a file-watch trigger to the directory it registered.
type watch struct {
	triggerID string
	path      string
	pattern   string
}

// Engine owns the trigger table and the three condition sources.
type Engine struct {
	controller Controller
	messages   *bus.Bus
	logger     *slog.Logger

	cron    *cron.Cron
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	triggers   map[string]*types.Trigger
	cronIDs    map[string]cron.EntryID
	msgCancels map[string]func()
	watches    map[string]*watch // trigger ID -> file watch

	now     func() time.Time
	stopped chan struct{}
}

// NewEngine creates a trigger engine. The bus may be nil when message
// triggers are not needed (tests).
func NewEngine(controller Controller, messages *bus.Bus, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Engine{
		controller: controller,
		messages:   messages,
		logger:     logger,
		cron:       cron.New(),
		watcher:    watcher,
		triggers:   make(map[string]*types.Trigger),
		cronIDs:    make(map[string]cron.EntryID),
		msgCancels: make(map[string]func()),
		watches:    make(map[string]*watch),
		now:        time.Now,
		stopped:    make(chan struct{}),
	}, nil
}

// Start launches the schedule runner and the file-watch loop.
func (e *Engine) Start() {
	e.cron.Start()
	go e.watchLoop()
}

// Stop halts all condition sources and cancels message subscriptions.
func (e *Engine) Stop() {
	close(e.stopped)
	e.cron.Stop()
	e.watcher.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.msgCancels {
		cancel()
		delete(e.msgCancels, id)
	}
}

// Register validates the trigger and starts watching its condition.
// Misconfigured triggers are rejected and never activate.
func (e *Engine) Register(t *types.Trigger) (string, error) {
	if err := t.Validate(); err != nil {
		return "", swarm.Errorf(swarm.ErrCodeTriggerMisconfigured, "%v", err)
	}

	t = t.Clone()
	t.ID = uuid.NewString()
	t.FireCount = 0
	t.LastFired = nil
	t.CreatedAt = e.now()

	// The trigger enters the table before its condition source is armed:
	// a schedule or message signal landing during registration must
	// resolve, not hit not_found.
	e.mu.Lock()
	e.triggers[t.ID] = t
	e.mu.Unlock()

	if err := e.arm(t); err != nil {
		e.mu.Lock()
		delete(e.triggers, t.ID)
		e.mu.Unlock()
		return "", err
	}

	e.logger.Info("trigger registered", "trigger", t.ID, "type", t.Type)
	return t.ID, nil
}

// arm starts the trigger's condition source.
func (e *Engine) arm(t *types.Trigger) error {
	switch t.Type {
	case types.TriggerSchedule:
		spec := t.Condition.Cron
		if spec == "" {
			spec = fmt.Sprintf("@every %s", time.Duration(t.Condition.IntervalMs)*time.Millisecond)
		}
		id := t.ID
		entry, err := e.cron.AddFunc(spec, func() { _, _ = e.Fire(id, nil) })
		if err != nil {
			return swarm.Errorf(swarm.ErrCodeTriggerMisconfigured, "bad schedule %q: %v", spec, err)
		}
		e.mu.Lock()
		e.cronIDs[t.ID] = entry
		e.mu.Unlock()

	case types.TriggerFileWatch:
		if t.Condition.Pattern != "" {
			if _, err := filepath.Match(t.Condition.Pattern, "probe"); err != nil {
				return swarm.Errorf(swarm.ErrCodeTriggerMisconfigured, "bad pattern %q: %v", t.Condition.Pattern, err)
			}
		}
		if err := e.addWatch(t.ID, t.Condition.Path, t.Condition.Pattern); err != nil {
			return swarm.Errorf(swarm.ErrCodeTriggerMisconfigured, "cannot watch %q: %v", t.Condition.Path, err)
		}

	case types.TriggerMessage:
		if e.messages == nil {
			return swarm.Errorf(swarm.ErrCodeTriggerMisconfigured, "message bus is not available")
		}
		ch, cancel := e.messages.Subscribe(t.Condition.Topic)
		e.mu.Lock()
		e.msgCancels[t.ID] = cancel
		e.mu.Unlock()
		id := t.ID
		go func() {
			for msg := range ch {
				_, _ = e.Fire(id, map[string]any{"topic": msg.Topic, "text": msg.Text, "data": msg.Data})
			}
		}()
	}
	return nil
}

// addWatch registers a directory with the shared fsnotify watcher, adding
// the underlying watch only when no other trigger already covers the path.
func (e *Engine) addWatch(triggerID, path, pattern string) error {
	e.mu.Lock()
	covered := false
	for _, w := range e.watches {
		if w.path == path {
			covered = true
			break
		}
	}
	e.watches[triggerID] = &watch{triggerID: triggerID, path: path, pattern: pattern}
	e.mu.Unlock()

	if covered {
		return nil
	}
	if err := e.watcher.Add(path); err != nil {
		e.mu.Lock()
		delete(e.watches, triggerID)
		e.mu.Unlock()
		return err
	}
	return nil
}

// watchLoop routes filesystem events to matching file-watch triggers.
func (e *Engine) watchLoop() {
	for {
		select {
		case <-e.stopped:
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			for _, id := range e.matchingWatches(ev.Name) {
				_, _ = e.Fire(id, map[string]any{"path": ev.Name, "op": ev.Op.String()})
			}
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("file watcher error", "error", err)
		}
	}
}

// matchingWatches returns the trigger IDs whose watch covers the changed
// file, honoring each watch's base-name pattern.
func (e *Engine) matchingWatches(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ids []string
	for _, w := range e.watches {
		if name != w.path && !strings.HasPrefix(name, w.path+string(filepath.Separator)) {
			continue
		}
		if w.pattern != "" {
			if ok, _ := filepath.Match(w.pattern, filepath.Base(name)); !ok {
				continue
			}
		}
		ids = append(ids, w.triggerID)
	}
	return ids
}

// Fire delivers a raw condition signal to the trigger. The signal is
// discarded when the trigger is disabled or still cooling down; otherwise
// the firing counters update and the configured action executes. Firing
// never waits on task completion; a create-task action only enqueues.
func (e *Engine) Fire(triggerID string, data map[string]any) (bool, error) {
	e.mu.Lock()
	t, ok := e.triggers[triggerID]
	if !ok {
		e.mu.Unlock()
		return false, swarm.Errorf(swarm.ErrCodeNotFound, "trigger %s not found", triggerID)
	}
	now := e.now()
	if !t.Enabled {
		e.mu.Unlock()
		return false, nil
	}
	if t.LastFired != nil && now.Sub(*t.LastFired) < t.Cooldown() {
		e.mu.Unlock()
		return false, nil
	}
	t.FireCount++
	fired := now
	t.LastFired = &fired
	action := t.Action
	e.mu.Unlock()

	return true, e.execute(triggerID, action, data)
}

// execute runs the trigger's action through the controller.
func (e *Engine) execute(triggerID string, action types.TriggerAction, data map[string]any) error {
	switch {
	case action.CreateTask != nil:
		spec := action.CreateTask
		input := make(map[string]any, len(spec.InputData)+1)
		for k, v := range spec.InputData {
			input[k] = v
		}
		if data != nil {
			input["trigger"] = data
		}
		task, err := e.controller.CreateTask(swarm.CreateTaskRequest{
			Type:           spec.Type,
			Priority:       spec.Priority,
			InputData:      input,
			TimeoutSeconds: spec.TimeoutSeconds,
		})
		if err != nil {
			e.logger.Warn("trigger task creation failed", "trigger", triggerID, "error", err)
			return err
		}
		e.controller.Announce(&types.SwarmEvent{
			Type:      types.EventTriggerFired,
			TriggerID: triggerID,
			TaskID:    task.ID,
			Message:   fmt.Sprintf("trigger %s fired: %s task queued", triggerID, task.Type),
		})
		e.logger.Info("trigger fired", "trigger", triggerID, "task", task.ID)

	case action.Broadcast != nil:
		scope := "all"
		if action.Broadcast.Coordinator != "" {
			scope = string(action.Broadcast.Coordinator)
		}
		delivered, err := e.controller.Broadcast(scope, "", action.Broadcast.Message)
		if err != nil {
			e.logger.Warn("trigger broadcast failed", "trigger", triggerID, "error", err)
			return err
		}
		e.controller.Announce(&types.SwarmEvent{
			Type:      types.EventTriggerFired,
			TriggerID: triggerID,
			Message:   fmt.Sprintf("trigger %s fired: broadcast delivered to %d agents", triggerID, delivered),
		})
		e.logger.Info("trigger fired", "trigger", triggerID, "broadcast_delivered", delivered)
	}
	return nil
}

// SetEnabled flips the trigger's enabled flag.
func (e *Engine) SetEnabled(triggerID string, enabled bool) (*types.Trigger, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[triggerID]
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeNotFound, "trigger %s not found", triggerID)
	}
	t.Enabled = enabled
	return t.Clone(), nil
}

// Get returns a snapshot of one trigger.
func (e *Engine) Get(triggerID string) (*types.Trigger, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[triggerID]
	if !ok {
		return nil, swarm.Errorf(swarm.ErrCodeNotFound, "trigger %s not found", triggerID)
	}
	return t.Clone(), nil
}

// List returns snapshots of all registered triggers.
func (e *Engine) List() []*types.Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*types.Trigger, 0, len(e.triggers))
	for _, t := range e.triggers {
		out = append(out, t.Clone())
	}
	return out
}

// Unregister removes a trigger and tears down its condition source.
func (e *Engine) Unregister(triggerID string) error {
	e.mu.Lock()
	if _, ok := e.triggers[triggerID]; !ok {
		e.mu.Unlock()
		return swarm.Errorf(swarm.ErrCodeNotFound, "trigger %s not found", triggerID)
	}
	delete(e.triggers, triggerID)

	if entry, ok := e.cronIDs[triggerID]; ok {
		delete(e.cronIDs, triggerID)
		e.mu.Unlock()
		e.cron.Remove(entry)
		e.mu.Lock()
	}
	if cancel, ok := e.msgCancels[triggerID]; ok {
		delete(e.msgCancels, triggerID)
		cancel()
	}

	var dropPath string
	if w, ok := e.watches[triggerID]; ok {
		delete(e.watches, triggerID)
		stillUsed := false
		for _, other := range e.watches {
			if other.path == w.path {
				stillUsed = true
				break
			}
		}
		if !stillUsed {
			dropPath = w.path
		}
	}
	e.mu.Unlock()

	if dropPath != "" {
		_ = e.watcher.Remove(dropPath)
	}
	return nil
}
