package swarm

import (
	"fmt"
	"time"

	"github.com/vega-swarm/vega/pkg/types"
)

// registry holds the fixed agent roster and its runtime state. It is owned
// by the scheduler loop: all access is serialized there, so no lock is
// needed and no reference to an internal *types.Agent ever leaves the loop
// without being cloned.
type registry struct {
	agents map[string]*types.Agent
	order  []string // roster order, for deterministic iteration
}

func newRegistry(specs []types.AgentSpec) (*registry, error) {
	r := &registry{agents: make(map[string]*types.Agent, len(specs))}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid roster entry: %w", err)
		}
		if _, dup := r.agents[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q in roster", spec.ID)
		}
		r.agents[spec.ID] = &types.Agent{
			AgentSpec: spec,
			Status:    types.AgentIdle,
		}
		r.order = append(r.order, spec.ID)
	}
	if len(r.order) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	return r, nil
}

func (r *registry) get(id string) (*types.Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// list returns cloned agents matching the filter, in roster order.
func (r *registry) list(filter *types.AgentFilter) []*types.Agent {
	out := make([]*types.Agent, 0, len(r.order))
	for _, id := range r.order {
		a := r.agents[id]
		if filter == nil || filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// coordinatorFor derives the coordinator for a task type from the roster:
// the group of the first agent advertising that capability. Task types are
// expected to live inside a single coordinator.
func (r *registry) coordinatorFor(taskType string) (types.Coordinator, bool) {
	for _, id := range r.order {
		if r.agents[id].HasCapability(taskType) {
			return r.agents[id].Coordinator, true
		}
	}
	return "", false
}

// assignable reports whether the agent can take the task right now:
// idle or processing with a spare slot, same coordinator, matching
// capability, and matching the task's target pin if one is set.
func (r *registry) assignable(a *types.Agent, t *types.Task) bool {
	if a.Status != types.AgentIdle && a.Status != types.AgentProcessing {
		return false
	}
	if a.Load() >= a.MaxConcurrentTasks {
		return false
	}
	if a.Coordinator != t.Coordinator {
		return false
	}
	if !a.HasCapability(t.Type) {
		return false
	}
	if t.TargetAgentID != "" && a.ID != t.TargetAgentID {
		return false
	}
	return true
}

// selectAgent picks the best agent for the task: lowest current load,
// tie-broken by fewest cumulative failures, then roster order.
func (r *registry) selectAgent(t *types.Task) *types.Agent {
	var best *types.Agent
	for _, id := range r.order {
		a := r.agents[id]
		if !r.assignable(a, t) {
			continue
		}
		if best == nil ||
			a.Load() < best.Load() ||
			(a.Load() == best.Load() && a.TasksFailed < best.TasksFailed) {
			best = a
		}
	}
	return best
}

// assign consumes one concurrency slot on the agent.
func (r *registry) assign(a *types.Agent, taskID string, now time.Time) {
	a.CurrentTaskIDs = append(a.CurrentTaskIDs, taskID)
	a.Status = types.AgentProcessing
	hb := now
	a.LastHeartbeat = &hb
}

// release frees the slot held for taskID. Counters are the caller's
// business: cancellations free slots without charging the agent. A paused
// agent keeps its paused status; a processing agent returns to idle once
// its last slot is freed.
func (r *registry) release(a *types.Agent, taskID string) {
	for i, id := range a.CurrentTaskIDs {
		if id == taskID {
			a.CurrentTaskIDs = append(a.CurrentTaskIDs[:i], a.CurrentTaskIDs[i+1:]...)
			break
		}
	}
	if a.Status == types.AgentProcessing && a.Load() == 0 {
		a.Status = types.AgentIdle
	}
}

// markError moves the agent into the error state, recording the cause.
// Tasks it currently holds are left for the monitor to reap.
func (r *registry) markError(a *types.Agent, reason string) {
	if a.Status == types.AgentTerminated {
		return
	}
	a.Status = types.AgentError
	a.LastError = reason
}

// heartbeat records a liveness signal. Liveness alone never clears the
// error state; an explicit restart does.
func (r *registry) heartbeat(a *types.Agent, now time.Time) {
	hb := now
	a.LastHeartbeat = &hb
}

// control applies an explicit lifecycle action, enforcing the agent state
// machine. Illegal transitions are rejected with no state change.
//
//	pause:   idle | processing -> paused
//	resume:  paused -> idle (or processing when slots are still held)
//	restart: error -> idle
//	stop:    any non-terminated -> terminated (absorbing)
func (r *registry) control(a *types.Agent, action types.ControlAction, now time.Time) error {
	if a.Status == types.AgentTerminated {
		return Errorf(ErrCodeInvalidRequest, "agent %s is terminated", a.ID)
	}

	switch action {
	case types.ControlPause:
		if a.Status != types.AgentIdle && a.Status != types.AgentProcessing {
			return Errorf(ErrCodeInvalidRequest, "cannot pause agent %s from status %s", a.ID, a.Status)
		}
		a.Status = types.AgentPaused

	case types.ControlResume:
		if a.Status != types.AgentPaused {
			return Errorf(ErrCodeInvalidRequest, "cannot resume agent %s from status %s", a.ID, a.Status)
		}
		if a.Load() > 0 {
			a.Status = types.AgentProcessing
		} else {
			a.Status = types.AgentIdle
		}
		r.heartbeat(a, now)

	case types.ControlRestart:
		if a.Status != types.AgentError {
			return Errorf(ErrCodeInvalidRequest, "cannot restart agent %s from status %s", a.ID, a.Status)
		}
		if a.Load() > 0 {
			a.Status = types.AgentProcessing
		} else {
			a.Status = types.AgentIdle
		}
		a.LastError = ""
		r.heartbeat(a, now)

	case types.ControlStop:
		a.Status = types.AgentTerminated

	default:
		return Errorf(ErrCodeInvalidRequest, "unknown control action %q", action)
	}
	return nil
}
