package swarm

import (
	"fmt"
	"time"

	"github.com/vega-swarm/vega/pkg/types"
)

// Sweep runs one heartbeat/timeout monitor pass on the scheduler loop and
// waits for it. The loop also runs the pass on its monitor timer; an extra
// call is harmless because the pass only acts on state that is stale.
func (s *Scheduler) Sweep() error {
	_, err := call(s, func() (struct{}, error) {
		s.sweep()
		return struct{}{}, nil
	})
	return err
}

// sweep is the monitor pass: flag agents whose heartbeat went stale, and
// reap tasks that outran their timeout budget. Idempotent; a pass over a
// healthy swarm mutates nothing.
func (s *Scheduler) sweep() {
	now := s.now()
	s.sweepHeartbeats(now)
	if s.sweepTimeouts(now) {
		s.dispatchCycle()
	}
}

// sweepHeartbeats marks agents that stopped reporting liveness. Tasks the
// agent still holds are not auto-failed here; the timeout reaper collects
// them when their own budget runs out.
func (s *Scheduler) sweepHeartbeats(now time.Time) {
	factor := s.cfg.MissedHeartbeatFactor
	if factor <= 0 {
		factor = 3
	}

	for _, id := range s.registry.order {
		a := s.registry.agents[id]
		switch a.Status {
		case types.AgentError, types.AgentTerminated:
			continue
		}
		if a.LastHeartbeat == nil {
			// Never reported; the agent has not gone live yet.
			continue
		}
		deadline := a.HeartbeatInterval() * time.Duration(factor)
		if now.Sub(*a.LastHeartbeat) <= deadline {
			continue
		}

		s.registry.markError(a, "missed heartbeat deadline")
		s.emit(&types.SwarmEvent{
			Type:    types.EventAgentStatus,
			AgentID: a.ID,
			Message: fmt.Sprintf("agent %s marked error: no heartbeat for %s", a.ID, now.Sub(*a.LastHeartbeat).Truncate(time.Millisecond)),
			Payload: map[string]any{
				"code":          string(ErrCodeHeartbeatTimeout),
				"held_task_ids": append([]string(nil), a.CurrentTaskIDs...),
			},
		})
		s.logger.Warn("heartbeat timeout", "agent", a.ID, "held_tasks", len(a.CurrentTaskIDs))
	}
}

// sweepTimeouts reaps processing tasks that exceeded their timeout:
// the task moves to timed_out, the agent slot is freed and the failure
// counted, and the in-flight call gets a best-effort cancellation signal.
// Returns true when any slot was freed.
func (s *Scheduler) sweepTimeouts(now time.Time) bool {
	freed := false
	for taskID, cancel := range s.inflight {
		t, ok := s.tasks[taskID]
		if !ok || t.Status != types.TaskProcessing || t.StartedAt == nil {
			continue
		}
		budget := time.Duration(t.TimeoutSeconds) * time.Second
		if now.Sub(*t.StartedAt) <= budget {
			continue
		}

		cancel()
		delete(s.inflight, taskID)
		freed = true

		a, ok := s.registry.get(t.AssignedAgentID)
		if ok {
			s.registry.release(a, taskID)
			a.TasksFailed++
			a.LastError = fmt.Sprintf("task %s timed out", taskID)
			s.streaks[a.ID]++
		}

		t.ErrorMessage = fmt.Sprintf("timed out after %ds", t.TimeoutSeconds)
		s.finalize(t, types.TaskTimedOut)
		s.logger.Warn("task timed out", "task", taskID, "agent", t.AssignedAgentID, "budget_secs", t.TimeoutSeconds)

		if ok {
			s.escalateIfStreaky(a)
		}
	}
	return freed
}
