// Package echo provides a deterministic in-process execution backend for
// development and tests. It echoes the task input back as output, after an
// optional simulated delay, and reports heartbeats while working.
package echo

import (
	"context"
	"fmt"
	"time"

	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/pkg/types"
)

// Executor is a stand-in agent backend. Task inputs steer its behavior:
//
//	delay_ms: number, simulated work duration (cancellable)
//	fail:     bool, report a failure instead of success
type Executor struct {
	heartbeats swarm.Heartbeater
}

// New creates an echo Executor. The heartbeater may be nil.
func New(heartbeats swarm.Heartbeater) *Executor {
	return &Executor{heartbeats: heartbeats}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return "echo"
}

// ProcessTask simulates agent work and echoes the input back.
func (e *Executor) ProcessTask(ctx context.Context, agent *types.Agent, task *types.Task) (*swarm.Result, error) {
	delay := time.Duration(numberField(task.InputData, "delay_ms")) * time.Millisecond
	if delay > 0 {
		if err := e.work(ctx, agent.ID, delay); err != nil {
			return nil, err
		}
	}

	if fail, _ := task.InputData["fail"].(bool); fail {
		return &swarm.Result{
			Success: false,
			Error:   fmt.Sprintf("simulated failure for task %s", task.ID),
		}, nil
	}

	output := map[string]any{
		"echo":   task.InputData,
		"agent":  agent.ID,
		"type":   task.Type,
		"status": "ok",
	}
	return &swarm.Result{Success: true, Output: output}, nil
}

// work sleeps in heartbeat-sized slices so liveness keeps flowing and
// cancellation is observed promptly.
func (e *Executor) work(ctx context.Context, agentID string, delay time.Duration) error {
	slice := 100 * time.Millisecond
	deadline := time.Now().Add(delay)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slice):
			if e.heartbeats != nil {
				_ = e.heartbeats.Heartbeat(agentID)
			}
		}
	}
}

// numberField reads a numeric input field, tolerating the types JSON
// decoding produces.
func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
