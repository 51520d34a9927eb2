package swarm

import (
	"context"

	"github.com/vega-swarm/vega/pkg/types"
)

// Result is what an agent returns from ProcessTask.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Executor is the execution backend behind the agents. The scheduler
// treats an agent as an opaque capability-tagged worker: it hands over a
// task copy and waits for a result on a separate goroutine.
//
// The context is cancelled on task cancellation and on timeout; honoring
// it is cooperative. A result arriving after the task reached a terminal
// state is discarded.
type Executor interface {
	// Name returns the executor name for logging.
	Name() string

	// ProcessTask runs the task on behalf of the given agent.
	ProcessTask(ctx context.Context, agent *types.Agent, task *types.Task) (*Result, error)
}

// Heartbeater is implemented by the scheduler and handed to executors that
// report liveness while working.
type Heartbeater interface {
	Heartbeat(agentID string) error
}
