package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s should be terminal", s)
	}

	live := []TaskStatus{TaskQueued, TaskAssigned, TaskProcessing}
	for _, s := range live {
		assert.False(t, s.Terminal(), "status %s should not be terminal", s)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"emergency", PriorityEmergency, false},
		{"high", PriorityHigh, false},
		{"normal", PriorityNormal, false},
		{"background", PriorityBackground, false},
		{"", PriorityNormal, false},
		{"  HIGH  ", PriorityHigh, false},
		{"urgent", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestPriorityJSON(t *testing.T) {
	// Marshals as the ordinal wire form.
	data, err := json.Marshal(PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	// Accepts the ordinal form.
	var p Priority
	require.NoError(t, json.Unmarshal([]byte("3"), &p))
	assert.Equal(t, PriorityBackground, p)

	// Accepts the symbolic form.
	require.NoError(t, json.Unmarshal([]byte(`"emergency"`), &p))
	assert.Equal(t, PriorityEmergency, p)

	// Rejects out-of-range ordinals and unknown names.
	assert.Error(t, json.Unmarshal([]byte("7"), &p))
	assert.Error(t, json.Unmarshal([]byte(`"urgent"`), &p))
	assert.Error(t, json.Unmarshal([]byte("true"), &p))
}

func TestTaskClone(t *testing.T) {
	started := time.Now()
	orig := &Task{
		ID:        "t1",
		Status:    TaskProcessing,
		InputData: map[string]any{"k": "v"},
		StartedAt: &started,
	}

	c := orig.Clone()
	c.InputData["k"] = "changed"
	*c.StartedAt = started.Add(time.Hour)

	assert.Equal(t, "v", orig.InputData["k"])
	assert.Equal(t, started, *orig.StartedAt)
}

func TestTaskFilterMatches(t *testing.T) {
	task := &Task{Type: "web_search", Status: TaskQueued, Coordinator: CoordinatorResearch}

	assert.True(t, (&TaskFilter{}).Matches(task))
	assert.True(t, (&TaskFilter{Status: []TaskStatus{TaskQueued, TaskProcessing}}).Matches(task))
	assert.False(t, (&TaskFilter{Status: []TaskStatus{TaskCompleted}}).Matches(task))
	assert.True(t, (&TaskFilter{Type: "web_search"}).Matches(task))
	assert.False(t, (&TaskFilter{Type: "summarize"}).Matches(task))
	assert.False(t, (&TaskFilter{Coordinator: CoordinatorQuality}).Matches(task))
}
