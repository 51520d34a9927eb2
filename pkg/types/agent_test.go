package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlAction(t *testing.T) {
	tests := []struct {
		in      string
		want    ControlAction
		wantErr bool
	}{
		{"pause", ControlPause, false},
		{"resume", ControlResume, false},
		{"start", ControlResume, false}, // wire alias
		{"stop", ControlStop, false},
		{"restart", ControlRestart, false},
		{"RESTART", ControlRestart, false},
		{"kill", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseControlAction(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestAgentSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    AgentSpec
		wantErr string
	}{
		{
			name: "valid",
			spec: AgentSpec{ID: "scout", Coordinator: CoordinatorResearch, Capabilities: []string{"web_search"}, MaxConcurrentTasks: 2},
		},
		{
			name:    "missing id",
			spec:    AgentSpec{Coordinator: CoordinatorResearch, Capabilities: []string{"x"}, MaxConcurrentTasks: 1},
			wantErr: "id is required",
		},
		{
			name:    "bad coordinator",
			spec:    AgentSpec{ID: "a", Coordinator: "ops", Capabilities: []string{"x"}, MaxConcurrentTasks: 1},
			wantErr: "unknown coordinator",
		},
		{
			name:    "no capabilities",
			spec:    AgentSpec{ID: "a", Coordinator: CoordinatorQuality, MaxConcurrentTasks: 1},
			wantErr: "capability",
		},
		{
			name:    "zero concurrency",
			spec:    AgentSpec{ID: "a", Coordinator: CoordinatorQuality, Capabilities: []string{"x"}},
			wantErr: "max_concurrent_tasks",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAgentFilterMatches(t *testing.T) {
	a := &Agent{
		AgentSpec: AgentSpec{ID: "scout", Coordinator: CoordinatorResearch},
		Status:    AgentIdle,
	}

	assert.True(t, (&AgentFilter{}).Matches(a))
	assert.True(t, (&AgentFilter{Coordinator: CoordinatorResearch}).Matches(a))
	assert.False(t, (&AgentFilter{Coordinator: CoordinatorOperations}).Matches(a))
	assert.True(t, (&AgentFilter{Status: AgentIdle}).Matches(a))
	assert.False(t, (&AgentFilter{Status: AgentPaused}).Matches(a))
}
