package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     PipelineDefinition
		wantErr string
	}{
		{
			name: "valid linear pipeline",
			def: PipelineDefinition{
				Name:         "brief",
				InitialState: "gather",
				States: map[string]PipelineState{
					"gather":    {TaskType: "web_search", Default: "summarize"},
					"summarize": {TaskType: "summarize"},
				},
			},
		},
		{
			name:    "missing name",
			def:     PipelineDefinition{InitialState: "a", States: map[string]PipelineState{"a": {TaskType: "x"}}},
			wantErr: "name is required",
		},
		{
			name:    "no states",
			def:     PipelineDefinition{Name: "p", InitialState: "a"},
			wantErr: "at least one state",
		},
		{
			name: "undeclared initial state",
			def: PipelineDefinition{
				Name:         "p",
				InitialState: "missing",
				States:       map[string]PipelineState{"a": {TaskType: "x"}},
			},
			wantErr: "initial state",
		},
		{
			name: "state without task type",
			def: PipelineDefinition{
				Name:         "p",
				InitialState: "a",
				States:       map[string]PipelineState{"a": {}},
			},
			wantErr: "no task type",
		},
		{
			name: "transition to undeclared state",
			def: PipelineDefinition{
				Name:         "p",
				InitialState: "a",
				States: map[string]PipelineState{
					"a": {TaskType: "x", Transitions: []PipelineTransition{{Next: "ghost"}}},
				},
			},
			wantErr: "undeclared state",
		},
		{
			name: "default to undeclared state",
			def: PipelineDefinition{
				Name:         "p",
				InitialState: "a",
				States:       map[string]PipelineState{"a": {TaskType: "x", Default: "ghost"}},
			},
			wantErr: "undeclared state",
		},
		{
			name: "on_failure to undeclared state",
			def: PipelineDefinition{
				Name:         "p",
				InitialState: "a",
				States:       map[string]PipelineState{"a": {TaskType: "x", OnFailure: "ghost"}},
			},
			wantErr: "undeclared state",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPipelineRunClone(t *testing.T) {
	run := &PipelineRun{
		ID:      "r1",
		TaskIDs: []string{"t1"},
		Context: map[string]map[string]any{"gather": {"hits": 3}},
	}

	c := run.Clone()
	c.TaskIDs = append(c.TaskIDs, "t2")
	c.Context["gather"]["hits"] = 9

	assert.Len(t, run.TaskIDs, 1)
	assert.Equal(t, 3, run.Context["gather"]["hits"])
}
