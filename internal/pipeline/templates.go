package pipeline

import "github.com/vega-swarm/vega/pkg/types"

// BuiltinTemplates returns the pipeline definitions shipped with the
// daemon. Each task type maps to a capability of the builtin roster.
func BuiltinTemplates() []*types.PipelineDefinition {
	return []*types.PipelineDefinition{
		{
			Name:         "research-brief",
			InitialState: "gather",
			States: map[string]types.PipelineState{
				"gather": {
					TaskType: "web_search",
					Default:  "summarize",
				},
				"summarize": {
					TaskType: "summarize",
					Default:  "report",
				},
				"report": {
					TaskType: "reporting",
				},
			},
		},
		{
			Name:         "code-change",
			InitialState: "generate",
			States: map[string]types.PipelineState{
				"generate": {
					TaskType: "code_generation",
					Default:  "review",
				},
				"review": {
					TaskType: "code_review",
					Transitions: []types.PipelineTransition{
						{When: map[string]any{"verdict": "approved"}, Next: "test"},
					},
					// Anything short of approval loops back for rework.
					Default: "generate",
				},
				"test": {
					TaskType:  "testing",
					Default:   "notify",
					OnFailure: "generate",
				},
				"notify": {
					TaskType: "notification",
				},
			},
		},
		{
			Name:         "security-sweep",
			InitialState: "scan",
			States: map[string]types.PipelineState{
				"scan": {
					TaskType: "static_analysis",
					Default:  "audit",
				},
				"audit": {
					TaskType:  "security_audit",
					Default:   "report",
					OnFailure: "alert",
				},
				"report": {
					TaskType: "reporting",
				},
				"alert": {
					TaskType: "notification",
				},
			},
		},
	}
}
