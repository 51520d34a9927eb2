package swarm

import "github.com/vega-swarm/vega/pkg/types"

// BuiltinRoster returns the default agent roster used when the config file
// does not supply one: three agents per coordinator group, each tagged with
// the task types it handles.
func BuiltinRoster() []types.AgentSpec {
	return []types.AgentSpec{
		// Research group: gathering and making sense of information.
		{
			ID:                  "scout",
			Name:                "Scout",
			Role:                "web researcher",
			Coordinator:         types.CoordinatorResearch,
			Capabilities:        []string{"research", "web_search"},
			MaxConcurrentTasks:  3,
			HeartbeatIntervalMs: 15000,
			TaskTimeoutMs:       300000,
		},
		{
			ID:                  "analyst",
			Name:                "Analyst",
			Role:                "data analyst",
			Coordinator:         types.CoordinatorResearch,
			Capabilities:        []string{"data_analysis", "summarize"},
			MaxConcurrentTasks:  2,
			HeartbeatIntervalMs: 15000,
			TaskTimeoutMs:       600000,
		},
		{
			ID:                  "librarian",
			Name:                "Librarian",
			Role:                "knowledge curator",
			Coordinator:         types.CoordinatorResearch,
			Capabilities:        []string{"research", "summarize"},
			MaxConcurrentTasks:  2,
			HeartbeatIntervalMs: 20000,
			TaskTimeoutMs:       300000,
		},

		// Quality group: reviewing and verifying produced work.
		{
			ID:                  "reviewer",
			Name:                "Reviewer",
			Role:                "code reviewer",
			Coordinator:         types.CoordinatorQuality,
			Capabilities:        []string{"code_review", "static_analysis"},
			MaxConcurrentTasks:  2,
			HeartbeatIntervalMs: 15000,
			TaskTimeoutMs:       300000,
		},
		{
			ID:                  "auditor",
			Name:                "Auditor",
			Role:                "security auditor",
			Coordinator:         types.CoordinatorQuality,
			Capabilities:        []string{"security_audit", "static_analysis"},
			MaxConcurrentTasks:  1,
			HeartbeatIntervalMs: 20000,
			TaskTimeoutMs:       600000,
		},
		{
			ID:                  "verifier",
			Name:                "Verifier",
			Role:                "test verifier",
			Coordinator:         types.CoordinatorQuality,
			Capabilities:        []string{"testing", "code_review"},
			MaxConcurrentTasks:  2,
			HeartbeatIntervalMs: 15000,
			TaskTimeoutMs:       300000,
		},

		// Operations group: building, running, and moving things.
		{
			ID:                  "builder",
			Name:                "Builder",
			Role:                "code generator",
			Coordinator:         types.CoordinatorOperations,
			Capabilities:        []string{"code_generation", "refactoring"},
			MaxConcurrentTasks:  2,
			HeartbeatIntervalMs: 15000,
			TaskTimeoutMs:       900000,
		},
		{
			ID:                  "runner",
			Name:                "Runner",
			Role:                "task executor",
			Coordinator:         types.CoordinatorOperations,
			Capabilities:        []string{"execution", "deployment"},
			MaxConcurrentTasks:  3,
			HeartbeatIntervalMs: 10000,
			TaskTimeoutMs:       300000,
		},
		{
			ID:                  "courier",
			Name:                "Courier",
			Role:                "notification dispatcher",
			Coordinator:         types.CoordinatorOperations,
			Capabilities:        []string{"notification", "reporting"},
			MaxConcurrentTasks:  5,
			HeartbeatIntervalMs: 10000,
			TaskTimeoutMs:       60000,
		},
	}
}
