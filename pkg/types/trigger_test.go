package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTriggerAction() TriggerAction {
	return TriggerAction{
		CreateTask: &TriggerTaskSpec{Type: "web_search", Priority: PriorityNormal},
	}
}

func TestTriggerValidate(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr string
	}{
		{
			name: "valid cron schedule",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{Cron: "*/5 * * * *"},
				Action:    validTriggerAction(),
			},
		},
		{
			name: "valid interval schedule",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{IntervalMs: 1500},
				Action:    validTriggerAction(),
			},
		},
		{
			name: "schedule with neither cron nor interval",
			trigger: Trigger{
				Type:   TriggerSchedule,
				Action: validTriggerAction(),
			},
			wantErr: "cron or interval_ms",
		},
		{
			name: "schedule with both cron and interval",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{Cron: "* * * * *", IntervalMs: 1000},
				Action:    validTriggerAction(),
			},
			wantErr: "not both",
		},
		{
			name: "file watch without path",
			trigger: Trigger{
				Type:   TriggerFileWatch,
				Action: validTriggerAction(),
			},
			wantErr: "requires a path",
		},
		{
			name: "message without topic",
			trigger: Trigger{
				Type:   TriggerMessage,
				Action: validTriggerAction(),
			},
			wantErr: "requires a topic",
		},
		{
			name: "unknown type",
			trigger: Trigger{
				Type:   "webhook",
				Action: validTriggerAction(),
			},
			wantErr: "unknown trigger type",
		},
		{
			name: "negative cooldown",
			trigger: Trigger{
				Type:         TriggerSchedule,
				Condition:    TriggerCondition{IntervalMs: 1000},
				Action:       validTriggerAction(),
				CooldownSecs: -1,
			},
			wantErr: "cooldown_secs",
		},
		{
			name: "no action",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{IntervalMs: 1000},
			},
			wantErr: "exactly one",
		},
		{
			name: "both actions",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{IntervalMs: 1000},
				Action: TriggerAction{
					CreateTask: &TriggerTaskSpec{Type: "x", Priority: PriorityNormal},
					Broadcast:  &BroadcastSpec{Message: "hi"},
				},
			},
			wantErr: "exactly one",
		},
		{
			name: "create task without type",
			trigger: Trigger{
				Type:      TriggerSchedule,
				Condition: TriggerCondition{IntervalMs: 1000},
				Action:    TriggerAction{CreateTask: &TriggerTaskSpec{Priority: PriorityNormal}},
			},
			wantErr: "task type",
		},
		{
			name: "broadcast without message",
			trigger: Trigger{
				Type:      TriggerMessage,
				Condition: TriggerCondition{Topic: "alerts"},
				Action:    TriggerAction{Broadcast: &BroadcastSpec{}},
			},
			wantErr: "requires a message",
		},
		{
			name: "broadcast with unknown coordinator",
			trigger: Trigger{
				Type:      TriggerMessage,
				Condition: TriggerCondition{Topic: "alerts"},
				Action:    TriggerAction{Broadcast: &BroadcastSpec{Coordinator: "ops", Message: "hi"}},
			},
			wantErr: "unknown coordinator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTriggerCloneIsolatesAction(t *testing.T) {
	orig := &Trigger{
		Type:      TriggerSchedule,
		Condition: TriggerCondition{IntervalMs: 1000},
		Action: TriggerAction{
			CreateTask: &TriggerTaskSpec{
				Type:      "web_search",
				Priority:  PriorityNormal,
				InputData: map[string]any{"query": "original"},
			},
		},
	}

	c := orig.Clone()
	c.Action.CreateTask.InputData["query"] = "mutated"

	assert.Equal(t, "original", orig.Action.CreateTask.InputData["query"])
}
