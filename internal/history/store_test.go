package history

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vega-swarm/vega/internal/crypto"
	"github.com/vega-swarm/vega/pkg/types"
)

func newTestStore(t *testing.T, payloads *crypto.PayloadService) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s := NewStore(path, payloads, nil)
	require.NoError(t, s.Initialize())
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newTestPayloads(t *testing.T) *crypto.PayloadService {
	t.Helper()
	km := crypto.NewKeyManager(filepath.Join(t.TempDir(), "identity.age"))
	require.NoError(t, km.Initialize())
	return crypto.NewPayloadService(km)
}

func terminalTask(id string, status types.TaskStatus) *types.Task {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	done := now.Add(5 * time.Second)
	return &types.Task{
		ID:              id,
		Type:            "web_search",
		Priority:        types.PriorityNormal,
		Status:          status,
		Coordinator:     types.CoordinatorResearch,
		AssignedAgentID: "scout",
		InputData:       map[string]any{"query": "spring tides"},
		OutputData:      map[string]any{"hits": 3},
		CreatedAt:       now,
		StartedAt:       &now,
		CompletedAt:     &done,
	}
}

func waitTaskRows(t *testing.T, s *Store, status string, want int) []*ArchivedTask {
	t.Helper()
	var rows []*ArchivedTask
	require.Eventually(t, func() bool {
		var err error
		rows, err = s.ListTasks(status, 0)
		return err == nil && len(rows) == want
	}, 3*time.Second, 10*time.Millisecond, "archive never reached %d rows", want)
	return rows
}

func TestArchiveTaskAndEvents(t *testing.T) {
	s, _ := newTestStore(t, nil)

	s.ArchiveTask(terminalTask("task-1", types.TaskCompleted))
	s.AppendEvent(&types.SwarmEvent{
		ID:        "ev-1",
		Type:      types.EventTaskCompleted,
		TaskID:    "task-1",
		AgentID:   "scout",
		Message:   "task task-1 completed",
		Timestamp: time.Now().UTC(),
	})
	s.AppendEvent(&types.SwarmEvent{
		ID:        "ev-2",
		Type:      types.EventAgentStatus,
		AgentID:   "scout",
		Timestamp: time.Now().UTC(),
	})

	rows := waitTaskRows(t, s, "", 1)
	got := rows[0]
	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, "web_search", got.Type)
	assert.Equal(t, int(types.PriorityNormal), got.Priority)
	assert.Equal(t, string(types.TaskCompleted), got.Status)
	assert.Equal(t, "scout", got.AgentID)
	assert.NotEmpty(t, got.CompletedAt)

	require.Eventually(t, func() bool {
		evs, err := s.ListEvents("", 0)
		return err == nil && len(evs) == 2
	}, 3*time.Second, 10*time.Millisecond)

	scoped, err := s.ListEvents("task-1", 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "ev-1", scoped[0].ID)
	assert.Equal(t, string(types.EventTaskCompleted), scoped[0].Type)
}

func TestListTasksStatusFilter(t *testing.T) {
	s, _ := newTestStore(t, nil)

	s.ArchiveTask(terminalTask("task-1", types.TaskCompleted))
	s.ArchiveTask(terminalTask("task-2", types.TaskFailed))
	s.ArchiveTask(terminalTask("task-3", types.TaskCompleted))

	waitTaskRows(t, s, "", 3)

	failed, err := s.ListTasks(string(types.TaskFailed), 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "task-2", failed[0].ID)

	completed, err := s.ListTasks(string(types.TaskCompleted), 0)
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestArchiveReplacesOnSameID(t *testing.T) {
	s, _ := newTestStore(t, nil)

	s.ArchiveTask(terminalTask("task-1", types.TaskProcessing))
	s.ArchiveTask(terminalTask("task-1", types.TaskCompleted))

	rows := waitTaskRows(t, s, string(types.TaskCompleted), 1)
	assert.Equal(t, "task-1", rows[0].ID)
}

func TestInputEncryptedAtRest(t *testing.T) {
	payloads := newTestPayloads(t)
	s, path := newTestStore(t, payloads)

	s.ArchiveTask(terminalTask("task-1", types.TaskCompleted))
	waitTaskRows(t, s, "", 1)

	stored := readInputColumn(t, path, "task-1")
	assert.NotContains(t, stored, "spring tides")

	var payload types.EncryptedPayload
	require.NoError(t, json.Unmarshal([]byte(stored), &payload))
	input, err := payloads.DecryptInput(&payload)
	require.NoError(t, err)
	assert.Equal(t, "spring tides", input["query"])
}

func TestInputClearTextWithoutPayloadService(t *testing.T) {
	s, path := newTestStore(t, nil)

	s.ArchiveTask(terminalTask("task-1", types.TaskCompleted))
	waitTaskRows(t, s, "", 1)

	stored := readInputColumn(t, path, "task-1")
	assert.Contains(t, stored, "spring tides")
}

func readInputColumn(t *testing.T, path, taskID string) string {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var stored string
	require.NoError(t, db.QueryRow(
		"SELECT input_encrypted FROM swarm_tasks WHERE id = ?", taskID).Scan(&stored))
	return stored
}

func TestCloseFlushesPendingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := NewStore(path, nil, nil)
	require.NoError(t, s.Initialize())

	for i := 0; i < 10; i++ {
		s.ArchiveTask(terminalTask(string(rune('a'+i)), types.TaskCompleted))
	}
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM swarm_tasks").Scan(&count))
	assert.Equal(t, 10, count)
}

func TestCloseBeforeInitialize(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "history.db"), nil, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
