// Package history archives terminal tasks and swarm events to SQLite.
// The archive is write-behind and append-only: the scheduler never reads
// it back, and queued work does not survive a restart.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vega-swarm/vega/internal/crypto"
	"github.com/vega-swarm/vega/pkg/types"
)

// recordBuffer bounds the write-behind queue. Records past the bound are
// dropped rather than stalling the scheduler loop.
const recordBuffer = 256

// record is one pending archive write.
type record struct {
	task  *types.Task
	event *types.SwarmEvent
}

// Store is the SQLite-backed archive. It satisfies swarm.Archiver.
type Store struct {
	path     string
	db       *sql.DB
	payloads *crypto.PayloadService
	logger   *slog.Logger

	mu      sync.Mutex
	pending chan record
	done    chan struct{}
	flushed chan struct{}
	started bool
	closed  bool
}

// NewStore creates a store for the given database file. Payloads may be
// nil, in which case task inputs are archived in the clear.
func NewStore(path string, payloads *crypto.PayloadService, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:     path,
		payloads: payloads,
		logger:   logger,
		pending:  make(chan record, recordBuffer),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
	}
}

// Initialize opens the database, creates the schema, and starts the
// write-behind worker.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping archive database: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.drain()
	return nil
}

// initSchema creates the archive tables and their indexes.
func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS swarm_tasks (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			coordinator TEXT,
			agent_id TEXT,
			input_encrypted TEXT,
			output_json TEXT,
			error_message TEXT,
			cancel_reason TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create swarm_tasks table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS swarm_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			task_id TEXT,
			agent_id TEXT,
			trigger_id TEXT,
			run_id TEXT,
			message TEXT,
			payload_json TEXT,
			timestamp TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create swarm_events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_tasks_status ON swarm_tasks(status)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_type ON swarm_tasks(type)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_agent ON swarm_tasks(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_task ON swarm_events(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_timestamp ON swarm_events(timestamp)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// ArchiveTask queues a terminal task for archiving. Never blocks.
func (s *Store) ArchiveTask(t *types.Task) {
	select {
	case s.pending <- record{task: t}:
	default:
		s.logger.Warn("archive queue full, dropping task record", "task", t.ID)
	}
}

// AppendEvent queues an event for archiving. Never blocks.
func (s *Store) AppendEvent(ev *types.SwarmEvent) {
	select {
	case s.pending <- record{event: ev}:
	default:
		s.logger.Warn("archive queue full, dropping event record", "event", ev.ID)
	}
}

// drain writes queued records until Close.
func (s *Store) drain() {
	defer close(s.flushed)
	for {
		select {
		case rec := <-s.pending:
			s.write(rec)
		case <-s.done:
			// Flush whatever is still buffered.
			for {
				select {
				case rec := <-s.pending:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(rec record) {
	var err error
	switch {
	case rec.task != nil:
		err = s.insertTask(rec.task)
	case rec.event != nil:
		err = s.insertEvent(rec.event)
	}
	if err != nil {
		s.logger.Warn("archive write failed", "error", err)
	}
}

func (s *Store) insertTask(t *types.Task) error {
	inputJSON, err := s.encodeInput(t.InputData)
	if err != nil {
		return fmt.Errorf("failed to encode task input: %w", err)
	}

	var outputJSON string
	if len(t.OutputData) > 0 {
		data, err := json.Marshal(t.OutputData)
		if err != nil {
			return fmt.Errorf("failed to encode task output: %w", err)
		}
		outputJSON = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO swarm_tasks
		(id, type, priority, status, coordinator, agent_id, input_encrypted,
		 output_json, error_message, cancel_reason, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Type, int(t.Priority), string(t.Status), string(t.Coordinator),
		t.AssignedAgentID, inputJSON, outputJSON, t.ErrorMessage, t.CancelReason,
		t.CreatedAt.Format(time.RFC3339), nullableTime(t.StartedAt), nullableTime(t.CompletedAt))
	return err
}

// encodeInput serializes task input, encrypting it when a payload service
// is configured. Inputs can carry prompts and credentials; ciphertext at
// rest keeps the archive safe to copy around.
func (s *Store) encodeInput(input map[string]any) (string, error) {
	if len(input) == 0 {
		return "", nil
	}
	if s.payloads == nil {
		data, err := json.Marshal(input)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	payload, err := s.payloads.EncryptInput(input)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) insertEvent(ev *types.SwarmEvent) error {
	var payloadJSON string
	if len(ev.Payload) > 0 {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO swarm_events
		(id, event_type, task_id, agent_id, trigger_id, run_id, message, payload_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, string(ev.Type), ev.TaskID, ev.AgentID, ev.TriggerID, ev.RunID,
		ev.Message, payloadJSON, ev.Timestamp.Format(time.RFC3339))
	return err
}

// ArchivedTask is one row of the task archive as served over the API.
type ArchivedTask struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Priority     int    `json:"priority"`
	Status       string `json:"status"`
	Coordinator  string `json:"coordinator,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// ListTasks returns the most recent archived tasks, optionally filtered
// by status.
func (s *Store) ListTasks(status string, limit int) ([]*ArchivedTask, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, type, priority, status, coordinator, agent_id,
		       error_message, cancel_reason, created_at, completed_at
		FROM swarm_tasks`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived tasks: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedTask
	for rows.Next() {
		var t ArchivedTask
		var completed sql.NullString
		if err := rows.Scan(&t.ID, &t.Type, &t.Priority, &t.Status, &t.Coordinator,
			&t.AgentID, &t.ErrorMessage, &t.CancelReason, &t.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan archived task: %w", err)
		}
		if completed.Valid {
			t.CompletedAt = completed.String
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ArchivedEvent is one row of the event archive as served over the API.
type ArchivedEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	TaskID    string `json:"task_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ListEvents returns the most recent archived events, optionally scoped to
// one task.
func (s *Store) ListEvents(taskID string, limit int) ([]*ArchivedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, event_type, task_id, agent_id, message, timestamp
		FROM swarm_events`
	args := []any{}
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived events: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedEvent
	for rows.Next() {
		var ev ArchivedEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.TaskID, &ev.AgentID, &ev.Message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan archived event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Close stops the worker, flushes pending records, and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.done)
	if started {
		<-s.flushed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
		s.db = nil
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
