package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// Store is the SQLite implementation of motivation.Transactor. A single
// process owns the database file; WAL mode keeps readers from blocking the
// engine's write transactions.
type Store struct {
	db *sql.DB
	queries
}

// Open opens or creates the motivation database at path and applies the
// schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// The engine is the single writer; one connection sidesteps SQLITE_BUSY
	// between the pool's connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	s.queries = queries{q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS motivational_states (
		id TEXT PRIMARY KEY,
		motivation_type TEXT NOT NULL,
		urgency REAL NOT NULL DEFAULT 0.0,
		satisfaction REAL NOT NULL DEFAULT 0.5,
		decay_rate REAL NOT NULL DEFAULT 0.01,
		boost_factor REAL NOT NULL DEFAULT 1.0,
		max_urgency REAL NOT NULL DEFAULT 1.0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		total_attempts INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0.0,
		last_triggered_at DATETIME,
		last_satisfied_at DATETIME,
		trigger_condition TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- One active row per motivation type; deactivated history rows remain.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_states_active_type
		ON motivational_states(motivation_type) WHERE is_active = 1;
	CREATE INDEX IF NOT EXISTS idx_states_urgency ON motivational_states(urgency);

	CREATE TABLE IF NOT EXISTS motivational_tasks (
		id TEXT PRIMARY KEY,
		motivational_state_id TEXT NOT NULL,
		generated_prompt TEXT NOT NULL,
		task_priority REAL NOT NULL DEFAULT 0.5,
		arbitration_score REAL NOT NULL DEFAULT 0.0,
		status TEXT NOT NULL DEFAULT 'generated',
		work_item_id TEXT,
		spawned_at DATETIME,
		started_at DATETIME,
		completed_at DATETIME,
		success BOOLEAN,
		outcome_score REAL,
		satisfaction_gain REAL,
		context TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (motivational_state_id) REFERENCES motivational_states(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON motivational_tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_state_status ON motivational_tasks(motivational_state_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_work_item ON motivational_tasks(work_item_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON motivational_tasks(completed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InTransaction runs fn against a transaction-scoped Storage. The transaction
// commits only if fn returns nil; any error rolls back every write fn made.
func (s *Store) InTransaction(ctx context.Context, fn func(motivation.Storage) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries implements motivation.Storage over either the bare connection or a
// transaction.
type queries struct {
	q querier
}

const stateColumns = `id, motivation_type, urgency, satisfaction, decay_rate, boost_factor,
	max_urgency, is_active, success_count, failure_count, total_attempts, success_rate,
	last_triggered_at, last_satisfied_at, trigger_condition, metadata, created_at, updated_at`

func (s queries) InsertState(ctx context.Context, state *models.MotivationState) error {
	trigger, err := marshalMap(state.TriggerCondition)
	if err != nil {
		return fmt.Errorf("insert state %s: %w", state.MotivationType, err)
	}
	metadata, err := marshalMap(state.Metadata)
	if err != nil {
		return fmt.Errorf("insert state %s: %w", state.MotivationType, err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO motivational_states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID, state.MotivationType, state.Urgency, state.Satisfaction,
		state.DecayRate, state.BoostFactor, state.MaxUrgency, state.IsActive,
		state.SuccessCount, state.FailureCount, state.TotalAttempts, state.SuccessRate,
		nullTime(state.LastTriggeredAt), nullTime(state.LastSatisfiedAt),
		trigger, metadata, state.CreatedAt, state.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert state %s: %w", state.MotivationType, motivation.ErrDuplicateState)
	}
	if err != nil {
		return fmt.Errorf("insert state %s: %w", state.MotivationType, err)
	}
	return nil
}

func (s queries) UpdateState(ctx context.Context, state *models.MotivationState) error {
	trigger, err := marshalMap(state.TriggerCondition)
	if err != nil {
		return fmt.Errorf("update state %s: %w", state.ID, err)
	}
	metadata, err := marshalMap(state.Metadata)
	if err != nil {
		return fmt.Errorf("update state %s: %w", state.ID, err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE motivational_states SET
			motivation_type = ?, urgency = ?, satisfaction = ?, decay_rate = ?,
			boost_factor = ?, max_urgency = ?, is_active = ?, success_count = ?,
			failure_count = ?, total_attempts = ?, success_rate = ?,
			last_triggered_at = ?, last_satisfied_at = ?, trigger_condition = ?,
			metadata = ?, updated_at = ?
		WHERE id = ?`,
		state.MotivationType, state.Urgency, state.Satisfaction, state.DecayRate,
		state.BoostFactor, state.MaxUrgency, state.IsActive, state.SuccessCount,
		state.FailureCount, state.TotalAttempts, state.SuccessRate,
		nullTime(state.LastTriggeredAt), nullTime(state.LastSatisfiedAt),
		trigger, metadata, state.UpdatedAt, state.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("update state %s: %w", state.ID, motivation.ErrDuplicateState)
	}
	if err != nil {
		return fmt.Errorf("update state %s: %w", state.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update state %s: %w", state.ID, motivation.ErrNotFound)
	}
	return nil
}

func (s queries) StateByID(ctx context.Context, id string) (*models.MotivationState, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM motivational_states WHERE id = ?`, id)
	return scanState(row)
}

func (s queries) StateByType(ctx context.Context, motivationType string) (*models.MotivationState, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM motivational_states
		WHERE motivation_type = ? AND is_active = 1`, motivationType)
	return scanState(row)
}

func (s queries) InactiveStateByType(ctx context.Context, motivationType string) (*models.MotivationState, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM motivational_states
		WHERE motivation_type = ? AND is_active = 0
		ORDER BY updated_at DESC LIMIT 1`, motivationType)
	return scanState(row)
}

func (s queries) ActiveStates(ctx context.Context) ([]*models.MotivationState, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM motivational_states
		WHERE is_active = 1 ORDER BY urgency DESC`)
	if err != nil {
		return nil, fmt.Errorf("query active states: %w", err)
	}
	defer rows.Close()

	var states []*models.MotivationState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

const taskColumns = `id, motivational_state_id, generated_prompt, task_priority,
	arbitration_score, status, work_item_id, spawned_at, started_at, completed_at,
	success, outcome_score, satisfaction_gain, context, created_at, updated_at`

func (s queries) InsertTask(ctx context.Context, task *models.MotivationalTask) error {
	taskCtx, err := marshalMap(task.Context)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO motivational_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.MotivationalStateID, task.GeneratedPrompt, task.TaskPriority,
		task.ArbitrationScore, string(task.Status), nullString(task.WorkItemID),
		nullTime(task.SpawnedAt), nullTime(task.StartedAt), nullTime(task.CompletedAt),
		nullBool(task.Success), nullFloat(task.OutcomeScore), nullFloat(task.SatisfactionGain),
		taskCtx, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

func (s queries) UpdateTask(ctx context.Context, task *models.MotivationalTask) error {
	taskCtx, err := marshalMap(task.Context)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE motivational_tasks SET
			generated_prompt = ?, task_priority = ?, arbitration_score = ?, status = ?,
			work_item_id = ?, spawned_at = ?, started_at = ?, completed_at = ?,
			success = ?, outcome_score = ?, satisfaction_gain = ?, context = ?,
			updated_at = ?
		WHERE id = ?`,
		task.GeneratedPrompt, task.TaskPriority, task.ArbitrationScore, string(task.Status),
		nullString(task.WorkItemID), nullTime(task.SpawnedAt), nullTime(task.StartedAt),
		nullTime(task.CompletedAt), nullBool(task.Success), nullFloat(task.OutcomeScore),
		nullFloat(task.SatisfactionGain), taskCtx, task.UpdatedAt, task.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, motivation.ErrNotFound)
	}
	return nil
}

func (s queries) TaskByID(ctx context.Context, id string) (*models.MotivationalTask, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM motivational_tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s queries) TaskByWorkItem(ctx context.Context, workItemID string) (*models.MotivationalTask, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM motivational_tasks
		WHERE work_item_id = ? ORDER BY created_at DESC LIMIT 1`, workItemID)
	return scanTask(row)
}

func (s queries) HasInFlightTask(ctx context.Context, stateID string) (bool, error) {
	query, args := inFlightQuery(`SELECT COUNT(*) FROM motivational_tasks WHERE motivational_state_id = ? AND status IN (%s)`)
	var count int
	err := s.q.QueryRowContext(ctx, query, append([]interface{}{stateID}, args...)...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count in-flight tasks for state %s: %w", stateID, err)
	}
	return count > 0, nil
}

func (s queries) CountInFlightTasks(ctx context.Context) (int, error) {
	query, args := inFlightQuery(`SELECT COUNT(*) FROM motivational_tasks WHERE status IN (%s)`)
	var count int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count in-flight tasks: %w", err)
	}
	return count, nil
}

func (s queries) QueuedTasks(ctx context.Context, limit int) ([]*models.MotivationalTask, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM motivational_tasks
		WHERE status = ? ORDER BY task_priority DESC, created_at ASC LIMIT ?`,
		string(models.TaskStatusQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("query queued tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s queries) CompletedTasksSince(ctx context.Context, since time.Time) ([]*models.MotivationalTask, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM motivational_tasks
		WHERE completed_at IS NOT NULL AND completed_at >= ?
		ORDER BY completed_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query completed tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// inFlightQuery expands the in-flight status placeholder list so the status
// set stays defined in one place (the models package).
func inFlightQuery(format string) (string, []interface{}) {
	statuses := models.InFlightStatuses()
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return fmt.Sprintf(format, strings.Join(placeholders, ", ")), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*models.MotivationState, error) {
	var (
		state         models.MotivationState
		lastTriggered sql.NullTime
		lastSatisfied sql.NullTime
		trigger       sql.NullString
		metadata      sql.NullString
	)
	err := row.Scan(&state.ID, &state.MotivationType, &state.Urgency, &state.Satisfaction,
		&state.DecayRate, &state.BoostFactor, &state.MaxUrgency, &state.IsActive,
		&state.SuccessCount, &state.FailureCount, &state.TotalAttempts, &state.SuccessRate,
		&lastTriggered, &lastSatisfied, &trigger, &metadata,
		&state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, motivation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan motivation state: %w", err)
	}

	if lastTriggered.Valid {
		t := lastTriggered.Time
		state.LastTriggeredAt = &t
	}
	if lastSatisfied.Valid {
		t := lastSatisfied.Time
		state.LastSatisfiedAt = &t
	}
	if state.TriggerCondition, err = unmarshalMap(trigger); err != nil {
		return nil, fmt.Errorf("scan motivation state %s: %w", state.ID, err)
	}
	if state.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("scan motivation state %s: %w", state.ID, err)
	}
	return &state, nil
}

func scanTask(row rowScanner) (*models.MotivationalTask, error) {
	var (
		task       models.MotivationalTask
		status     string
		workItemID sql.NullString
		spawned    sql.NullTime
		started    sql.NullTime
		completed  sql.NullTime
		success    sql.NullBool
		score      sql.NullFloat64
		gain       sql.NullFloat64
		taskCtx    sql.NullString
	)
	err := row.Scan(&task.ID, &task.MotivationalStateID, &task.GeneratedPrompt,
		&task.TaskPriority, &task.ArbitrationScore, &status, &workItemID,
		&spawned, &started, &completed, &success, &score, &gain, &taskCtx,
		&task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, motivation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan motivational task: %w", err)
	}

	task.Status = models.TaskStatus(status)
	if workItemID.Valid {
		task.WorkItemID = workItemID.String
	}
	if spawned.Valid {
		t := spawned.Time
		task.SpawnedAt = &t
	}
	if started.Valid {
		t := started.Time
		task.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		task.CompletedAt = &t
	}
	if success.Valid {
		b := success.Bool
		task.Success = &b
	}
	if score.Valid {
		f := score.Float64
		task.OutcomeScore = &f
	}
	if gain.Valid {
		f := gain.Float64
		task.SatisfactionGain = &f
	}
	if task.Context, err = unmarshalMap(taskCtx); err != nil {
		return nil, fmt.Errorf("scan motivational task %s: %w", task.ID, err)
	}
	return &task, nil
}

func collectTasks(rows *sql.Rows) ([]*models.MotivationalTask, error) {
	var tasks []*models.MotivationalTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func marshalMap(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(s sql.NullString) (map[string]interface{}, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshal json column: %w", err)
	}
	return m, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
