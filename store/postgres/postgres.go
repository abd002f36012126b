// Package postgres implements orchestrator.LogWriter and
// orchestrator.ProcessStatStore using PostgreSQL with JSONB state columns.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

// Store implements orchestrator.LogWriter and orchestrator.ProcessStatStore
// backed by PostgreSQL, resolving a persisted process's workflow name back
// to a live *orchestrator.Workflow through registry.
type Store struct {
	pool     *pgxpool.Pool
	registry *orchestrator.WorkflowRegistry
}

var (
	_ orchestrator.LogWriter        = (*Store)(nil)
	_ orchestrator.ProcessStatStore = (*Store)(nil)
)

// New creates a Store using an existing pgxpool.Pool. The caller owns the
// pool and is responsible for closing it.
func New(pool *pgxpool.Pool, registry *orchestrator.WorkflowRegistry) *Store {
	return &Store{pool: pool, registry: registry}
}

// Init creates the processes and log_entries tables and their indexes.
// Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes (
			process_id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			state JSONB NOT NULL,
			log_position INTEGER NOT NULL,
			current_user TEXT,
			user_json JSONB,
			callback_token TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS processes_callback_token_idx ON processes(callback_token)`,
		`CREATE INDEX IF NOT EXISTS processes_status_idx ON processes(status)`,
		`CREATE TABLE IF NOT EXISTS log_entries (
			process_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL,
			state JSONB NOT NULL,
			started_at BIGINT NOT NULL,
			PRIMARY KEY (process_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Create inserts a brand new process row for pstat.
func (s *Store) Create(ctx context.Context, pstat *orchestrator.ProcessStat) error {
	row, err := encodeRow(pstat, 0)
	if err != nil {
		return fmt.Errorf("postgres: create process: %w", err)
	}
	now := orchestrator.NowUnix()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO processes (process_id, workflow_name, status, state, log_position, current_user, user_json, callback_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		row.processID, row.workflowName, row.status, row.stateJSON, row.logPosition, row.currentUser, row.userJSON, row.callbackToken, now)
	if err != nil {
		return fmt.Errorf("postgres: create process: %w", err)
	}
	return nil
}

// Load fetches a process by ID and reconstructs its ProcessStat against the
// registry's live Workflow.
func (s *Store) Load(ctx context.Context, processID string) (*orchestrator.ProcessStat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE process_id = $1`, processID)
	pstat, err := s.scanProcess(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	return pstat, nil
}

// Save persists pstat's current status, state, and log position, overwriting
// whatever was stored before.
func (s *Store) Save(ctx context.Context, pstat *orchestrator.ProcessStat) error {
	position := s.positionFor(pstat)
	row, err := encodeRow(pstat, position)
	if err != nil {
		return fmt.Errorf("postgres: save process: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE processes SET status=$1, state=$2, log_position=$3, callback_token=$4, updated_at=$5 WHERE process_id=$6`,
		row.status, row.stateJSON, row.logPosition, row.callbackToken, orchestrator.NowUnix(), row.processID)
	if err != nil {
		return fmt.Errorf("postgres: save process: %w", err)
	}
	return nil
}

// FindByCallbackToken resolves a live callback token back to the
// ProcessStat it was issued for.
func (s *Store) FindByCallbackToken(ctx context.Context, token string) (*orchestrator.ProcessStat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE callback_token = $1`, token)
	pstat, err := s.scanProcess(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by callback token: %w", err)
	}
	return pstat, nil
}

// ListWaiting returns every process currently in the Waiting state.
func (s *Store) ListWaiting(ctx context.Context) ([]*orchestrator.ProcessStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE status = $1`, string(orchestrator.StatusWaiting))
	if err != nil {
		return nil, fmt.Errorf("postgres: list waiting: %w", err)
	}
	defer rows.Close()

	var out []*orchestrator.ProcessStat
	for rows.Next() {
		pstat, err := s.scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list waiting: %w", err)
		}
		out = append(out, pstat)
	}
	return out, rows.Err()
}

// WriteLog implements orchestrator.LogWriter: it appends (or, on
// KeyReplaceLastState, overwrites) a log_entries row for step's outcome,
// advances pstat's resume position, persists the process row, and returns
// result unchanged.
func (s *Store) WriteLog(ctx context.Context, pstat *orchestrator.ProcessStat, step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
	st := result.Unwrap()
	stateJSON, err := json.Marshal(map[string]any(st.Public()))
	if err != nil {
		return result
	}

	name := step.Name
	if override, ok := st[orchestrator.KeyStepNameOverride].(string); ok && override != "" {
		name = override
	}
	replace, _ := st[orchestrator.KeyReplaceLastState].(bool)

	position := s.positionFor(pstat)
	newPosition := orchestrator.NextLogPosition(pstat.Workflow, position, step, result)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result
	}
	defer tx.Rollback(ctx)

	if replace {
		var lastPos int
		err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), -1) FROM log_entries WHERE process_id = $1`, pstat.ProcessID).Scan(&lastPos)
		if err == nil && lastPos >= 0 {
			if _, err := tx.Exec(ctx,
				`UPDATE log_entries SET step_name=$1, status=$2, state=$3, started_at=$4 WHERE process_id=$5 AND position=$6`,
				name, string(result.Status()), stateJSON, orchestrator.NowUnix(), pstat.ProcessID, lastPos); err != nil {
				return result
			}
		} else {
			replace = false
		}
	}
	if !replace {
		var nextPos int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM log_entries WHERE process_id = $1`, pstat.ProcessID).Scan(&nextPos); err != nil {
			nextPos = 0
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO log_entries (process_id, position, step_name, status, state, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			pstat.ProcessID, nextPos, name, string(result.Status()), stateJSON, orchestrator.NowUnix()); err != nil {
			return result
		}
	}

	row, err := encodeRow(pstat, newPosition)
	if err == nil {
		row.status = string(result.Status())
		row.stateJSON = mustMarshal(st)
		if _, err := tx.Exec(ctx,
			`UPDATE processes SET status=$1, state=$2, log_position=$3, callback_token=$4, updated_at=$5 WHERE process_id=$6`,
			row.status, row.stateJSON, row.logPosition, row.callbackToken, orchestrator.NowUnix(), pstat.ProcessID); err != nil {
			return result
		}
	}

	_ = tx.Commit(ctx)
	return result
}

func (s *Store) positionFor(pstat *orchestrator.ProcessStat) int {
	if pstat.Workflow == nil || len(pstat.Log) == 0 {
		return len(pstat.Workflow.Steps)
	}
	if idx := pstat.Workflow.Steps.IndexOf(pstat.Log[0].Name); idx >= 0 {
		return idx
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanProcess(row scanner) (*orchestrator.ProcessStat, error) {
	var (
		processID, workflowName, status string
		stateJSON                       []byte
		logPosition                     int
		currentUser                     *string
		userJSON                        []byte
	)
	if err := row.Scan(&processID, &workflowName, &status, &stateJSON, &logPosition, &currentUser, &userJSON); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, err
	}

	wf, ok := s.registry.Lookup(workflowName)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q (not registered)", workflowName)
	}

	var st orchestrator.State
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	process, ok := orchestrator.FromStatus(orchestrator.StepStatus(status), st)
	if !ok {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	var log orchestrator.StepList
	if logPosition < len(wf.Steps) {
		log = wf.Steps[logPosition:]
	}

	var user *orchestrator.UserRecord
	if len(userJSON) > 0 {
		user = &orchestrator.UserRecord{}
		if err := json.Unmarshal(userJSON, user); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
	}

	var cu string
	if currentUser != nil {
		cu = *currentUser
	}

	return &orchestrator.ProcessStat{
		ProcessID:   processID,
		Workflow:    wf,
		State:       process,
		Log:         log,
		CurrentUser: cu,
		User:        user,
	}, nil
}

type processRow struct {
	processID     string
	workflowName  string
	status        string
	stateJSON     []byte
	logPosition   int
	currentUser   *string
	userJSON      []byte
	callbackToken *string
}

func encodeRow(pstat *orchestrator.ProcessStat, logPosition int) (processRow, error) {
	st := pstat.State.Unwrap()
	stateJSON, err := json.Marshal(map[string]any(st))
	if err != nil {
		return processRow{}, err
	}
	row := processRow{
		processID:    pstat.ProcessID,
		workflowName: pstat.Workflow.Name,
		status:       string(pstat.State.Status()),
		stateJSON:    stateJSON,
		logPosition:  logPosition,
	}
	if pstat.CurrentUser != "" {
		cu := pstat.CurrentUser
		row.currentUser = &cu
	}
	if token, ok := st[orchestrator.KeyCallbackToken].(string); ok && token != "" {
		row.callbackToken = &token
	}
	if pstat.User != nil {
		b, err := json.Marshal(pstat.User)
		if err != nil {
			return processRow{}, err
		}
		row.userJSON = b
	}
	return row, nil
}

func mustMarshal(s orchestrator.State) []byte {
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return []byte("{}")
	}
	return b
}
