// Package sqlite implements orchestrator.LogWriter and
// orchestrator.ProcessStatStore using pure-Go SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	orchestrator "github.com/RichieB2B/orchestrator-core"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts. If
// not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements orchestrator.LogWriter and orchestrator.ProcessStatStore
// backed by a local SQLite file.
type Store struct {
	db       *sql.DB
	registry *orchestrator.WorkflowRegistry
	logger   *slog.Logger
}

var (
	_ orchestrator.LogWriter        = (*Store)(nil)
	_ orchestrator.ProcessStatStore = (*Store)(nil)
)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath, resolving a
// persisted process's workflow name back to a live *orchestrator.Workflow
// through registry. It opens a single shared connection with
// SetMaxOpenConns(1) so all goroutines serialize through one connection,
// eliminating SQLITE_BUSY errors from concurrent writers opening
// independent connections.
func New(dbPath string, registry *orchestrator.WorkflowRegistry, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, registry: registry, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the processes and log_entries tables. Safe to call multiple
// times.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes (
			process_id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			log_position INTEGER NOT NULL,
			current_user TEXT,
			user_json TEXT,
			callback_token TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS processes_callback_token_idx ON processes(callback_token)`,
		`CREATE INDEX IF NOT EXISTS processes_status_idx ON processes(status)`,
		`CREATE TABLE IF NOT EXISTS log_entries (
			process_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			PRIMARY KEY (process_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Create inserts a brand new process row for pstat.
func (s *Store) Create(ctx context.Context, pstat *orchestrator.ProcessStat) error {
	start := time.Now()
	s.logger.Debug("sqlite: create process", "process_id", pstat.ProcessID)
	row, err := encodeRow(pstat, 0)
	if err != nil {
		return fmt.Errorf("sqlite: create process: %w", err)
	}
	now := orchestrator.NowUnix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processes (process_id, workflow_name, status, state, log_position, current_user, user_json, callback_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		row.processID, row.workflowName, row.status, row.stateJSON, row.logPosition, row.currentUser, row.userJSON, row.callbackToken, now)
	if err != nil {
		s.logger.Error("sqlite: create process failed", "process_id", pstat.ProcessID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("sqlite: create process: %w", err)
	}
	s.logger.Debug("sqlite: create process ok", "process_id", pstat.ProcessID, "duration", time.Since(start))
	return nil
}

// Load fetches a process by ID and reconstructs its ProcessStat against the
// registry's live Workflow.
func (s *Store) Load(ctx context.Context, processID string) (*orchestrator.ProcessStat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE process_id = $1`, processID)
	return s.scanProcess(row)
}

// Save persists pstat's current status, state, and log position, overwriting
// whatever was stored before.
func (s *Store) Save(ctx context.Context, pstat *orchestrator.ProcessStat) error {
	start := time.Now()
	position := s.positionFor(pstat)
	row, err := encodeRow(pstat, position)
	if err != nil {
		return fmt.Errorf("sqlite: save process: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE processes SET status=$1, state=$2, log_position=$3, callback_token=$4, updated_at=$5 WHERE process_id=$6`,
		row.status, row.stateJSON, row.logPosition, row.callbackToken, orchestrator.NowUnix(), row.processID)
	if err != nil {
		s.logger.Error("sqlite: save process failed", "process_id", pstat.ProcessID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("sqlite: save process: %w", err)
	}
	s.logger.Debug("sqlite: save process ok", "process_id", pstat.ProcessID, "duration", time.Since(start))
	return nil
}

// FindByCallbackToken resolves a live callback token back to the
// ProcessStat it was issued for.
func (s *Store) FindByCallbackToken(ctx context.Context, token string) (*orchestrator.ProcessStat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE callback_token = $1`, token)
	pstat, err := s.scanProcess(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by callback token: %w", err)
	}
	return pstat, nil
}

// ListWaiting returns every process currently in the Waiting state.
func (s *Store) ListWaiting(ctx context.Context) ([]*orchestrator.ProcessStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT process_id, workflow_name, status, state, log_position, current_user, user_json
		 FROM processes WHERE status = $1`, string(orchestrator.StatusWaiting))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list waiting: %w", err)
	}
	defer rows.Close()

	var out []*orchestrator.ProcessStat
	for rows.Next() {
		pstat, err := s.scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list waiting: %w", err)
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
	start := time.Now()
	st := result.Unwrap()
	stateJSON, err := json.Marshal(map[string]any(st.Public()))
	if err != nil {
		s.logger.Error("sqlite: write log marshal failed", "process_id", pstat.ProcessID, "step", step.Name, "error", err)
		return result
	}

	name := step.Name
	if override, ok := st[orchestrator.KeyStepNameOverride].(string); ok && override != "" {
		name = override
	}
	replace, _ := st[orchestrator.KeyReplaceLastState].(bool)

	position := s.positionFor(pstat)
	newPosition := orchestrator.NextLogPosition(pstat.Workflow, position, step, result)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("sqlite: write log begin tx failed", "process_id", pstat.ProcessID, "error", err)
		return result
	}
	defer tx.Rollback()

	if replace {
		var lastPos int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) FROM log_entries WHERE process_id = $1`, pstat.ProcessID)
		if err := row.Scan(&lastPos); err == nil && lastPos >= 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE log_entries SET step_name=$1, status=$2, state=$3, started_at=$4 WHERE process_id=$5 AND position=$6`,
				name, string(result.Status()), stateJSON, orchestrator.NowUnix(), pstat.ProcessID, lastPos); err != nil {
				s.logger.Error("sqlite: write log replace failed", "process_id", pstat.ProcessID, "error", err)
				return result
			}
		} else {
			replace = false
		}
	}
	if !replace {
		var nextPos int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM log_entries WHERE process_id = $1`, pstat.ProcessID)
		if err := row.Scan(&nextPos); err != nil {
			nextPos = 0
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO log_entries (process_id, position, step_name, status, state, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			pstat.ProcessID, nextPos, name, string(result.Status()), stateJSON, orchestrator.NowUnix()); err != nil {
			s.logger.Error("sqlite: write log insert failed", "process_id", pstat.ProcessID, "error", err)
			return result
		}
	}

	fullRow, err := encodeRow(pstat, newPosition)
	if err == nil {
		fullRow.status = string(result.Status())
		fullRow.stateJSON = mustMarshal(st)
		if _, err := tx.ExecContext(ctx,
			`UPDATE processes SET status=$1, state=$2, log_position=$3, callback_token=$4, updated_at=$5 WHERE process_id=$6`,
			fullRow.status, fullRow.stateJSON, fullRow.logPosition, fullRow.callbackToken, orchestrator.NowUnix(), pstat.ProcessID); err != nil {
			s.logger.Error("sqlite: write log process update failed", "process_id", pstat.ProcessID, "error", err)
			return result
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: write log commit failed", "process_id", pstat.ProcessID, "error", err)
		return result
	}
	s.logger.Debug("sqlite: write log ok", "process_id", pstat.ProcessID, "step", name, "status", result.Status(), "duration", time.Since(start))
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
		processID, workflowName, status, stateJSON string
		logPosition                                int
		currentUser, userJSON                      sql.NullString
	)
	if err := row.Scan(&processID, &workflowName, &status, &stateJSON, &logPosition, &currentUser, &userJSON); err != nil {
		return nil, err
	}

	wf, ok := s.registry.Lookup(workflowName)
	if !ok {
		return nil, fmt.Errorf("sqlite: unknown workflow %q (not registered)", workflowName)
	}

	var st orchestrator.State
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return nil, fmt.Errorf("sqlite: decode state: %w", err)
	}
	process, ok := orchestrator.FromStatus(orchestrator.StepStatus(status), st)
	if !ok {
		return nil, fmt.Errorf("sqlite: unknown status %q", status)
	}

	var log orchestrator.StepList
	if logPosition < len(wf.Steps) {
		log = wf.Steps[logPosition:]
	}

	var user *orchestrator.UserRecord
	if userJSON.Valid && userJSON.String != "" {
		user = &orchestrator.UserRecord{}
		if err := json.Unmarshal([]byte(userJSON.String), user); err != nil {
			return nil, fmt.Errorf("sqlite: decode user: %w", err)
		}
	}

	return &orchestrator.ProcessStat{
		ProcessID:   processID,
		Workflow:    wf,
		State:       process,
		Log:         log,
		CurrentUser: currentUser.String,
		User:        user,
	}, nil
}

type processRow struct {
	processID     string
	workflowName  string
	status        string
	stateJSON     []byte
	logPosition   int
	currentUser   sql.NullString
	userJSON      sql.NullString
	callbackToken sql.NullString
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
		currentUser:  sql.NullString{String: pstat.CurrentUser, Valid: pstat.CurrentUser != ""},
	}
	if token, ok := st[orchestrator.KeyCallbackToken].(string); ok && token != "" {
		row.callbackToken = sql.NullString{String: token, Valid: true}
	}
	if pstat.User != nil {
		b, err := json.Marshal(pstat.User)
		if err != nil {
			return processRow{}, err
		}
		row.userJSON = sql.NullString{String: string(b), Valid: true}
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
