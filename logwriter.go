package orchestrator

import (
	"context"
	"time"
)

// LogFunc persists one step result against a running process and returns the
// Process the executor should continue with — not necessarily result
// unchanged. ExecSteps and StepGroup treat the return value as authoritative:
// a LogWriter is free to veto, enrich, or replace a result on its way to
// durable storage (e.g. rejecting a resume that raced with another writer).
type LogFunc func(step Step, result Process) Process

// LogWriter is the durable persistence collaborator: every step result that
// leaves ExecSteps passes through it before the executor moves on. Real
// implementations append (or, when KeyReplaceLastState is set, overwrite) a
// row per step in a process's log. See store/postgres.Store and
// store/sqlite.Store.
type LogWriter interface {
	// WriteLog persists result as the outcome of step against pstat and
	// returns the Process to continue with.
	WriteLog(ctx context.Context, pstat *ProcessStat, step Step, result Process) Process
}

// LogEntry is one persisted row of a process's step log, the durable shape
// LogWriter implementations store. StepGroup resume truncation does not read
// it; it works from KeySubStep in the resumed state.
type LogEntry struct {
	ProcessID string
	StepName  string
	Status    StepStatus
	State     State
	StartedAt time.Time
	Position  int
}

// ProcessStatStore loads and saves the ProcessStat a workflow run operates
// against, and resolves a live callback token back to its owning process —
// the lookup callback.Server needs to route an inbound HTTP callback to the
// right suspended process, potentially days after it suspended.
type ProcessStatStore interface {
	Create(ctx context.Context, pstat *ProcessStat) error
	Load(ctx context.Context, processID string) (*ProcessStat, error)
	Save(ctx context.Context, pstat *ProcessStat) error
	FindByCallbackToken(ctx context.Context, token string) (*ProcessStat, error)
	// ListWaiting returns every process currently in the Waiting state, the
	// set internal/scheduling polls to retry after backoff.
	ListWaiting(ctx context.Context) ([]*ProcessStat, error)
}

// bindLogWriter adapts a LogWriter plus a fixed ProcessStat into the LogFunc
// shape ExecSteps and the composition operators consume, so callers never
// thread pstat through every step call by hand.
func bindLogWriter(ctx context.Context, w LogWriter, pstat *ProcessStat) LogFunc {
	return func(step Step, result Process) Process {
		return w.WriteLog(ctx, pstat, step, result)
	}
}
