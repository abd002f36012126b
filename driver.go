package orchestrator

import "context"

// ProcessStat is the durable record a running workflow instance is built
// from: its identity, the Workflow definition it is an instance of, its
// current Process state, the steps still left to run, and who is currently
// driving it. A ProcessStatStore loads and saves these; RunWorkflow and
// AbortWorkflow operate on one given to them by the caller and mutate its Log
// field as steps are consumed — callers persist the returned Process plus the
// (now shorter) Log via ProcessStatStore.Save.
type ProcessStat struct {
	ProcessID   string
	Workflow    *Workflow
	State       Process
	Log         StepList
	CurrentUser string
	User        *UserRecord
}

// NewProcessStat creates a fresh ProcessStat for starting wf, with state
// Success(initialState) and the workflow's full step list still to run.
func NewProcessStat(wf *Workflow, initialState State, currentUser string, user *UserRecord) *ProcessStat {
	return &ProcessStat{
		ProcessID:   NewID(),
		Workflow:    wf,
		State:       Success(initialState),
		Log:         wf.Steps,
		CurrentUser: currentUser,
		User:        user,
	}
}

// Driver bundles the engine-wide collaborators RunWorkflow/AbortWorkflow need
// beyond what a single ProcessStat carries: the pause-flag source and the
// one-shot failure-signal sink. Zero-value Driver runs unlocked and discards
// the signal — fine for tests; real deployments wire Settings to
// internal/config.Settings and Invalidator to an observer-backed one.
type Driver struct {
	Settings    EngineSettings
	Invalidator StatusInvalidator
}

// RunWorkflow advances pstat by resuming its current Process (if it is
// Suspend or AwaitingCallback) and then running ExecSteps over the remaining
// log until the process stops at a non-continuable state. logFn persists
// every step result as it happens; its return value is authoritative. On a
// final overall status of Failed, the Driver's StatusInvalidator fires
// exactly once.
func (d *Driver) RunWorkflow(ctx context.Context, pstat *ProcessStat, logFn LogFunc) Process {
	settings := d.Settings
	if settings == nil {
		settings = DefaultEngineSettings()
	}
	invalidator := d.Invalidator
	if invalidator == nil {
		invalidator = NoopInvalidator{}
	}

	ctx = withWorkflowName(ctx, pstat.Workflow.Name)
	ctx = withProcessID(ctx, pstat.ProcessID)
	ctx = withLogHook(ctx, logFn)

	resumeSuspend := func(process Process) Process {
		state := process.Unwrap()
		var step Step
		if _, inGroup := state[KeyStepGroup]; inGroup {
			// The group handles its own sub-step bookkeeping; peek so the
			// group itself is re-entered, not popped off the remaining log.
			if len(pstat.Log) == 0 {
				return Failed(state.Merge(State{"error": ErrNotResumable}))
			}
			step = pstat.Log[0]
		} else {
			if len(pstat.Log) == 0 {
				return Failed(state.Merge(State{"error": ErrNotResumable}))
			}
			step = pstat.Log[0]
			pstat.Log = pstat.Log[1:]
		}
		return logFn(step, process)
	}

	next := pstat.State.Resume(resumeSuspend)
	// Drop each top-level step from pstat.Log once its logged result moves the
	// resume position past it, so pstat.Log stays the steps still to run.
	consume := func(step Step, result Process) Process {
		logged := logFn(step, result)
		if len(pstat.Log) > 0 && pstat.Log[0].Name == step.Name {
			idx := pstat.Workflow.Steps.IndexOf(step.Name)
			if NextLogPosition(pstat.Workflow, idx, step, logged) > idx {
				pstat.Log = pstat.Log[1:]
			}
		}
		return logged
	}
	executed := ExecSteps(ctx, pstat.Log, next, settings, consume)

	if executed.OverallStatus() == OverallFailed {
		invalidator.InvalidateStatusCounts()
	}
	return executed
}

// AbortWorkflow forcibly aborts pstat unless it has already reached Complete,
// in which case it is a no-op and the unchanged state is returned. An
// explicit "User Aborted" step is recorded through logFn so the abort itself
// appears in the persisted log.
func (d *Driver) AbortWorkflow(ctx context.Context, pstat *ProcessStat, logFn LogFunc) Process {
	if pstat.State.IsComplete() {
		return pstat.State
	}
	abortStep := NewStep("User Aborted", func(ctx context.Context, s State) Process {
		return AbortProcess(s)
	})
	aborted := pstat.State.Abort()
	return logFn(abortStep, aborted)
}

// NextLogPosition computes the index into workflow.Steps a LogWriter should
// persist as pstat's resume point after observing result as the outcome of
// step. A process paused inside a StepGroup (KeyStepGroup present) stays at
// the group step's own index — the group tracks its sub-step position
// internally via KeySubStep. Otherwise Failed and Waiting stay put so a
// retry re-runs the same step, and Suspend and AwaitingCallback stay put so
// the paused step is the head of the log RunWorkflow pops on resume; every
// other status (Success, Skipped, Abort, Complete) advances past it. current is
// the position to fall back to when step's name can't be found in
// workflow.Steps (e.g. a step-group's internal sub-step, addressed by
// KeySubStep rather than by top-level position).
func NextLogPosition(workflow *Workflow, current int, step Step, result Process) int {
	idx := workflow.Steps.IndexOf(step.Name)
	if idx < 0 {
		return current
	}
	st := result.Unwrap()
	if _, inGroup := st[KeyStepGroup]; inGroup {
		return idx
	}
	switch result.Status() {
	case StatusFailed, StatusWaiting, StatusSuspend, StatusAwaitingCallback:
		return idx
	default:
		return idx + 1
	}
}

var defaultDriver = &Driver{Settings: DefaultEngineSettings(), Invalidator: NoopInvalidator{}}

// RunWorkflow runs pstat against the package-level default Driver (unlocked
// EngineSettings, no-op invalidator). Use a *Driver directly to share real
// engine settings and an invalidator across many concurrent runs.
func RunWorkflow(ctx context.Context, pstat *ProcessStat, logFn LogFunc) Process {
	return defaultDriver.RunWorkflow(ctx, pstat, logFn)
}

// AbortWorkflow aborts pstat against the package-level default Driver.
func AbortWorkflow(ctx context.Context, pstat *ProcessStat, logFn LogFunc) Process {
	return defaultDriver.AbortWorkflow(ctx, pstat, logFn)
}
