package orchestrator

import (
	"context"
	"fmt"
)

type logHookKey struct{}

// withLogHook installs hook on ctx, read back by StepGroup bodies via
// logHookFrom without threading it through every Step's signature. This is
// the context.Context rendering of the source system's scope-local
// (thread/task-local) log-function variable — see SPEC_FULL.md §4.3.
func withLogHook(ctx context.Context, hook LogFunc) context.Context {
	return context.WithValue(ctx, logHookKey{}, hook)
}

// logHookFrom returns the LogFunc installed on ctx by RunWorkflow, or nil if
// none was installed (e.g. ExecSteps called
// directly in a test without going through the driver).
func logHookFrom(ctx context.Context) LogFunc {
	hook, _ := ctx.Value(logHookKey{}).(LogFunc)
	return hook
}

// stampStarted records the wall-clock start time of the step about to run,
// for later duration measurement by a log writer or tracer.
func stampStarted(p Process) Process {
	g := func(s State) State { return s.Merge(State{KeyLastStepStartedAt: NowUnix()}) }
	return p.OnSuccess(g).OnSkipped(g)
}

// ExecSteps drives process forward through steps, one at a time, persisting
// each result via logFn and stopping as soon as a step yields anything other
// than Success or Skipped (a suspend point, a terminal failure, or an engine
// pause). It never runs a step against a process that isn't Success or
// Skipped, and it stamps KeyLastStepStartedAt immediately before invoking
// each step so a log writer or tracer can compute its duration afterward.
func ExecSteps(ctx context.Context, steps StepList, process Process, settings EngineSettings, logFn LogFunc) Process {
	ctx = withEngineSettings(ctx, settings)
	tracer := TracerFrom(ctx)

	for _, step := range steps {
		if !process.IsSuccess() && !process.IsSkipped() {
			break
		}
		if settings != nil && settings.GlobalLock() {
			loggerFrom(ctx).Info("engine globally locked, pausing before next step", "step", step.Name)
			return process
		}

		process = stampStarted(process)

		spanCtx, span := tracer.Start(ctx, step.Name)
		result := runStepSafely(spanCtx, step, process)
		result = ProjectError(result)

		result.OnFailed(func(s State) State {
			if err, ok := s["error"]; ok {
				span.Error(fmt.Errorf("%v", err))
			}
			loggerFrom(ctx).Error("step failed", "step", step.Name, "error", s["error"])
			return s
		})
		result.OnWaiting(func(s State) State {
			loggerFrom(ctx).Warn("step waiting for retry", "step", step.Name, "error", s["error"])
			return s
		})
		span.End()

		if logFn != nil {
			process = logFn(step, result)
		} else {
			process = result
		}
		loggerFrom(ctx).Debug("step completed", "step", step.Name, "status", process.Status())
	}
	return process
}

// runStepSafely invokes step.Call, converting a panic into a Failed process
// carrying the recovered value as its error — steps must never be able to
// crash the executor loop.
func runStepSafely(ctx context.Context, step Step, process Process) (result Process) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			result = Failed(process.Unwrap().Merge(State{"error": err}))
		}
	}()
	return process.ExecuteStep(ctx, step)
}
