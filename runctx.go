package orchestrator

import "context"

// Ambient, per-run values threaded through context.Context rather than
// State: identity metadata for logging, and the EngineSettings a nested
// StepGroup's own ExecSteps call must keep honoring. None of these are
// persisted — they exist only for the lifetime of one RunWorkflow/
// AbortWorkflow call.

type workflowNameKey struct{}
type processIDKey struct{}
type engineSettingsKey struct{}

func withWorkflowName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowNameKey{}, name)
}

// WorkflowNameFrom returns the name of the workflow the current run belongs
// to, or "" if none was installed (e.g. ExecSteps invoked directly, outside
// RunWorkflow).
func WorkflowNameFrom(ctx context.Context) string {
	name, _ := ctx.Value(workflowNameKey{}).(string)
	return name
}

func withProcessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processIDKey{}, id)
}

// ProcessIDFrom returns the process id of the current run, or "" if none was
// installed.
func ProcessIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(processIDKey{}).(string)
	return id
}

func withEngineSettings(ctx context.Context, s EngineSettings) context.Context {
	return context.WithValue(ctx, engineSettingsKey{}, s)
}

func engineSettingsFromCtx(ctx context.Context) EngineSettings {
	s, _ := ctx.Value(engineSettingsKey{}).(EngineSettings)
	return s
}
