package orchestrator

import "sync/atomic"

// EngineSettings is consulted once per step by ExecSteps: if GlobalLock
// reports true, the executor stops before running the next step and returns
// the process unchanged, without treating the pause as an error. A real
// deployment backs this with internal/config.Settings (TOML-loaded, runtime
// mutable); tests use DefaultEngineSettings.
type EngineSettings interface {
	GlobalLock() bool
}

// StatusInvalidator receives a one-shot signal whenever a workflow run
// terminates with overall status Failed, mirroring the invalidate-status-
// counts broadcast of the source system. The no-op default is
// NoopInvalidator; observer.NewInvalidator logs the signal instead of
// exporting an OTEL metric for it (this build wires OTEL for traces only).
type StatusInvalidator interface {
	InvalidateStatusCounts()
}

// NoopInvalidator discards the signal. The zero value is ready to use.
type NoopInvalidator struct{}

func (NoopInvalidator) InvalidateStatusCounts() {}

// defaultEngineSettings is a process-local, atomically toggled EngineSettings
// suitable for tests and single-process deployments. internal/config.Settings
// provides the TOML-backed, multi-instance-aware real implementation.
type defaultEngineSettings struct {
	locked atomic.Bool
}

// DefaultEngineSettings returns an EngineSettings whose lock starts
// unlocked and can be toggled with SetGlobalLock.
func DefaultEngineSettings() *defaultEngineSettings {
	return &defaultEngineSettings{}
}

func (s *defaultEngineSettings) GlobalLock() bool { return s.locked.Load() }

// SetGlobalLock toggles the pause flag ExecSteps checks before each step.
func (s *defaultEngineSettings) SetGlobalLock(locked bool) { s.locked.Store(locked) }
