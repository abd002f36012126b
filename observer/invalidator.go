package observer

import (
	"log/slog"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

// LoggingInvalidator implements orchestrator.StatusInvalidator by emitting a
// structured warning. It stands in for the source system's OTEL counter
// broadcast — this build wires OTEL for traces only (see DESIGN.md) — so a
// failed workflow run is still surfaced somewhere an operator is looking.
type LoggingInvalidator struct {
	logger *slog.Logger
}

// NewInvalidator builds a LoggingInvalidator logging through l, or
// slog.Default() if l is nil.
func NewInvalidator(l *slog.Logger) *LoggingInvalidator {
	if l == nil {
		l = slog.Default()
	}
	return &LoggingInvalidator{logger: l}
}

// InvalidateStatusCounts implements orchestrator.StatusInvalidator.
func (i *LoggingInvalidator) InvalidateStatusCounts() {
	i.logger.Warn("workflow run failed, invalidating cached status counts")
}

var _ orchestrator.StatusInvalidator = (*LoggingInvalidator)(nil)
