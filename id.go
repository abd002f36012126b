package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562) process
// identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns the current time as Unix seconds, the unit
// __last_step_started_at is stamped in.
func NowUnix() int64 {
	return time.Now().Unix()
}
