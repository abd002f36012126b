package orchestrator

import "fmt"

// ErrorDict is the serialized form of a step failure, the Go rendering of
// the error-serializer collaborator: enough to persist and display an error
// without leaking arbitrary exception objects across the workflow boundary.
type ErrorDict struct {
	Class   string `json:"class"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ProjectError turns the error carried by a Failed or Waiting process into an
// ErrorDict under the "error" state key, leaving every other variant
// untouched. ExecSteps calls this on every step result before handing it to
// the log writer, so a LogWriter never has to know how to serialize a Go
// error value.
func ProjectError(p Process) Process {
	project := func(s State) State {
		err, ok := s["error"]
		if !ok {
			return s
		}
		goErr, ok := err.(error)
		if !ok {
			return s
		}
		return s.Merge(State{"error": errorToDict(goErr)})
	}
	return p.OnFailed(project).OnWaiting(project)
}

func errorToDict(err error) ErrorDict {
	return ErrorDict{
		Class:   fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

// ErrNotAStep is raised by StepList composition when a value that is neither
// a Step nor a StepList is combined via Append/the >> equivalent.
type ErrNotAStep struct {
	Name string
}

func (e *ErrNotAStep) Error() string {
	return fmt.Sprintf("orchestrator: %q is not a Step or StepList", e.Name)
}

// ErrEngineLocked describes the engine's global-lock pause. ExecSteps does
// not return it: when EngineSettings reports a global lock it returns the
// process unchanged, which is not a failure of the workflow itself.
var ErrEngineLocked = fmt.Errorf("orchestrator: engine is globally locked, pausing before next step")

// ErrUnknownCallbackToken is returned when a callback arrives for a token no
// ProcessStatStore recognizes — either invalid, already consumed, or expired.
var ErrUnknownCallbackToken = fmt.Errorf("orchestrator: unknown or expired callback token")

// ErrNotResumable is set as the "error" of the Failed process RunWorkflow
// returns when a Suspend or AwaitingCallback process has no remaining log
// step to resume at. (Abort and Complete are returned unchanged by Resume.)
var ErrNotResumable = fmt.Errorf("orchestrator: process is not in a resumable state")

// ErrUnauthorized is returned when an Authorizer denies a resume or retry.
var ErrUnauthorized = fmt.Errorf("orchestrator: user is not authorized for this action")
