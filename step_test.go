package orchestrator

import (
	"context"
	"errors"
	"testing"
)

func TestInputStepSuspendsAndCarriesForm(t *testing.T) {
	form := func(s State) any { return map[string]string{"port_id": "string"} }
	step := InputStep("Collect Port Request", form)

	if step.Assignee != AssigneeUser {
		t.Errorf("expected InputStep to default to AssigneeUser, got %v", step.Assignee)
	}
	if step.Form == nil {
		t.Fatal("expected the form to be attached")
	}

	result := step.Call(context.Background(), State{"seed": "x"})
	if !result.IsSuspend() {
		t.Fatalf("expected Suspend, got %v", result.Status())
	}
	if result.Unwrap()["seed"] != "x" {
		t.Errorf("expected state carried through unchanged, got %v", result.Unwrap())
	}
}

func TestInputStepOptionsCanOverrideAssignee(t *testing.T) {
	step := InputStep("Escalate", func(State) any { return nil }, WithAssignee(AssigneeNOC))
	if step.Assignee != AssigneeNOC {
		t.Errorf("expected WithAssignee to override the default, got %v", step.Assignee)
	}
}

func TestMakeStepCoercesErrorToFailed(t *testing.T) {
	step := MakeStep("Allocate Port", func(ctx context.Context, s State) (State, error) {
		return nil, errors.New("carrier rejected allocation")
	})
	result := step.Call(context.Background(), State{"port_id": "acc-1"})
	if !result.IsFailed() {
		t.Fatalf("expected Failed, got %v", result.Status())
	}
	if result.Unwrap()["error"] == nil {
		t.Error("expected the error to be carried in state")
	}
}

func TestMakeStepReturnsSuccessOnNilError(t *testing.T) {
	step := MakeStep("Allocate Port", func(ctx context.Context, s State) (State, error) {
		return s.Merge(State{"port_id": "acc-9"}), nil
	})
	result := step.Call(context.Background(), State{})
	if !result.IsSuccess() {
		t.Fatalf("expected Success, got %v", result.Status())
	}
	if result.Unwrap()["port_id"] != "acc-9" {
		t.Errorf("expected the returned state used, got %v", result.Unwrap())
	}
}

func TestMakeRetryStepCoercesErrorToWaiting(t *testing.T) {
	step := MakeRetryStep("Ping Carrier", func(ctx context.Context, s State) (State, error) {
		return nil, errors.New("carrier API timeout")
	})
	result := step.Call(context.Background(), State{})
	if !result.IsWaiting() {
		t.Fatalf("expected Waiting, got %v", result.Status())
	}
}

func TestMakeStepRunsInsideConfiguredTx(t *testing.T) {
	var ran []string
	tx := recordingTxRunner{log: &ran}
	step := MakeStep("Allocate Port", func(ctx context.Context, s State) (State, error) {
		ran = append(ran, "body")
		return s, nil
	}, WithTx(tx))

	step.Call(context.Background(), State{})
	if len(ran) != 2 || ran[0] != "begin" || ran[1] != "body" {
		t.Errorf("expected the tx runner to wrap the step body, got %v", ran)
	}
}

type recordingTxRunner struct {
	log *[]string
}

func (r recordingTxRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	*r.log = append(*r.log, "begin")
	return fn(ctx)
}

func TestMakeStepPropagatesTxRunnerFailure(t *testing.T) {
	failingTx := failingTxRunner{err: errors.New("transaction deadlock")}
	step := MakeStep("Allocate Port", func(ctx context.Context, s State) (State, error) {
		return s, nil
	}, WithTx(failingTx))

	result := step.Call(context.Background(), State{})
	if !result.IsFailed() {
		t.Fatalf("expected the tx runner's own error to fail the step, got %v", result.Status())
	}
}

type failingTxRunner struct{ err error }

func (f failingTxRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return f.err
}

func TestNoTxRunsDirectly(t *testing.T) {
	called := false
	err := NoTx.RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected the wrapped function to run")
	}
}
