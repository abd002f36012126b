package sqlite

import (
	"context"
	"testing"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

func newTestStore(t *testing.T, registry *orchestrator.WorkflowRegistry) *Store {
	t.Helper()
	s := New(":memory:", registry)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func testWorkflow() *orchestrator.Workflow {
	step := orchestrator.NewStep("Do Thing", func(ctx context.Context, s orchestrator.State) orchestrator.Process {
		return orchestrator.Success(s.Merge(orchestrator.State{"done": true}))
	})
	return orchestrator.NewWorkflow("test-workflow", "", orchestrator.TargetSystem, orchestrator.Begin.Append(step))
}

func TestCreateAndLoad(t *testing.T) {
	wf := testWorkflow()
	registry := orchestrator.NewWorkflowRegistry()
	registry.Register(wf)
	store := newTestStore(t, registry)

	pstat := orchestrator.NewProcessStat(wf, orchestrator.State{"input": "x"}, "alice", nil)
	if err := store.Create(context.Background(), pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := store.Load(context.Background(), pstat.ProcessID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ProcessID != pstat.ProcessID {
		t.Errorf("expected process id %s, got %s", pstat.ProcessID, loaded.ProcessID)
	}
	if loaded.Workflow.Name != wf.Name {
		t.Errorf("expected workflow %s, got %s", wf.Name, loaded.Workflow.Name)
	}
	if !loaded.State.IsSuccess() {
		t.Errorf("expected success status, got %s", loaded.State.Status())
	}
	if loaded.State.Unwrap()["input"] != "x" {
		t.Errorf("expected input preserved, got %v", loaded.State.Unwrap())
	}
}

func TestWriteLogAdvancesPosition(t *testing.T) {
	wf := testWorkflow()
	registry := orchestrator.NewWorkflowRegistry()
	registry.Register(wf)
	store := newTestStore(t, registry)

	pstat := orchestrator.NewProcessStat(wf, orchestrator.State{}, "alice", nil)
	if err := store.Create(context.Background(), pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	startStep := wf.Steps[0]
	result := orchestrator.Success(orchestrator.State{})
	store.WriteLog(context.Background(), pstat, startStep, result)

	loaded, err := store.Load(context.Background(), pstat.ProcessID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Log) != len(wf.Steps)-1 {
		t.Errorf("expected log position to advance past %q, remaining=%v", startStep.Name, loaded.Log.Names())
	}
}

func TestFindByCallbackToken(t *testing.T) {
	wf := testWorkflow()
	registry := orchestrator.NewWorkflowRegistry()
	registry.Register(wf)
	store := newTestStore(t, registry)

	pstat := orchestrator.NewProcessStat(wf, orchestrator.State{orchestrator.KeyCallbackToken: "tok-123"}, "alice", nil)
	if err := store.Create(context.Background(), pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.FindByCallbackToken(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("find by callback token: %v", err)
	}
	if found.ProcessID != pstat.ProcessID {
		t.Errorf("expected process id %s, got %s", pstat.ProcessID, found.ProcessID)
	}

	if _, err := store.FindByCallbackToken(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestListWaiting(t *testing.T) {
	wf := testWorkflow()
	registry := orchestrator.NewWorkflowRegistry()
	registry.Register(wf)
	store := newTestStore(t, registry)

	success := orchestrator.NewProcessStat(wf, orchestrator.State{}, "alice", nil)
	if err := store.Create(context.Background(), success); err != nil {
		t.Fatalf("create: %v", err)
	}

	waiting := orchestrator.NewProcessStat(wf, orchestrator.State{}, "bob", nil)
	waiting.State = orchestrator.Waiting(orchestrator.State{"error": "timeout"})
	if err := store.Create(context.Background(), waiting); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Save(context.Background(), waiting); err != nil {
		t.Fatalf("save: %v", err)
	}

	procs, err := store.ListWaiting(context.Background())
	if err != nil {
		t.Fatalf("list waiting: %v", err)
	}
	if len(procs) != 1 {
		t.Fatalf("expected 1 waiting process, got %d", len(procs))
	}
	if procs[0].ProcessID != waiting.ProcessID {
		t.Errorf("expected %s, got %s", waiting.ProcessID, procs[0].ProcessID)
	}
}
