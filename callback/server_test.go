package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

type fakeStore struct {
	byToken map[string]*orchestrator.ProcessStat
	saved   []*orchestrator.ProcessStat
}

func (f *fakeStore) Create(ctx context.Context, pstat *orchestrator.ProcessStat) error { return nil }
func (f *fakeStore) Load(ctx context.Context, id string) (*orchestrator.ProcessStat, error) {
	return nil, nil
}
func (f *fakeStore) Save(ctx context.Context, pstat *orchestrator.ProcessStat) error {
	f.saved = append(f.saved, pstat)
	return nil
}
func (f *fakeStore) FindByCallbackToken(ctx context.Context, token string) (*orchestrator.ProcessStat, error) {
	pstat, ok := f.byToken[token]
	if !ok {
		return nil, errNotFound
	}
	return pstat, nil
}
func (f *fakeStore) ListWaiting(ctx context.Context) ([]*orchestrator.ProcessStat, error) {
	return nil, nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

type fakeWriter struct{}

func (fakeWriter) WriteLog(ctx context.Context, pstat *orchestrator.ProcessStat, step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
	return result
}

func TestHandleCallbackResumesProcess(t *testing.T) {
	approved := orchestrator.NewStep("Mark Approved", func(ctx context.Context, s orchestrator.State) orchestrator.Process {
		return orchestrator.CompleteProcess(s)
	})
	await := orchestrator.NewStep("Await Approval", func(ctx context.Context, s orchestrator.State) orchestrator.Process {
		return orchestrator.AwaitingCallback(s)
	})
	wf := orchestrator.NewWorkflow("approval", "", orchestrator.TargetSystem, orchestrator.Begin.Append(await).Append(approved))

	pstat := &orchestrator.ProcessStat{
		ProcessID: "p1",
		Workflow:  wf,
		State: orchestrator.AwaitingCallback(orchestrator.State{
			orchestrator.KeyCallbackToken:     "tok-abc",
			orchestrator.KeyCallbackResultKey: "approval",
		}),
		Log: orchestrator.StepList{await, approved},
	}
	store := &fakeStore{byToken: map[string]*orchestrator.ProcessStat{"tok-abc": pstat}}
	srv := New(store, fakeWriter{}, &orchestrator.Driver{})

	body := bytes.NewBufferString(`{"approved": true}`)
	req := httptest.NewRequest("POST", "/api/processes/p1/callback/tok-abc", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected the resumed process to be saved, got %d saves", len(store.saved))
	}
	if !store.saved[0].State.IsComplete() {
		t.Errorf("expected the process to complete, got status %s", store.saved[0].State.Status())
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["process_id"] != "p1" {
		t.Errorf("expected process_id p1, got %v", resp["process_id"])
	}
}

func TestHandleCallbackUnknownToken(t *testing.T) {
	store := &fakeStore{byToken: map[string]*orchestrator.ProcessStat{}}
	srv := New(store, fakeWriter{}, &orchestrator.Driver{})

	req := httptest.NewRequest("POST", "/api/processes/p1/callback/nope", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCallbackNotAwaiting(t *testing.T) {
	wf := orchestrator.NewWorkflow("approval", "", orchestrator.TargetSystem, orchestrator.Begin)
	pstat := &orchestrator.ProcessStat{
		ProcessID: "p2",
		Workflow:  wf,
		State:     orchestrator.Success(orchestrator.State{orchestrator.KeyCallbackToken: "tok-xyz"}),
	}
	store := &fakeStore{byToken: map[string]*orchestrator.ProcessStat{"tok-xyz": pstat}}
	srv := New(store, fakeWriter{}, &orchestrator.Driver{})

	req := httptest.NewRequest("POST", "/api/processes/p2/callback/tok-xyz", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 409 {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}
