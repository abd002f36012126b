package orchestrator

import (
	"reflect"
	"testing"
)

func TestNewWorkflowWrapsStepsWithStartAndDone(t *testing.T) {
	wf := NewWorkflow("Create Port", "provisions a new port", TargetCreate, Begin.Append(echoStep("allocate")))

	want := []string{"Start", "allocate", "Done"}
	if !reflect.DeepEqual(wf.Steps.Names(), want) {
		t.Errorf("expected %v, got %v", want, wf.Steps.Names())
	}
}

func TestNewWorkflowDefaultsAuthorizeCallbackToAllowAll(t *testing.T) {
	wf := NewWorkflow("Create Port", "", TargetCreate, Begin)
	if wf.AuthorizeCallback == nil {
		t.Fatal("expected a default AuthorizeCallback")
	}
	if !wf.AuthorizeCallback(nil) {
		t.Error("expected the default AuthorizeCallback to permit a nil user")
	}
}

func TestNewWorkflowDefaultsRetryAuthToAuthorizeCallback(t *testing.T) {
	onlyOps := RequireRole("ops")
	wf := NewWorkflow("Decommission Port", "", TargetTerminate, Begin, WithAuthorizeCallback(onlyOps))

	opsUser := &UserRecord{Roles: []string{"ops"}}
	guestUser := &UserRecord{Roles: []string{"guest"}}
	if !wf.RetryAuthCallback(opsUser) {
		t.Error("expected RetryAuthCallback to inherit AuthorizeCallback and permit the ops user")
	}
	if wf.RetryAuthCallback(guestUser) {
		t.Error("expected RetryAuthCallback to inherit AuthorizeCallback and deny the guest user")
	}
}

func TestWithRetryAuthCallbackOverridesDefault(t *testing.T) {
	wf := NewWorkflow("Modify Port", "", TargetModify, Begin,
		WithAuthorizeCallback(AllowAll),
		WithRetryAuthCallback(DenyAll),
	)
	if !wf.AuthorizeCallback(nil) {
		t.Error("expected AuthorizeCallback to remain AllowAll")
	}
	if wf.RetryAuthCallback(nil) {
		t.Error("expected the explicit RetryAuthCallback override to win")
	}
}

func TestWithInitialInputFormSetsForm(t *testing.T) {
	form := func(s State) any { return map[string]string{"port_id": "string"} }
	wf := NewWorkflow("Create Port", "", TargetCreate, Begin, WithInitialInputForm(form))
	if wf.InitialInputForm == nil {
		t.Fatal("expected InitialInputForm set")
	}
	got := wf.InitialInputForm(State{})
	want := map[string]string{"port_id": "string"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected form output %v, got %v", want, got)
	}
}

func TestWorkflowRegistryRegisterAndLookup(t *testing.T) {
	reg := NewWorkflowRegistry()
	wf := NewWorkflow("Create Port", "", TargetCreate, Begin)

	if _, ok := reg.Lookup("Create Port"); ok {
		t.Fatal("expected an empty registry to report no match")
	}

	reg.Register(wf)
	got, ok := reg.Lookup("Create Port")
	if !ok {
		t.Fatal("expected the registered workflow to be found")
	}
	if got != wf {
		t.Error("expected Lookup to return the same *Workflow instance that was registered")
	}
}

func TestWorkflowRegistryRegisterReplacesExisting(t *testing.T) {
	reg := NewWorkflowRegistry()
	first := NewWorkflow("Create Port", "v1", TargetCreate, Begin)
	second := NewWorkflow("Create Port", "v2", TargetCreate, Begin)

	reg.Register(first)
	reg.Register(second)

	got, ok := reg.Lookup("Create Port")
	if !ok || got.Description != "v2" {
		t.Errorf("expected the later registration to replace the earlier one, got %+v", got)
	}
}
