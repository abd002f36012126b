package orchestrator

import (
	"context"
	"sync"
)

// Target names the kind of product-domain operation a workflow performs,
// carried for UI grouping and authorization policy, never interpreted by the
// core itself.
type Target string

const (
	TargetCreate    Target = "create"
	TargetModify    Target = "modify"
	TargetTerminate Target = "terminate"
	TargetValidate  Target = "validate"
	TargetSystem    Target = "system"
)

// Workflow is a named, authorized StepList plus the input form shown before
// the first step runs. It is immutable once built — WorkflowBuilder produces
// one via NewWorkflow.
type Workflow struct {
	Name              string
	Description       string
	Target            Target
	Steps             StepList
	InitialInputForm  Form
	AuthorizeCallback Authorizer
	RetryAuthCallback Authorizer
}

// WorkflowOption mutates a Workflow under construction by NewWorkflow.
type WorkflowOption func(*Workflow)

// WithInitialInputForm sets the form collected before the workflow's first
// step runs (the create/modify/terminate input screen).
func WithInitialInputForm(f Form) WorkflowOption {
	return func(w *Workflow) { w.InitialInputForm = f }
}

// WithAuthorizeCallback sets who may start or resume this workflow. Defaults
// to AllowAll.
func WithAuthorizeCallback(a Authorizer) WorkflowOption {
	return func(w *Workflow) { w.AuthorizeCallback = a }
}

// WithRetryAuthCallback sets who may retry a Failed/Waiting step of this
// workflow. Defaults to the workflow's AuthorizeCallback.
func WithRetryAuthCallback(a Authorizer) WorkflowOption {
	return func(w *Workflow) { w.RetryAuthCallback = a }
}

// NewWorkflow builds a Workflow named name targeting target, running steps.
// AuthorizeCallback defaults to AllowAll; RetryAuthCallback defaults to
// whatever AuthorizeCallback ends up being, matching the source system's
// make_workflow defaults.
func NewWorkflow(name, description string, target Target, steps StepList, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		Name:              name,
		Description:       description,
		Target:            target,
		Steps:             Begin.Append(initStep).Concat(steps).Append(doneStep),
		AuthorizeCallback: AllowAll,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.RetryAuthCallback == nil {
		w.RetryAuthCallback = w.AuthorizeCallback
	}
	return w
}

// initStep is the pure "Start" step prepended to every workflow's log by
// convention: it simply threads the initial state through as Success.
var initStep = NewStep("Start", func(ctx context.Context, s State) Process { return Success(s) })

// doneStep is the pure "Done" step appended to every workflow's log by
// convention: it marks the process Complete, the absolutely terminal state.
var doneStep = NewStep("Done", func(ctx context.Context, s State) Process { return CompleteProcess(s) })

// WorkflowRegistry maps workflow names to the live *Workflow a process was
// started against. A ProcessStat only persists a workflow's name and the
// step position it's paused at — Step.Call closures can't round-trip
// through a database — so a store.Load needs a registry to turn that name
// back into the same Workflow the process was created from.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewWorkflowRegistry returns an empty registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{workflows: make(map[string]*Workflow)}
}

// Register adds wf under its Name, replacing any workflow already
// registered under that name.
func (r *WorkflowRegistry) Register(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name] = wf
}

// Lookup returns the workflow registered under name, if any.
func (r *WorkflowRegistry) Lookup(name string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	return wf, ok
}

