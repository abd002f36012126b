package orchestrator

import (
	"context"
	"log/slog"
)

// Assignee names who is responsible for completing a Suspend step (a human
// user) versus the system itself.
type Assignee string

const (
	AssigneeSystem Assignee = "system"
	AssigneeUser   Assignee = "user"
	AssigneeNOC    Assignee = "noc"
)

// Form generates the input form shown to a user at a Suspend point. It must
// be side-effect free: the executor never calls it, only the surfaces that
// render a form to a user.
type Form func(state State) any

// Step is a named function from State to Process, plus the metadata the
// executor, composition operators, and surfaces need: its form generator (if
// any), its assignee, and the authorizers that gate resuming or retrying it.
type Step struct {
	Name       string
	Call       StepFn
	Form       Form
	Assignee   Assignee
	ResumeAuth Authorizer
	RetryAuth  Authorizer
}

// TxRunner wraps a unit of work in a transactional scope: begin on entry,
// commit on success, roll back on error or panic. The core ships NoTx; real
// deployments supply a pgx- or database/sql-backed implementation (see
// store/postgres and store/sqlite).
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(context.Context) error) error
}

// NoTx is a TxRunner that runs fn directly with no transactional semantics.
// Useful for tests and for steps with no persistence side effects.
var NoTx TxRunner = noTx{}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// StepOptions configures MakeStep and MakeRetryStep.
type StepOptions struct {
	Form       Form
	Assignee   Assignee
	ResumeAuth Authorizer
	RetryAuth  Authorizer
	Tx         TxRunner
	Logger     *slog.Logger
}

// StepOption mutates a StepOptions; functional options, matching the style
// used throughout the surrounding stack for constructing Steps and runners.
type StepOption func(*StepOptions)

// WithForm attaches an input-form generator to a step.
func WithForm(f Form) StepOption { return func(o *StepOptions) { o.Form = f } }

// WithAssignee sets the step's assignee (defaults to AssigneeSystem).
func WithAssignee(a Assignee) StepOption { return func(o *StepOptions) { o.Assignee = a } }

// WithResumeAuth sets the authorizer gating who may resume this step.
func WithResumeAuth(a Authorizer) StepOption { return func(o *StepOptions) { o.ResumeAuth = a } }

// WithRetryAuth sets the authorizer gating who may retry this step.
func WithRetryAuth(a Authorizer) StepOption { return func(o *StepOptions) { o.RetryAuth = a } }

// WithTx attaches a transactional scope the step body runs inside.
func WithTx(tx TxRunner) StepOption { return func(o *StepOptions) { o.Tx = tx } }

// WithLogger overrides the base logger a step binds context onto.
func WithLogger(l *slog.Logger) StepOption { return func(o *StepOptions) { o.Logger = l } }

func resolveOptions(opts []StepOption) StepOptions {
	o := StepOptions{Assignee: AssigneeSystem, Tx: NoTx, Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStep wraps f as a bare Step with the given name and options, without the
// transactional/logging/error-coercion scaffolding MakeStep() and
// MakeRetryStep() add. Used internally by composition operators to synthesize marker steps
// (group Enter/Exit, callback endpoint creation, cleanup).
func NewStep(name string, f StepFn, opts ...StepOption) Step {
	o := resolveOptions(opts)
	return Step{Name: name, Call: f, Form: o.Form, Assignee: o.Assignee, ResumeAuth: o.ResumeAuth, RetryAuth: o.RetryAuth}
}

// InputStep builds a Step that unconditionally suspends, pairing it with a
// Form the engine never calls itself — only a surface rendering a form to a
// user does. Defaults to AssigneeUser, since a step with nothing but a form
// and a Suspend body exists to collect human input.
func InputStep(name string, form Form, opts ...StepOption) Step {
	opts = append([]StepOption{WithForm(form), WithAssignee(AssigneeUser)}, opts...)
	o := resolveOptions(opts)
	call := func(ctx context.Context, s State) Process { return Suspend(s) }
	return Step{Name: name, Call: call, Form: o.Form, Assignee: o.Assignee, ResumeAuth: o.ResumeAuth, RetryAuth: o.RetryAuth}
}

// MakeStep wraps a plain func(context.Context, State) (State, error) into a
// Step named name: it binds step/workflow/process-id context onto the
// logger, runs the call inside the configured transactional scope, and
// coerces a returned error into Failed(state-with-error) while logging a
// warning — never lets the error escape as a panic or bubble past the
// executor unconverted.
func MakeStep(name string, f func(context.Context, State) (State, error), opts ...StepOption) Step {
	o := resolveOptions(opts)
	call := func(ctx context.Context, s State) Process {
		logger := o.Logger.With("step", name)
		if wf := WorkflowNameFrom(ctx); wf != "" {
			logger = logger.With("workflow", wf)
		}
		if pid := ProcessIDFrom(ctx); pid != "" {
			logger = logger.With("process_id", pid)
		}
		ctx = withLogger(ctx, logger)

		var result State
		var err error
		txErr := o.Tx.RunInTx(ctx, func(ctx context.Context) error {
			result, err = f(ctx, s)
			return err
		})
		if txErr != nil && err == nil {
			err = txErr
		}
		if err != nil {
			logger.Warn("step failed", "error", err)
			return Failed(s.Merge(State{"error": err}))
		}
		return Success(result)
	}
	return Step{Name: name, Call: call, Form: o.Form, Assignee: o.Assignee, ResumeAuth: o.ResumeAuth, RetryAuth: o.RetryAuth}
}

// MakeRetryStep is MakeStep's automated-retry counterpart: a returned error
// coerces to Waiting rather than Failed, so the scheduler (internal/scheduling)
// reruns the step after backoff instead of leaving the process terminally
// failed.
func MakeRetryStep(name string, f func(context.Context, State) (State, error), opts ...StepOption) Step {
	o := resolveOptions(opts)
	call := func(ctx context.Context, s State) Process {
		logger := o.Logger.With("step", name)
		if wf := WorkflowNameFrom(ctx); wf != "" {
			logger = logger.With("workflow", wf)
		}
		if pid := ProcessIDFrom(ctx); pid != "" {
			logger = logger.With("process_id", pid)
		}
		ctx = withLogger(ctx, logger)

		var result State
		var err error
		txErr := o.Tx.RunInTx(ctx, func(ctx context.Context) error {
			result, err = f(ctx, s)
			return err
		})
		if txErr != nil && err == nil {
			err = txErr
		}
		if err != nil {
			return Waiting(s.Merge(State{"error": err}))
		}
		return Success(result)
	}
	return Step{Name: name, Call: call, Form: o.Form, Assignee: o.Assignee, ResumeAuth: o.ResumeAuth, RetryAuth: o.RetryAuth}
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
