// Package orchestrator is the workflow execution core of a network-services
// orchestration platform: the algebra of process states and step transitions,
// the sequential step executor, the composition operators that build step
// lists, and the resume/abort protocol against a durable log.
//
// A [Workflow] is a named, authorized [StepList] plus an initial input form.
// Running one produces a [Process], a sealed sum of eight states (Success,
// Skipped, Suspend, Waiting, AwaitingCallback, Abort, Failed, Complete).
// [ExecSteps] drives a process forward step by step; [RunWorkflow] and
// [AbortWorkflow] drive it across suspend points against a persisted log.
//
// The core does not prescribe how state is persisted, how forms are
// rendered, how authorization is evaluated, or how callbacks are routed over
// HTTP — those are pluggable through [LogWriter], [EngineSettings], and
// [Authorizer]. See store/postgres, store/sqlite, internal/config, callback,
// and workflows for reference implementations, and cmd/orchestrator for a
// complete wiring example.
package orchestrator
