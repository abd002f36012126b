package orchestrator

import "context"

// DefaultCallbackRouteKey is the state key the callback-create step writes
// the public callback URL to, when CallbackStep isn't given an explicit one.
const DefaultCallbackRouteKey = KeyCallbackRouteDefault

// CallbackRoutePrefix is prepended to a process id and token to build the
// public route an external system POSTs its result to. callback.Server must
// mount its handler at this prefix.
const CallbackRoutePrefix = "/api/processes/"

func createEndpointStep(routeKey string) Step {
	return NewStep("Create Callback Endpoint", func(ctx context.Context, s State) Process {
		token := newCallbackToken()
		route := CallbackRoutePrefix + ProcessIDFrom(ctx) + "/callback/" + token
		return Success(s.Merge(State{routeKey: route, KeyCallbackToken: token}))
	})
}

func awaitStep(name, resultKey string) Step {
	return NewStep(name, func(ctx context.Context, s State) Process {
		// A StepGroup resumes just after its paused sub-step, so this step
		// itself never runs again once callback.Server has delivered the
		// external system's payload — only stamp where the payload should
		// land and suspend.
		if resultKey != "" {
			return AwaitingCallback(s.Merge(State{KeyCallbackResultKey: resultKey}))
		}
		return AwaitingCallback(s)
	})
}

func cleanupCallbackStep() Step {
	return NewStep("Cleanup Callback", func(ctx context.Context, s State) Process {
		return Success(s.WithoutKeys([]string{KeyCallbackToken}))
	})
}

// CallbackStep composes the create-endpoint/action/await/validate/cleanup
// sequence that every "ask an external system to call us back" step reduces
// to: allocate a single-use token and public route, run actionStep (e.g. POST
// the action referencing that route), suspend as AwaitingCallback until
// callback.Server resolves the token and resumes the process with the
// external system's payload merged into state under resultKey, run
// validateStep against that payload, then strip the now-spent token.
//
// The whole sequence is presented to callers as one logical step named name
// via StepGroup, so a process log shows "provision circuit" rather than five
// separate rows.
func CallbackStep(name string, actionStep, validateStep Step, resultKey, callbackRouteKey string) Step {
	if callbackRouteKey == "" {
		callbackRouteKey = DefaultCallbackRouteKey
	}
	steps := Begin.
		Append(createEndpointStep(callbackRouteKey)).
		Append(actionStep).
		Append(awaitStep(name+" - Await Callback", resultKey)).
		Append(validateStep).
		Append(cleanupCallbackStep())
	return StepGroup(name, steps, true)
}
