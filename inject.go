package orchestrator

import "context"

// StepOf builds a Step named name whose body is typed: State is unmarshaled
// into a T, f runs against the typed value, and its return is re-merged back
// into State. This is the explicit, statically typed substitute the source
// system's reflection-based parameter injection (binding a step function's
// named arguments straight out of the state dict) needs in a language
// without that introspection — see the state-injector collaborator.
func StepOf[T any](name string, f func(context.Context, T) (T, error), opts ...StepOption) Step {
	return MakeStep(name, func(ctx context.Context, s State) (State, error) {
		var in T
		if err := UnmarshalState(s, &in); err != nil {
			return nil, err
		}
		out, err := f(ctx, in)
		if err != nil {
			return nil, err
		}
		bound, err := MarshalState(out)
		if err != nil {
			return nil, err
		}
		return s.Merge(bound), nil
	}, opts...)
}

// RetryStepOf is StepOf's automated-retry counterpart: a returned error
// coerces the process to Waiting instead of Failed.
func RetryStepOf[T any](name string, f func(context.Context, T) (T, error), opts ...StepOption) Step {
	return MakeRetryStep(name, func(ctx context.Context, s State) (State, error) {
		var in T
		if err := UnmarshalState(s, &in); err != nil {
			return nil, err
		}
		out, err := f(ctx, in)
		if err != nil {
			return nil, err
		}
		bound, err := MarshalState(out)
		if err != nil {
			return nil, err
		}
		return s.Merge(bound), nil
	}, opts...)
}
