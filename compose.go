package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
)

// Conditional gates every step in steps behind a predicate: when p(state) is
// false the step is skipped rather than run, producing Skipped(state)
// instead of invoking the wrapped step at all. The wrapped step's Form and
// Assignee are preserved so a skipped step can still be inspected by
// surfaces that list upcoming steps.
func Conditional(p func(State) bool, steps StepList) StepList {
	return steps.Map(func(step Step) Step {
		inner := step
		call := func(ctx context.Context, s State) Process {
			if !p(s) {
				return Skipped(s)
			}
			return inner.Call(ctx, s)
		}
		return Step{Name: inner.Name, Call: call, Form: inner.Form, Assignee: inner.Assignee, ResumeAuth: inner.ResumeAuth, RetryAuth: inner.RetryAuth}
	})
}

// StepLens narrows a step to operate on a sub-state: get extracts the
// sub-state the wrapped step should see, set grafts its result back into the
// full state. If the wrapped step returns Failed or Waiting, its result is
// passed through unchanged (there is no new sub-state to graft back, since
// the step never produced one).
func StepLens(get func(State) State, set func(full, sub State) State, step Step) Step {
	call := func(ctx context.Context, full State) Process {
		sub := get(full)
		result := step.Call(ctx, sub)
		if result.IsFailed() || result.IsWaiting() {
			return result
		}
		return result.Map(func(subResult State) State { return set(full, subResult) })
	}
	return Step{Name: step.Name, Call: call, Form: step.Form, Assignee: step.Assignee, ResumeAuth: step.ResumeAuth, RetryAuth: step.RetryAuth}
}

// Focus applies StepLens to every step in steps, zooming each one onto
// state[key] and grafting its result back under that same key. This is how a
// reusable sub-workflow (e.g. "validate a port configuration") is embedded
// inside a larger workflow's state without its steps needing to know the
// enclosing key.
func Focus(key string, steps StepList) StepList {
	get := func(full State) State {
		sub, ok := AsState(full[key])
		if !ok {
			sub = State{}
		}
		return sub
	}
	set := func(full, sub State) State {
		return full.Merge(State{key: sub})
	}
	return steps.Map(func(step Step) Step {
		return StepLens(get, set, step)
	})
}

func enterStepName(name string) string { return name + " - Enter" }
func exitStepName(name string) string  { return name + " - Exit" }

func extendStepGroupSteps(name string, steps StepList) StepList {
	enter := NewStep(enterStepName(name), func(ctx context.Context, s State) Process {
		return Success(s.Merge(State{KeyStepNameOverride: name, KeyStepGroup: name}))
	})
	exit := NewStep(exitStepName(name), func(ctx context.Context, s State) Process {
		existing, _ := s[KeyRemoveKeys].([]string)
		removeKeys := append(append([]string{}, existing...), KeyStepGroup, KeySubStep)
		return Success(s.Merge(State{KeyRemoveKeys: removeKeys}))
	})
	return Begin.Append(enter).Concat(steps).Append(exit)
}

// StepGroup presents an entire StepList as a single logical step named name:
// entering stamps KeyStepGroup so the log writer tags every sub-step result
// under the group, and exiting strips that tag again. If the process being
// resumed carries KeySubStep, the group's inner steps are truncated to start
// just after the matching sub-step rather than re-running the whole group —
// the mechanism a restart relies on to resume mid-group without repeating a
// sub-step that already ran. Every
// sub-step result after the first (or any result produced while resuming) is
// tagged KeyReplaceLastState, since it is correcting an already-persisted
// row rather than appending a new one. extractForm, when true, surfaces the
// first non-nil sub-step Form as the group's own Form so a suspended group still
// renders the right input form to the caller.
func StepGroup(name string, steps StepList, extractForm bool) Step {
	extended := extendStepGroupSteps(name, steps)

	var form Form
	if extractForm {
		for _, s := range steps {
			if s.Form != nil {
				form = s.Form
				break
			}
		}
	}

	call := func(ctx context.Context, initialState State) Process {
		hook := logHookFrom(ctx)
		runList := extended
		resuming := false
		if sub, ok := initialState[KeySubStep].(string); ok && sub != "" {
			runList = extended.dropWhileNot(sub)
			resuming = true
		}

		groupStart := NowUnix()
		first := true
		dblogstep := func(step Step, result Process) Process {
			tagged := result.Map(func(s State) State {
				merged := s.Merge(State{KeySubStep: step.Name, KeyStepNameOverride: name})
				if !first || resuming {
					merged = merged.Merge(State{KeyReplaceLastState: true})
				}
				return merged
			})
			first = false
			if hook != nil {
				return hook(step, tagged)
			}
			return tagged
		}

		result := ExecSteps(ctx, runList, Success(initialState), engineSettingsFromCtx(ctx), dblogstep)
		return result.Map(func(s State) State {
			if s[KeySubStep] == exitStepName(name) {
				// The group ran through its Exit step: drop its markers so
				// later steps are not treated as still inside this group.
				s = s.WithoutKeys([]string{KeyStepGroup, KeySubStep, KeyStepNameOverride})
			}
			return s.Merge(State{KeyReplaceLastState: true, KeyLastStepStartedAt: groupStart})
		})
	}

	return Step{Name: name, Call: call, Form: form}
}

// newCallbackToken generates a URL-safe, single-use callback token with at
// least 256 bits of entropy.
func newCallbackToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
