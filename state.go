package orchestrator

import "encoding/json"

// State is an ordered mapping from string keys to arbitrary serializable
// values. It flows between steps by value: each step consumes a State and
// produces a new State rather than mutating the one it was given. State must
// be JSON-serializable at persistence boundaries.
type State map[string]any

// Reserved state keys interpreted by the executor, composition operators, and
// log writer. User step code should not set these directly except through the
// documented composition operators.
const (
	// KeySubStep names the last sub-step executed inside a step group, used
	// to resume a group at the right place after a restart.
	KeySubStep = "__sub_step"
	// KeyStepGroup names the currently entered step group.
	KeyStepGroup = "__step_group"
	// KeyStepNameOverride tells the log writer to record this result under a
	// different step name (the owning group's name).
	KeyStepNameOverride = "__step_name_override"
	// KeyReplaceLastState tells the log writer to overwrite the last
	// persisted record instead of appending a new one.
	KeyReplaceLastState = "__replace_last_state"
	// KeyRemoveKeys lists state keys the log writer should drop from the
	// user-visible persisted state.
	KeyRemoveKeys = "__remove_keys"
	// KeyLastStepStartedAt carries the wall-clock start time of the current
	// step (or step group) for duration measurement.
	KeyLastStepStartedAt = "__last_step_started_at"
	// KeyCallbackToken is the secret, single-use callback token. Never
	// returned to users; the log writer strips it before persisting the
	// user-visible state.
	KeyCallbackToken = "__callback_token"
	// KeyCallbackResultKey names the state key under which a callback's
	// resume payload should be merged.
	KeyCallbackResultKey = "__callback_result_key"
	// KeyCallbackRouteDefault is the default state key the callback-create
	// step writes the public callback URL to.
	KeyCallbackRouteDefault = "callback_route"
)

// controlKeys are stripped from the user-visible state by the log writer
// before a record is considered final. KeyRemoveKeys entries are stripped in
// addition to these.
var controlKeys = []string{
	KeySubStep,
	KeyStepGroup,
	KeyStepNameOverride,
	KeyReplaceLastState,
	KeyRemoveKeys,
	KeyLastStepStartedAt,
	KeyCallbackToken,
	KeyCallbackResultKey,
}

// Clone returns a shallow copy of s. Steps must treat the State they are
// given as immutable and return a new map rather than mutating s in place;
// Clone is the building block for that discipline.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new State containing s's entries overlaid with other's.
// Neither input is mutated.
func (s State) Merge(other State) State {
	out := s.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// WithoutKeys returns a new State with the named keys removed.
func (s State) WithoutKeys(keys []string) State {
	if len(keys) == 0 {
		return s.Clone()
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(State, len(s))
	for k, v := range s {
		if _, ok := drop[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

// Public strips every reserved control key (and any keys named in
// __remove_keys) from s, producing the state a log writer should expose to
// external callers (UIs, APIs). It never mutates s.
func (s State) Public() State {
	remove := controlKeys
	if extra, ok := s[KeyRemoveKeys]; ok {
		if names, ok := extra.([]string); ok {
			remove = append(append([]string{}, controlKeys...), names...)
		} else if anys, ok := extra.([]any); ok {
			for _, a := range anys {
				if name, ok := a.(string); ok {
					remove = append(remove, name)
				}
			}
		}
	}
	return s.WithoutKeys(remove)
}

// AsState coerces v into a State, succeeding both for an actual State and
// for the plain map[string]any a nested object decodes into after a JSON
// round trip (MarshalState/UnmarshalState, or a ProcessStatStore reload) —
// json.Unmarshal has no way to know a nested value should carry the named
// State type rather than its underlying map[string]any, so callers reading
// a sub-state back out of State (Focus's lens chief among them) need this
// instead of a bare type assertion.
func AsState(v any) (State, bool) {
	switch t := v.(type) {
	case State:
		return t, true
	case map[string]any:
		return State(t), true
	default:
		return nil, false
	}
}

// MarshalState round-trips v through JSON into a State. Used by StepOf/
// RetryStepOf to bind a typed struct from the untyped State map.
func MarshalState(v any) (State, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// UnmarshalState round-trips s through JSON into v, a pointer to a typed
// struct. Used by StepOf/RetryStepOf.
func UnmarshalState(s State, v any) error {
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
