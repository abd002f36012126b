package orchestrator

import (
	"fmt"
	"strings"
)

// StepList is a sequence of Steps, the associative, empty-identity-bearing
// carrier spec'd as `>>` in the source system. Begin is the identity element:
// Begin.Then(a).Then(b) and StepList{a, b} describe the same sequence.
type StepList []Step

// Begin is the empty StepList, the identity for Concat/Then — the starting
// point every workflow's step sequence is built from.
var Begin = StepList{}

// Concat returns a new StepList containing l's steps followed by other's.
// Neither receiver is mutated.
func (l StepList) Concat(other StepList) StepList {
	out := make(StepList, 0, len(l)+len(other))
	out = append(out, l...)
	out = append(out, other...)
	return out
}

// Append adds a single Step to the end of l.
func (l StepList) Append(s Step) StepList {
	out := make(StepList, 0, len(l)+1)
	out = append(out, l...)
	out = append(out, s)
	return out
}

// Then composes l with x, which must be a Step or a StepList — the
// statically-typed substitute for the source language's `>>` operator, which
// accepts either and raises on anything else. x is typed any so composition
// helpers that assemble a workflow from a heterogeneous literal (as
// workflows/ does) can use one call either way; Then panics with an
// *ErrNotAStep if x is neither, mirroring the source's eager failure rather
// than silently discarding the offending value.
func (l StepList) Then(x any) StepList {
	switch v := x.(type) {
	case Step:
		return l.Append(v)
	case StepList:
		return l.Concat(v)
	case []Step:
		return l.Concat(StepList(v))
	default:
		panic(&ErrNotAStep{Name: fmt.Sprintf("%v", x)})
	}
}

// Map returns a new StepList with f applied to every Step.
func (l StepList) Map(f func(Step) Step) StepList {
	out := make(StepList, len(l))
	for i, s := range l {
		out[i] = f(s)
	}
	return out
}

// Names returns the ordered list of step names, useful for logging and
// resume-truncation diagnostics.
func (l StepList) Names() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = s.Name
	}
	return out
}

func (l StepList) String() string {
	names := make([]string, len(l))
	for i, s := range l {
		names[i] = s.Name
	}
	return "StepList[" + strings.Join(names, " >> ") + "]"
}

// IndexOf returns the position of the first step named name, or -1 if none
// matches. LogWriter implementations use it to translate a step result back
// into the log_position they persist against a workflow's full Steps.
func (l StepList) IndexOf(name string) int {
	for i, s := range l {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// dropWhileNot returns the suffix of l starting just after the first step
// whose name equals name, or the empty StepList if no step matches. Used by
// StepGroup to resume a group after the sub-step it last persisted, without
// re-running it.
func (l StepList) dropWhileNot(name string) StepList {
	for i, s := range l {
		if s.Name == name {
			return l[i+1:]
		}
	}
	return StepList{}
}
