package workflow

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidStateTransition is returned when the current state does not permit the requested one
var ErrInvalidStateTransition = errors.New("invalid state transition")

// TransitionError names the rejected transition
type TransitionError struct {
	Workflow string
	From     string
	To       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Workflow, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// Machine is a finite state machine over the string-backed state type S
type Machine[S ~string] struct {
	name    string
	initial S
	edges   map[S][]S
}

// NewMachine builds a machine from its transition table. States that only
// appear as targets are terminal.
func NewMachine[S ~string](name string, initial S, edges map[S][]S) *Machine[S] {
	return &Machine[S]{name: name, initial: initial, edges: edges}
}

func (m *Machine[S]) Name() string { return m.name }

// Initial is the state new records start in
func (m *Machine[S]) Initial() S { return m.initial }

// Valid reports whether s is a state of the machine
func (m *Machine[S]) Valid(s S) bool {
	if _, ok := m.edges[s]; ok {
		return true
	}
	for _, targets := range m.edges {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

// Next returns the states reachable from s in one step
func (m *Machine[S]) Next(s S) []S {
	out := append([]S(nil), m.edges[s]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Terminal reports whether no transition leaves s
func (m *Machine[S]) Terminal(s S) bool {
	return len(m.edges[s]) == 0
}

// Can reports whether from -> to is an edge
func (m *Machine[S]) Can(from, to S) bool {
	for _, t := range m.edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns a *TransitionError if it is not allowed
func (m *Machine[S]) Transition(from, to S) error {
	if !m.Can(from, to) {
		return &TransitionError{Workflow: m.name, From: string(from), To: string(to)}
	}
	return nil
}

// States returns every state, sorted
func (m *Machine[S]) States() []S {
	seen := make(map[S]struct{})
	for from, targets := range m.edges {
		seen[from] = struct{}{}
		for _, t := range targets {
			seen[t] = struct{}{}
		}
	}
	out := make([]S, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
