// Package protocol describes coherence protocols as declarative transition
// tables. A table maps a (state, event) pair to a next state and a list of
// actions. Controllers execute the actions; the tables own the semantics.
package protocol

import (
	"fmt"
	"sort"

	"github.com/sarchlab/rubysim/coherence"
)

// Event is an input that can trigger a transition.
type Event string

// Action is a named step that a controller performs during a transition.
type Action string

// StateSpec describes a single state.
type StateSpec struct {
	Name        coherence.State
	Description string
	Stable      bool
}

// TransitionSpec connects states and events with actions. An empty ToState
// keeps the current state.
type TransitionSpec struct {
	FromStates []coherence.State
	Events     []Event
	ToState    coherence.State
	Actions    []Action
}

// TableSpec is the declarative description of one controller's state
// machine.
type TableSpec struct {
	Name         string
	Machine      coherence.MachineType
	DefaultState coherence.State
	States       []StateSpec
	Events       []Event
	Actions      []Action
	Transitions  []TransitionSpec
}

// Validate ensures the specification is self-consistent.
func (s *TableSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("table name is empty")
	}

	stateSet := make(map[coherence.State]struct{})
	for _, st := range s.States {
		if st.Name == "" {
			return fmt.Errorf("%s: state name cannot be empty", s.Name)
		}

		stateSet[st.Name] = struct{}{}
	}

	if len(stateSet) == 0 {
		return fmt.Errorf("%s: no states defined", s.Name)
	}

	if _, ok := stateSet[s.DefaultState]; !ok {
		return fmt.Errorf("%s: default state %q not declared",
			s.Name, s.DefaultState)
	}

	eventSet := make(map[Event]struct{})
	for _, ev := range s.Events {
		eventSet[ev] = struct{}{}
	}

	actionSet := make(map[Action]struct{})
	for _, a := range s.Actions {
		actionSet[a] = struct{}{}
	}

	if len(s.Transitions) == 0 {
		return fmt.Errorf("%s: no transitions defined", s.Name)
	}

	for i, tr := range s.Transitions {
		if err := s.validateTransition(i, tr, stateSet, eventSet, actionSet); err != nil {
			return err
		}
	}

	return nil
}

func (s *TableSpec) validateTransition(
	i int,
	tr TransitionSpec,
	stateSet map[coherence.State]struct{},
	eventSet map[Event]struct{},
	actionSet map[Action]struct{},
) error {
	if len(tr.FromStates) == 0 {
		return fmt.Errorf("%s: transition #%d missing fromStates", s.Name, i)
	}

	if len(tr.Events) == 0 {
		return fmt.Errorf("%s: transition #%d missing events", s.Name, i)
	}

	for _, st := range tr.FromStates {
		if _, ok := stateSet[st]; !ok {
			return fmt.Errorf("%s: transition #%d references undefined state %q",
				s.Name, i, st)
		}
	}

	for _, ev := range tr.Events {
		if _, ok := eventSet[ev]; !ok {
			return fmt.Errorf("%s: transition #%d references undefined event %q",
				s.Name, i, ev)
		}
	}

	for _, a := range tr.Actions {
		if _, ok := actionSet[a]; !ok {
			return fmt.Errorf("%s: transition #%d references undefined action %q",
				s.Name, i, a)
		}
	}

	if tr.ToState != "" {
		if _, ok := stateSet[tr.ToState]; !ok {
			return fmt.Errorf("%s: transition #%d has undefined target state %q",
				s.Name, i, tr.ToState)
		}
	}

	return nil
}

// Transition is one compiled edge of a table.
type Transition struct {
	From    coherence.State
	Event   Event
	To      coherence.State
	Actions []Action
}

// Has tells if the transition performs the action.
func (t Transition) Has(a Action) bool {
	for _, x := range t.Actions {
		if x == a {
			return true
		}
	}

	return false
}

type edgeKey struct {
	state coherence.State
	event Event
}

// Table is a compiled, immutable state machine.
type Table struct {
	spec   TableSpec
	stable map[coherence.State]bool
	edges  map[edgeKey]Transition
}

// Compile validates the spec and builds the lookup table. Two transitions
// for the same (state, event) pair are rejected.
func Compile(spec TableSpec) (*Table, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	t := &Table{
		spec:   spec,
		stable: make(map[coherence.State]bool),
		edges:  make(map[edgeKey]Transition),
	}

	for _, st := range spec.States {
		t.stable[st.Name] = st.Stable
	}

	for i, tr := range spec.Transitions {
		for _, from := range tr.FromStates {
			for _, ev := range tr.Events {
				key := edgeKey{state: from, event: ev}
				if _, dup := t.edges[key]; dup {
					return nil, fmt.Errorf(
						"%s: transition #%d redefines (%s, %s)",
						spec.Name, i, from, ev)
				}

				to := tr.ToState
				if to == "" {
					to = from
				}

				t.edges[key] = Transition{
					From:    from,
					Event:   ev,
					To:      to,
					Actions: tr.Actions,
				}
			}
		}
	}

	return t, nil
}

// MustCompile is like Compile but panics on invalid specs. It is meant for
// tables declared in code.
func MustCompile(spec TableSpec) *Table {
	t, err := Compile(spec)
	if err != nil {
		panic(err)
	}

	return t
}

// Name returns the name of the table.
func (t *Table) Name() string {
	return t.spec.Name
}

// Machine returns the kind of controller the table drives.
func (t *Table) Machine() coherence.MachineType {
	return t.spec.Machine
}

// DefaultState is the state of lines that a controller does not track.
func (t *Table) DefaultState() coherence.State {
	return t.spec.DefaultState
}

// IsStable tells if the state is a stable state.
func (t *Table) IsStable(s coherence.State) bool {
	return t.stable[s]
}

// States returns the declared states.
func (t *Table) States() []StateSpec {
	return t.spec.States
}

// Lookup finds the transition for the pair.
func (t *Table) Lookup(s coherence.State, e Event) (Transition, bool) {
	tr, ok := t.edges[edgeKey{state: s, event: e}]
	return tr, ok
}

// Transitions lists every edge, ordered by declaration of states then
// events.
func (t *Table) Transitions() []Transition {
	stateOrder := make(map[coherence.State]int)
	for i, st := range t.spec.States {
		stateOrder[st.Name] = i
	}

	eventOrder := make(map[Event]int)
	for i, ev := range t.spec.Events {
		eventOrder[ev] = i
	}

	list := make([]Transition, 0, len(t.edges))
	for _, tr := range t.edges {
		list = append(list, tr)
	}

	sort.Slice(list, func(i, j int) bool {
		si, sj := stateOrder[list[i].From], stateOrder[list[j].From]
		if si != sj {
			return si < sj
		}

		return eventOrder[list[i].Event] < eventOrder[list[j].Event]
	})

	return list
}

// Protocol bundles the cache-side and directory-side tables of a coherence
// protocol variant.
type Protocol struct {
	Name        string
	Description string
	Cache       *Table
	Directory   *Table
}
