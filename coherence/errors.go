package coherence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSequencerBusy is matched by every SequencerBusyError.
var ErrSequencerBusy = errors.New("sequencer busy")

// ErrLinkSaturated is returned by the network when a link cannot accept a
// message this cycle. It is handled by the sender and never surfaced.
var ErrLinkSaturated = errors.New("link saturated")

// ErrTransactionInFlight is returned when aborting a transaction whose
// messages have already left the issuing controller.
var ErrTransactionInFlight = errors.New("transaction in flight")

// ConfigurationError reports an invalid system configuration. It is raised
// at startup, before simulation begins.
type ConfigurationError struct {
	Option string
	Reason string
	Cause  error
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(option, reason string, cause error) *ConfigurationError {
	return &ConfigurationError{Option: option, Reason: reason, Cause: cause}
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder

	b.WriteString("configuration error")

	if e.Option != "" {
		fmt.Fprintf(&b, " (%s)", e.Option)
	}

	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// ProtocolViolation reports a state/event combination that the protocol does
// not define. It indicates a bug in the protocol and aborts the run.
type ProtocolViolation struct {
	Machine    MachineType
	Controller ControllerID
	Addr       uint64
	State      State
	Event      string
	Detail     string

	// Involved holds the state of the address at every controller, filled in
	// when the run aborts.
	Involved map[ControllerID]State

	// History is the recent message traffic for the address.
	History []MsgRecord
}

func (e *ProtocolViolation) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "protocol violation: %s %d has no transition for "+
		"event %s in state %s at address 0x%x",
		e.Machine, e.Controller, e.Event, e.State, e.Addr)

	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}

	if len(e.Involved) > 0 {
		ids := make([]int, 0, len(e.Involved))
		for id := range e.Involved {
			ids = append(ids, int(id))
		}

		sort.Ints(ids)

		b.WriteString("\n  states:")

		for _, id := range ids {
			fmt.Fprintf(&b, " %d=%s", id, e.Involved[ControllerID(id)])
		}
	}

	if len(e.History) > 0 {
		b.WriteString("\n  history:")

		for _, r := range e.History {
			fmt.Fprintf(&b, "\n    %s", r)
		}
	}

	return b.String()
}

// SequencerBusyError is returned when a core already has the maximum number
// of outstanding transactions. The core should retry later.
type SequencerBusyError struct {
	Core  int
	Limit int
}

func (e *SequencerBusyError) Error() string {
	return fmt.Sprintf("sequencer busy: core %d has %d outstanding transactions",
		e.Core, e.Limit)
}

// Is makes errors.Is(err, ErrSequencerBusy) hold.
func (e *SequencerBusyError) Is(target error) bool {
	return target == ErrSequencerBusy
}
