package coherence

import "github.com/sarchlab/rubysim/sim/hooking"

// HookPosTransition marks a controller taking a protocol transition. The
// hook item is the trigger, either a *Msg or a *Transaction, and the detail
// is a TransitionInfo.
var HookPosTransition = &hooking.HookPos{Name: "Transition"}

// TransitionInfo describes a transition taken by a controller.
type TransitionInfo struct {
	Machine    MachineType
	Controller ControllerID
	Addr       uint64
	From       State
	To         State
	Event      string
}
