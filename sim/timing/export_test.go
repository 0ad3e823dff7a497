package timing

import "github.com/sarchlab/rubysim/sim/hooking"

type hookCtx = hooking.HookCtx
