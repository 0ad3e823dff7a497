package tracing

import (
	"log"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// MsgLogger is a hook for logging messages as they go across a network.
type MsgLogger struct {
	*log.Logger
	timeTeller timing.TimeTeller
}

// NewMsgLogger returns a new MsgLogger which will write into the logger.
func NewMsgLogger(logger *log.Logger, timeTeller timing.TimeTeller) *MsgLogger {
	return &MsgLogger{
		Logger:     logger,
		timeTeller: timeTeller,
	}
}

// Func writes the message information into the logger.
func (h *MsgLogger) Func(ctx hooking.HookCtx) {
	msg, ok := ctx.Item.(*coherence.Msg)
	if !ok {
		return
	}

	h.Printf("%d,%s,%s,%d,%d,0x%x,%d\n",
		h.timeTeller.CurrentTime(),
		ctx.Pos.Name,
		msg.Type,
		msg.Src,
		msg.Dst,
		msg.Addr,
		msg.ID)
}
