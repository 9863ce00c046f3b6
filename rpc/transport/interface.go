package transport

import (
	"errors"

	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// ErrBusy is returned by Transport.Run if another participant holds the lock
var ErrBusy = errors.New("transport busy")

// --------------------------------------------------------------------------
// Interface Definitions for external schedulers
// --------------------------------------------------------------------------

// IPoller is a suspendable unit of work. Poll never blocks: it reports false
// until the work is done and is called again by the scheduler later.
type IPoller interface {
	Poll() (done bool, err error)
}

// IRunner is the driver side of a transport that an external scheduler calls
// whenever its stream signalled readiness or new frames were queued
type IRunner interface {
	Run() (protocol.State, error)
}
