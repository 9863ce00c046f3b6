package protocol

import (
	"fmt"
	"time"
)

// State is the connection state. Closed and Error are terminal.
type State int32

const (
	Initial State = iota
	Connecting
	Connected
	Closing
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool { return s == Closed || s == Error }

// RequestID correlates one queued request with its reply
type RequestID uint64

// ProtocolError is a violation of the protocol by the broker, e.g. a reply that
// does not match the request it should answer
type ProtocolError struct {
	Channel uint16
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on channel %d: %s", e.Channel, e.Reason)
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

const (
	// DefaultFrameMax is the largest frame the client offers during tuning
	DefaultFrameMax = 128 * 1024

	// DefaultChannelMax is used until the broker tuned the connection
	DefaultChannelMax = 2047

	// DefaultResultTTL is how long a finished request waits to be claimed
	DefaultResultTTL = 5 * time.Minute
)

// Config holds the client side limits of a connection
type Config struct {
	// FrameMax is the largest frame size the client accepts, 0 uses DefaultFrameMax
	FrameMax uint32
	// ChannelMax is the highest channel id the client uses, 0 uses DefaultChannelMax
	ChannelMax uint16
	// ResultTTL bounds how long a finished but unclaimed result is kept, 0 uses DefaultResultTTL
	ResultTTL time.Duration
	// Now returns the current time, nil uses time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FrameMax == 0 {
		c.FrameMax = DefaultFrameMax
	}
	if c.ChannelMax == 0 {
		c.ChannelMax = DefaultChannelMax
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
