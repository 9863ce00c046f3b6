package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Sentinel errors
// --------------------------------------------------------------------------

var (
	// ErrConnectionAborted is returned by every operation on a connection that reached the error state
	ErrConnectionAborted = errors.New("connection aborted")

	// ErrConnectionClosed is returned for requests that were still pending when the connection closed
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSequencing marks an operation issued in a state that does not allow it,
	// e.g. reading from the stream before the handshake was started
	ErrSequencing = errors.New("sequencing fault")

	// ErrChannelClosed is returned for operations on a channel that is no longer open
	ErrChannelClosed = errors.New("channel closed")

	// ErrNoFreeChannel is returned if all channel ids up to the negotiated maximum are in use
	ErrNoFreeChannel = errors.New("no free channel id")

	// ErrRequestExpired is returned for a request whose result was pruned before it was collected
	ErrRequestExpired = errors.New("request result expired")

	// ErrUnknownRequest is returned for request ids that were never issued by the connection
	ErrUnknownRequest = errors.New("unknown request id")

	// ErrHeartbeatTimeout is set as connection error if the broker stays silent for two heartbeat intervals
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// --------------------------------------------------------------------------
// Broker errors
// --------------------------------------------------------------------------

// AMQPError is a close reason sent by the broker with connection.close or channel.close
type AMQPError struct {
	Channel  uint16 // 0 for connection level errors
	Code     uint16
	Text     string
	ClassID  uint16 // class of the method that caused the close (0 if unknown)
	MethodID uint16 // method that caused the close (0 if unknown)
}

func (e *AMQPError) Error() string {
	if e.Channel == 0 {
		return fmt.Sprintf("connection closed by broker: %d %s (class %d, method %d)", e.Code, e.Text, e.ClassID, e.MethodID)
	}
	return fmt.Sprintf("channel %d closed by broker: %d %s (class %d, method %d)", e.Channel, e.Code, e.Text, e.ClassID, e.MethodID)
}
