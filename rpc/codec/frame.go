package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lithdew/bytesutil"
)

// frame types
const (
	FrameMethod    uint8 = 1
	FrameHeader    uint8 = 2
	FrameBody      uint8 = 3
	FrameHeartbeat uint8 = 8
)

const (
	// FrameEnd terminates every frame
	FrameEnd uint8 = 0xCE

	// FrameHeaderSize is type (1) + channel (2) + payload size (4)
	FrameHeaderSize = 7

	// FrameOverhead is the header plus the frame end octet
	FrameOverhead = FrameHeaderSize + 1

	// FrameMinSize is the smallest frame_max a peer may negotiate
	FrameMinSize = 4096
)

// ProtocolHeader opens every connection (AMQP 0-9-1)
var ProtocolHeader = []byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// ErrIncomplete is returned by Parse if the source does not yet hold a complete frame.
// It is a transient condition: the caller waits for more input and never retries
// on the same bytes.
var ErrIncomplete = errors.New("incomplete frame")

// FrameError is a fatal decoding error, the stream cannot be resynchronized after it
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return "malformed frame: " + e.Reason
}

func (e *FrameError) Unwrap() error { return e.Err }

// Frame is one decoded or to-be-encoded frame.
// Method frames carry Method, all other types carry the raw Payload.
type Frame struct {
	Type    uint8
	Channel uint16
	Method  Method
	Payload []byte
}

func (f Frame) String() string {
	switch f.Type {
	case FrameMethod:
		return fmt.Sprintf("frame(ch=%d, %s)", f.Channel, f.Method.ID())
	case FrameHeartbeat:
		return "frame(heartbeat)"
	default:
		return fmt.Sprintf("frame(ch=%d, type=%d, %d bytes)", f.Channel, f.Type, len(f.Payload))
	}
}

// MethodFrame wraps a method for channel
func MethodFrame(channel uint16, m Method) Frame {
	return Frame{Type: FrameMethod, Channel: channel, Method: m}
}

// HeartbeatFrame returns the heartbeat frame (always on channel 0)
func HeartbeatFrame() Frame {
	return Frame{Type: FrameHeartbeat}
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// AppendFrame appends the wire representation of f to dst
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	start := len(dst)
	dst = append(dst, f.Type)
	dst = bytesutil.AppendUint16BE(dst, f.Channel)
	sizePos := len(dst)
	dst = bytesutil.AppendUint32BE(dst, 0)

	switch f.Type {
	case FrameMethod:
		if f.Method == nil {
			return dst[:start], errors.New("method frame without method")
		}
		id := f.Method.ID()
		dst = bytesutil.AppendUint16BE(dst, id.Class())
		dst = bytesutil.AppendUint16BE(dst, id.Method())
		var err error
		if dst, err = f.Method.appendArgs(dst); err != nil {
			return dst[:start], fmt.Errorf("encoding %s: %w", id, err)
		}
	case FrameHeartbeat:
		if f.Channel != 0 {
			return dst[:start], fmt.Errorf("heartbeat on channel %d", f.Channel)
		}
	default:
		dst = append(dst, f.Payload...)
	}

	size := len(dst) - sizePos - 4
	copy(dst[sizePos:], bytesutil.AppendUint32BE(nil, uint32(size)))
	return append(dst, FrameEnd), nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// Parse decodes one frame from the start of src without modifying it.
//
// The outcomes are:
//   - success: the frame and the number of bytes it occupied
//   - ErrIncomplete: n is the number of bytes the complete frame needs (at least
//     FrameHeaderSize), nothing was consumed
//   - *FrameError: the input is malformed
//
// frameMax bounds the total frame size, 0 disables the check.
func Parse(src []byte, frameMax uint32) (f Frame, n int, err error) {
	// a broker that refuses our protocol version answers with its own header
	if len(src) > 0 && src[0] == 'A' {
		if len(src) < len(ProtocolHeader) {
			return f, len(ProtocolHeader), ErrIncomplete
		}
		if bytes.HasPrefix(src, []byte("AMQP")) {
			return f, 0, &FrameError{Reason: fmt.Sprintf("broker rejected protocol version, it supports %v", src[4:8])}
		}
	}

	if len(src) < FrameHeaderSize {
		return f, FrameHeaderSize, ErrIncomplete
	}

	f.Type = src[0]
	f.Channel = bytesutil.Uint16BE(src[1:3])
	size := bytesutil.Uint32BE(src[3:7])

	total := uint64(size) + FrameOverhead
	if frameMax > 0 && total > uint64(frameMax) {
		return Frame{}, 0, &FrameError{Reason: fmt.Sprintf("frame of %d bytes exceeds frame_max %d", total, frameMax)}
	}
	if uint64(len(src)) < total {
		return Frame{}, int(total), ErrIncomplete
	}

	n = int(total)
	if src[n-1] != FrameEnd {
		return Frame{}, 0, &FrameError{Reason: fmt.Sprintf("bad frame end octet 0x%02x", src[n-1])}
	}
	payload := src[FrameHeaderSize : n-1]

	switch f.Type {
	case FrameMethod:
		f.Method, err = parseMethod(payload)
		if err != nil {
			return Frame{}, 0, err
		}
	case FrameHeartbeat:
		if f.Channel != 0 {
			return Frame{}, 0, &FrameError{Reason: fmt.Sprintf("heartbeat on channel %d", f.Channel)}
		}
	case FrameHeader, FrameBody:
		f.Payload = make([]byte, len(payload))
		copy(f.Payload, payload)
	default:
		return Frame{}, 0, &FrameError{Reason: fmt.Sprintf("unknown frame type %d", f.Type)}
	}

	return f, n, nil
}

func parseMethod(payload []byte) (Method, error) {
	r := &reader{buf: payload}
	id := NewMethodID(r.short(), r.short())
	if r.err != nil {
		return nil, &FrameError{Reason: "method frame too short", Err: r.err}
	}

	m, ok := newMethod(id)
	if !ok {
		return nil, &FrameError{Reason: fmt.Sprintf("unsupported method %s", id)}
	}

	m.readArgs(r)
	if r.err != nil {
		return nil, &FrameError{Reason: "decoding " + id.String(), Err: r.err}
	}
	return m, nil
}
