// Package codec provides the AMQP 0-9-1 wire encoding used by the connection driver.
// It encodes and decodes frames and the subset of methods the client speaks.
//
// The package focuses on:
//   - Encoding frames by appending to caller owned byte slices
//   - Decoding frames in place without consuming input on partial data
//   - Distinguishing "need more bytes" from malformed input
//   - Mapping synchronous requests to the reply method that completes them
//
// Key Components:
//
//   - Frame: one method, header, body or heartbeat frame. Method frames carry a decoded
//     Method value, all other frame types carry their raw payload.
//
//   - AppendFrame: big-endian encoder. Field tables are written with sorted keys so that
//     the same frame always produces the same bytes.
//
//   - Parse: decoder with a tagged outcome. It returns the frame and the bytes it occupied,
//     ErrIncomplete together with the total size the frame needs, or a *FrameError for input
//     the stream cannot recover from.
//
//   - Method: connection, channel and queue class methods. ExpectedReply reports which reply
//     completes a request, honoring the no-wait flag.
//
// Thread Safety:
//
//	All functions are stateless and safe for concurrent use. Decoded values never alias
//	the input slice, so the receive buffer may be compacted after Parse returns.
//
// Usage:
//
//	buf, err := codec.AppendFrame(nil, codec.MethodFrame(1, &codec.ChannelOpen{}))
//	// ... write buf ...
//	f, n, err := codec.Parse(received, frameMax)
//	if errors.Is(err, codec.ErrIncomplete) {
//	    // wait until at least n bytes are buffered
//	}
package codec
