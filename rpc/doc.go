// Package rpc provides the transport and session layer of the AMQP 0-9-1 client.
// It turns a byte stream into a connection that many goroutines can issue
// requests on and wait for their replies.
//
// The package is organized into several subpackages, from the wire upwards:
//
//   - common: Configuration structures, error values and logging shared by all layers.
//
//   - codec: AMQP frame and method encoding. Parsing reports incomplete input so the
//     caller can read more and retry.
//
//   - stream: Non-blocking byte streams over TCP and Unix sockets plus an in-memory
//     pipe, with readiness notifications.
//
//   - protocol: The connection state machine. It queues outbound frames, consumes
//     inbound frames, tracks channels and correlates requests with their replies.
//
//   - driver: One non-blocking round of I/O between a stream and the protocol state,
//     with the send and receive buffers in between.
//
//   - transport: The concurrent facade. It owns the connection behind a mutex, hands
//     out channels and correlators, and runs an optional reactor goroutine that drives
//     the connection and keeps the heartbeat going.
package rpc
