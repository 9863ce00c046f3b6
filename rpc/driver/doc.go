// Package driver moves bytes between a non-blocking stream and the protocol state
// of a connection. It is the only place where the client performs socket I/O.
//
// The package focuses on:
//   - Making as much progress as possible without ever waiting
//   - Handing partial writes and incomplete frames across invocations
//   - Turning I/O failures into the Error state exactly once
//
// Key Components:
//
//   - Run: one invocation of the run loop. Each pass tries one write, one read and one
//     parse. The loop ends when none of the three can progress (would-block in both
//     directions and no complete frame buffered), on end of stream or when the
//     connection reaches a terminal state.
//
//   - Protocol: the methods Run needs from the connection state. *protocol.Connection
//     implements it, tests substitute simpler framings.
//
//   - Metrics: Prometheus counters for runs, bytes, would-block results, parsed frames
//     and buffer growth, exposed through WritePrometheus.
//
// Thread Safety:
//
//	Run is not safe for concurrent use on the same connection. The transport holds its
//	lock for the whole invocation.
package driver
