// Package transport bridges the poll driven connection driver to callers that
// issue requests and wait for replies. A Transport owns one broker connection
// and is shared by any number of channels and goroutines.
//
// The package focuses on:
//   - One coarse lock over the stream, both buffers and the protocol state
//   - A single request path: lock, queue one frame, unlock, return a Correlator
//   - Never blocking on the lock when polling for a reply
//
// Key Components:
//
//   - Transport: created with New for an established stream or with Dial for a
//     broker endpoint. Start launches the reactor goroutine; without it an external
//     scheduler drives the connection through Run (IRunner).
//
//   - Correlator: the suspendable wait for one reply (IPoller). Poll only uses
//     TryLock, handles buffered frames and reports the result once the request is
//     finished. Wait loops over Poll, sleeping on the transport's progress signal or
//     a backoff timer in between. A correlator can be dropped at any time.
//
//   - Channel: a handle of a channel id and its transport. Open, DeclareQueue,
//     DeleteQueue and Close all go through the same call path.
//
//   - Reactor: waits for stream readiness (stream.Waiter), runs the driver and sends
//     heartbeats. It stops once the connection is terminal.
//
//   - Stats: per transport request, failure, lock contention and latency metrics
//     kept in a go-metrics registry.
//
// Thread Safety:
//
//	Transport and Channel are safe for concurrent use. A single Correlator must be
//	polled by one goroutine at a time.
package transport
