// Package stream provides the non-blocking byte streams the connection driver runs on.
//
// The package focuses on:
//   - Non-blocking reads and writes that report ErrWouldBlock instead of parking
//   - Readiness waits for the reactor that owns a connection
//   - Network specific dialing and socket tuning
//
// Key Components:
//
//   - Stream and Waiter: the interfaces the driver and the reactor depend on.
//
//   - Conn: wraps a TCP or Unix socket. Reads and writes call read(2) and write(2) on the
//     socket's descriptor through syscall.RawConn, so the Go runtime never blocks the
//     caller. Wait parks on the runtime poller and checks readiness with poll(2).
//
//   - IConnector: per network dialing (tcpConnector, unixConnector) with an
//     UpgradeConnection step that applies TCPConf and SocketConf.
//
//   - PipeEnd: an in-memory stream pair with bounded capacity, used to drive a
//     connection without a socket.
//
// Thread Safety:
//
//	Read, Write and Wait of one stream must be called from a single goroutine at a time.
//	The transport guarantees this by running the driver and the waits on its reactor.
//
// Conn relies on golang.org/x/sys/unix and is available on Unix platforms only. TLS is
// not supported since a TLS session cannot be driven through a raw descriptor.
package stream
