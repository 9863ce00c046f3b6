// Package protocol provides the connection state machine of the AMQP client. It sits
// between the byte oriented driver and the channel API and knows which frames to send,
// which replies to expect and what a received frame means for the connection.
//
// The package focuses on:
//   - Centralizing every connection state transition
//   - Allocating channel ids and request ids
//   - Correlating replies with requests through a pending table
//   - Queuing pre-encoded outbound frames in FIFO order
//
// Key Components:
//
//   - Connection: the protocol state of one connection. The driver feeds it bytes through
//     Parse and drains it through Serialize, then reports written bytes through Flushed;
//     HandleFrames applies parsed frames. Connect, CreateChannel, ChannelOpen, Call and
//     Send queue requests, IsFinished and Result let callers observe replies. Channel
//     methods are only accepted once the connection is open.
//
//   - State: Initial, Connecting, Connected, Closing, Closed and Error. Closed and Error are
//     terminal: every unfinished request is failed when one of them is entered.
//
//   - Pending table: maps a RequestID to the recorded reply or error. Replies are matched
//     per channel in send order against the reply the request expects, a mismatch is a
//     fatal ProtocolError. Results nobody claims are pruned after Config.ResultTTL, so an
//     abandoned request never grows the table.
//
//   - Handshake and heartbeats: the connection answers connection.start and
//     connection.tune itself and keeps the negotiated heartbeat through Tick.
//
// Thread Safety:
//
//	A Connection is not safe for concurrent use. The owning transport serializes every
//	call with its lock.
package protocol
