// Package common provides the types shared by all layers of the AMQP client:
// configuration, error values and the logger integration.
//
// The package focuses on:
//   - Connection options consumed by the handshake (credentials, heartbeat, virtual host)
//   - Client configuration for dialing and buffer sizing
//   - Error values that cross package boundaries
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - ConnectionOptions: credentials and tuning values, defaulting to
//     {"guest", "guest", 60, "/"}.
//
//   - ClientConfig: dialing parameters (network, endpoint, timeout), buffer sizes,
//     socket options and the connection options.
//
//   - Errors: ErrConnectionAborted is the stable error every operation returns once a
//     connection reached the error state. AMQPError carries a close reason sent by the
//     broker.
//
//   - Logger: named loggers ("driver", "protocol", "transport", "stream", "amqpio")
//     created through Dragonboat's logger factory with a consistent format.
package common
