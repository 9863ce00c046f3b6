package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("stream")

// ErrWouldBlock is returned by Read and Write if no byte can be transferred right now
var ErrWouldBlock = errors.New("operation would block")

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Stream is a non-blocking duplex byte stream
type Stream interface {
	// Read reads into p without blocking. It returns ErrWouldBlock if nothing is
	// buffered and io.EOF once the peer closed the stream.
	Read(p []byte) (int, error)
	// Write writes a prefix of p without blocking. It returns ErrWouldBlock if the
	// stream cannot take a single byte.
	Write(p []byte) (int, error)
	// Close closes the stream
	Close() error
}

// Waiter is implemented by streams that can block until they are ready
type Waiter interface {
	// Wait returns once the stream is readable (or writable if write is set), the
	// interrupt channel receives, or ctx is done. Spurious returns are allowed.
	Wait(ctx context.Context, interrupt <-chan struct{}, write bool) error
}

// IConnector defines the transport specific dialing operations
type IConnector interface {
	// Connect establishes a connection to the endpoint, a zero timeout waits forever
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the network (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies network specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// --------------------------------------------------------------------------
// Dialing
// --------------------------------------------------------------------------

var connectors = map[string]IConnector{
	"tcp":  &tcpConnector{},
	"unix": &unixConnector{},
}

// Dial connects to config.Endpoint over config.Network and returns a non-blocking stream
func Dial(ctx context.Context, config common.ClientConfig) (*Conn, error) {
	connector, ok := connectors[config.Network]
	if !ok {
		return nil, fmt.Errorf("unsupported network %q", config.Network)
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}

	nc, err := connector.Connect(config.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Endpoint, err)
	}

	// Upgrade the connection with network specific settings
	if err := connector.UpgradeConnection(nc, config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", config.Endpoint, err)
	}

	conn, err := NewConn(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	Logger.Infof("Connected to %s using %s", config.Endpoint, connector.GetName())
	return conn, nil
}
