package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Connection options (consumed once by the handshake)
// --------------------------------------------------------------------------

// ConnectionOptions holds the credentials and tuning values sent during the handshake
type ConnectionOptions struct {
	Username string
	Password string
	// Heartbeat is the requested heartbeat interval in seconds, 0 disables heartbeats
	Heartbeat   uint16
	VirtualHost string
}

// DefaultConnectionOptions returns the options of a default broker installation
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		Username:    "guest",
		Password:    "guest",
		Heartbeat:   60,
		VirtualHost: "/",
	}
}

// --------------------------------------------------------------------------
// Socket configuration
// --------------------------------------------------------------------------

// SocketConf holds the kernel buffer sizes applied to a dialed socket
type SocketConf struct {
	WriteBufferSize int // 0 keeps the system default
	ReadBufferSize  int // 0 keeps the system default
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 disables keep-alive
	TCPLingerSec    int // negative keeps the system default
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

const (
	DefaultBufferSize      = 64 * 1024
	DefaultMaxBufferSize   = 4 * 1024 * 1024
	DefaultResultTTLSecond = 300
)

// ClientConfig holds all parameters needed to dial and drive one broker connection
type ClientConfig struct {
	// Network is "tcp" or "unix"
	Network  string
	Endpoint string

	// TimeoutSecond bounds dialing and the handshake, 0 waits forever
	TimeoutSecond int

	// initial and maximum size of the send and the receive buffer
	BufferSize    int
	MaxBufferSize int

	// ResultTTLSecond is how long a finished but unclaimed request result is kept
	ResultTTLSecond int

	Options ConnectionOptions

	SocketConf SocketConf
	TCPConf    TCPConf

	// Logging configuration
	LogLevel string
}

// DefaultClientConfig returns a configuration for a local broker
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Network:         "tcp",
		Endpoint:        "localhost:5672",
		TimeoutSecond:   10,
		BufferSize:      DefaultBufferSize,
		MaxBufferSize:   DefaultMaxBufferSize,
		ResultTTLSecond: DefaultResultTTLSecond,
		Options:         DefaultConnectionOptions(),
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
		LogLevel: "info",
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Connection")
	addField("Network", c.Network)
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Virtual Host", c.Options.VirtualHost)
	addField("Username", c.Options.Username)
	addField("Heartbeat", fmt.Sprintf("%d sec", c.Options.Heartbeat))

	addSection("Buffers")
	addField("Initial Size", strconv.Itoa(c.BufferSize))
	addField("Maximum Size", strconv.Itoa(c.MaxBufferSize))
	addField("Result TTL", fmt.Sprintf("%d sec", c.ResultTTLSecond))

	addSection("Socket")
	addField("Write Buffer", strconv.Itoa(c.SocketConf.WriteBufferSize))
	addField("Read Buffer", strconv.Itoa(c.SocketConf.ReadBufferSize))
	if c.Network == "tcp" {
		addField("TCP NoDelay", strconv.FormatBool(c.TCPConf.TCPNoDelay))
		addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCPConf.TCPKeepAliveSec))
		addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPConf.TCPLingerSec))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
