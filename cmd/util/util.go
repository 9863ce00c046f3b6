package util

import (
	"context"
	"strings"

	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the broker connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "network"
	cmd.PersistentFlags().String(key, defaults.Network, WrapString("The network to dial the broker on (tcp, unix)"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, defaults.Endpoint, WrapString("The address of the broker (host:port for tcp, socket path for unix)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, defaults.TimeoutSecond, WrapString("The timeout in seconds for dialing and the handshake"))

	key = "username"
	cmd.PersistentFlags().String(key, defaults.Options.Username, WrapString("The user name for PLAIN authentication"))

	key = "password"
	cmd.PersistentFlags().String(key, defaults.Options.Password, WrapString("The password for PLAIN authentication"))

	key = "vhost"
	cmd.PersistentFlags().String(key, defaults.Options.VirtualHost, WrapString("The virtual host to open"))

	key = "heartbeat"
	cmd.PersistentFlags().Int(key, int(defaults.Options.Heartbeat), WrapString("The requested heartbeat interval in seconds (0 disables heartbeats)"))

	key = "buffer-size"
	cmd.PersistentFlags().Int(key, defaults.BufferSize/1024, WrapString("The initial size of the send and the receive buffer (in KB)"))

	key = "max-buffer-size"
	cmd.PersistentFlags().Int(key, defaults.MaxBufferSize/1024, WrapString("The size the buffers may grow to for large frames (in KB)"))

	key = "result-ttl"
	cmd.PersistentFlags().Int(key, defaults.ResultTTLSecond, WrapString("How long an unclaimed request result is kept (in seconds)"))

	key = "socket-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The kernel write buffer of the socket (in KB, 0 keeps the system default)"))

	key = "socket-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The kernel read buffer of the socket (in KB, 0 keeps the system default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, defaults.TCPConf.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, defaults.TCPConf.TCPKeepAliveSec, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, defaults.TCPConf.TCPLingerSec, WrapString("The linger time (in seconds, negative keeps the system default, only for tcp)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("The log level (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("amqpio")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Network:         viper.GetString("network"),
		Endpoint:        viper.GetString("endpoint"),
		TimeoutSecond:   viper.GetInt("timeout"),
		BufferSize:      viper.GetInt("buffer-size") * 1024,
		MaxBufferSize:   viper.GetInt("max-buffer-size") * 1024,
		ResultTTLSecond: viper.GetInt("result-ttl"),
		Options: common.ConnectionOptions{
			Username:    viper.GetString("username"),
			Password:    viper.GetString("password"),
			Heartbeat:   uint16(viper.GetUint("heartbeat")),
			VirtualHost: viper.GetString("vhost"),
		},
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
		LogLevel: viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// Connect sets up logging and dials the broker described by the flags
func Connect(ctx context.Context) (*transport.Transport, *common.ClientConfig, error) {
	config := GetClientConfig()
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, nil, err
	}

	t, err := transport.Dial(ctx, *config)
	if err != nil {
		return nil, nil, err
	}
	return t, config, nil
}
