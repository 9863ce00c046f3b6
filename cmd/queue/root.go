package queue

import (
	"context"
	"time"

	"github.com/ValentinKolb/amqpio/cmd/util"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/transport"
	"github.com/spf13/cobra"
)

var (
	conn   *transport.Transport
	config *common.ClientConfig

	// QueueCommands represents the queue command group
	QueueCommands = &cobra.Command{
		Use:                "queue",
		Short:              "Perform queue operations on a broker",
		PersistentPreRunE:  setupConnection,
		PersistentPostRunE: closeConnection,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add the broker connection flags to the queue command
	util.SetupClientFlags(QueueCommands)

	// Add subcommands
	QueueCommands.AddCommand(declareCmd)
	QueueCommands.AddCommand(deleteCmd)
	QueueCommands.AddCommand(perfTestCmd)
}

// setupConnection dials the broker and completes the handshake
func setupConnection(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	conn, config, err = util.Connect(cmd.Context())
	return err
}

// closeConnection closes the connection gracefully
func closeConnection(cmd *cobra.Command, _ []string) error {
	if conn == nil {
		return nil
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	return conn.Close(ctx)
}

// requestContext bounds a single request by the configured timeout
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if config.TimeoutSecond <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), time.Duration(config.TimeoutSecond)*time.Second)
}
