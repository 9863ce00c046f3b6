package queue

import (
	"fmt"

	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/transport"
	"github.com/spf13/cobra"
)

var (
	declareCmd = &cobra.Command{
		Use:   "declare [queue]",
		Short: "Declares a queue and prints its message and consumer count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			opts := transport.QueueOptions{}
			opts.Passive, _ = cmd.Flags().GetBool("passive")
			opts.Durable, _ = cmd.Flags().GetBool("durable")
			opts.Exclusive, _ = cmd.Flags().GetBool("exclusive")
			opts.AutoDelete, _ = cmd.Flags().GetBool("auto-delete")

			ch, err := conn.OpenChannel(ctx, "declare")
			if err != nil {
				return err
			}
			c, err := ch.DeclareQueue(args[0], opts)
			if err != nil {
				return err
			}
			reply, err := c.Wait(ctx)
			if err != nil {
				return err
			}

			ok := reply.(*codec.QueueDeclareOk)
			fmt.Printf("queue %q declared (messages: %d, consumers: %d)\n", ok.Queue, ok.MessageCount, ok.ConsumerCount)
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [queue]",
		Short: "Deletes a queue and prints the number of dropped messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			ifUnused, _ := cmd.Flags().GetBool("if-unused")
			ifEmpty, _ := cmd.Flags().GetBool("if-empty")

			ch, err := conn.OpenChannel(ctx, "delete")
			if err != nil {
				return err
			}
			c, err := ch.DeleteQueue(args[0], ifUnused, ifEmpty)
			if err != nil {
				return err
			}
			reply, err := c.Wait(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("queue %q deleted (messages dropped: %d)\n", args[0], reply.(*codec.QueueDeleteOk).MessageCount)
			return nil
		},
	}
)

func init() {
	declareCmd.Flags().Bool("passive", false, "Only check that the queue exists")
	declareCmd.Flags().Bool("durable", false, "Keep the queue across broker restarts")
	declareCmd.Flags().Bool("exclusive", false, "Restrict the queue to this connection")
	declareCmd.Flags().Bool("auto-delete", false, "Delete the queue once its last consumer is gone")

	deleteCmd.Flags().Bool("if-unused", false, "Only delete the queue if it has no consumers")
	deleteCmd.Flags().Bool("if-empty", false, "Only delete the queue if it has no messages")
}
