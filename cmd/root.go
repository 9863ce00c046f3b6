package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/amqpio/cmd/queue"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "amqpio",
		Short: "non-blocking AMQP 0-9-1 client",
		Long: fmt.Sprintf(`amqpio (v%s)

A non-blocking AMQP 0-9-1 client written in Go. A single connection
is shared by many channels, requests are correlated to their replies
and the connection is driven by one run loop.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of amqpio",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("amqpio v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(queue.QueueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
