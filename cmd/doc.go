// Package cmd implements the command-line interface of amqpio. It provides a
// hierarchical command structure for talking to an AMQP 0-9-1 broker.
//
// The package is organized into several subpackages:
//
//   - queue: Commands for queue operations (declare, delete) and a benchmark
//     that runs many channels over one connection
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See amqpio -help for a list of all commands.
package cmd
