package queue

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/amqpio/cmd/util"
	"github.com/ValentinKolb/amqpio/rpc/driver"
	"github.com/ValentinKolb/amqpio/rpc/transport"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Measures queue declarations over parallel channels of one connection",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfQueuePrefix = "__amqpio_perf"
	perfNumChannels = 10
	perfShowMetrics = false
)

func init() {
	key := "channels"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of channels (and goroutines) to use for the benchmark"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the driver and transport metrics after the benchmark"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumChannels = viper.GetInt("channels")
	perfShowMetrics = viper.GetBool("metrics")
	if perfNumChannels < 1 {
		return fmt.Errorf("at least one channel is needed")
	}
	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for AMQP brokers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Channels: %d\n", perfNumChannels)
	fmt.Println()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	// one channel per goroutine, channels are handed out round robin
	channels := make([]*transport.Channel, perfNumChannels)
	for i := range channels {
		ch, err := conn.OpenChannel(ctx, fmt.Sprintf("perf-%d", i))
		if err != nil {
			return err
		}
		channels[i] = ch
	}

	fmt.Println("starting tests...")

	var next atomic.Int64
	result := testing.Benchmark(func(b *testing.B) {
		// RunParallel starts parallelism * GOMAXPROCS goroutines
		procs := runtime.GOMAXPROCS(0)
		b.SetParallelism((perfNumChannels + procs - 1) / procs)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			ch := channels[int(next.Add(1))%len(channels)]
			queue := fmt.Sprintf("%s-%d", perfQueuePrefix, ch.ID)
			for pb.Next() {
				c, err := ch.DeclareQueue(queue, transport.QueueOptions{AutoDelete: true})
				if err != nil {
					log.Printf("(declare) - error sending request: %v\n", err)
					continue
				}
				if _, err := c.Wait(cmd.Context()); err != nil {
					log.Printf("(declare) - error waiting for reply: %v\n", err)
				}
			}
		})
	})
	printResult("declare", result)

	// cleanup
	for _, ch := range channels {
		c, err := ch.DeleteQueue(fmt.Sprintf("%s-%d", perfQueuePrefix, ch.ID), false, false)
		if err == nil {
			_, err = c.Wait(ctx)
		}
		if err != nil {
			log.Printf("(cleanup) - error deleting queue: %v\n", err)
		}
	}

	stats := conn.Stats()
	fmt.Printf("\nrequests: %d, failures: %d, lock misses: %d, runs: %d\n",
		stats.Requests, stats.Failures, stats.LockMisses, stats.Runs)
	fmt.Printf("latency: mean %s, p99 %s\n", stats.LatencyMean, stats.LatencyP99)

	if perfShowMetrics {
		fmt.Println("\nDriver metrics:")
		driver.WritePrometheus(os.Stdout, false)
		fmt.Println("\nTransport metrics:")
		metrics.WriteOnce(conn.Registry(), os.Stdout)
	}
	return nil
}

// printResult prints a benchmark result in a human readable format
func printResult(name string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Printf("%-10s skipped\n", name)
		return
	}
	perOp := max(time.Duration(result.NsPerOp()), time.Nanosecond)
	fmt.Printf("%-10s %8d ops  %12s/op  %10.0f ops/s\n", name, result.N, perOp, float64(time.Second)/float64(perOp))
}
