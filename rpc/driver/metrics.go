package driver

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// process wide driver counters, exposed in the Prometheus text format by WritePrometheus
var (
	runsTotal          = metrics.NewCounter("amqpio_driver_runs_total")
	errorsTotal        = metrics.NewCounter("amqpio_driver_errors_total")
	bytesReadTotal     = metrics.NewCounter(`amqpio_driver_bytes_total{op="read"}`)
	bytesWrittenTotal  = metrics.NewCounter(`amqpio_driver_bytes_total{op="write"}`)
	wouldBlockRead     = metrics.NewCounter(`amqpio_driver_would_block_total{op="read"}`)
	wouldBlockWrite    = metrics.NewCounter(`amqpio_driver_would_block_total{op="write"}`)
	framesParsedTotal  = metrics.NewCounter("amqpio_driver_frames_parsed_total")
	incompleteTotal    = metrics.NewCounter("amqpio_driver_incomplete_frames_total")
	bufferGrowthsTotal = metrics.NewCounter("amqpio_driver_buffer_growths_total")
)

// WritePrometheus writes the driver counters (and the Go process metrics if
// withProcess is set) to w
func WritePrometheus(w io.Writer, withProcess bool) {
	metrics.WritePrometheus(w, withProcess)
}
