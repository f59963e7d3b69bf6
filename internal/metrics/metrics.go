// Package metrics exposes Prometheus counters for the USB transport and
// Interface façade. None of this is on the critical path for correctness;
// it exists so a host process can observe transfer and frame throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BulkInFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsusb_bulk_in_frames_total",
		Help: "Total HostFrames decoded off the bulk-IN endpoint.",
	})
	BulkOutFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsusb_bulk_out_frames_total",
		Help: "Total HostFrames submitted on the bulk-OUT endpoint.",
	})
	ControlRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsusb_control_requests_total",
		Help: "Total vendor control requests issued, by breq name.",
	}, []string{"request"})
	TransferErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gsusb_transfer_errors_total",
		Help: "Total transfer failures, by op.",
	}, []string{"op"})
	RxQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gsusb_rx_queue_depth",
		Help: "Frames buffered in the rx channel right after the most recent bulk-IN enqueue.",
	})
	LoopbackEchoes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsusb_loopback_echoes_total",
		Help: "Total received frames identified as loopback echoes of a prior send.",
	})
)
