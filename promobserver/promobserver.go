// Package promobserver implements mirrorset.Observer with Prometheus
// metrics, for processes that want the reconfiguration registry and
// leg-failure events visible to a scrape endpoint rather than (or in
// addition to) the built-in Metrics/MetricsObserver snapshot.
package promobserver

import (
	"strconv"

	"github.com/blockmirror/mirrorset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer implements mirrorset.Observer, labeling every series with
// the owning device name so a single registry serves many MirrorSets.
type Observer struct {
	device string

	readTotal    *prometheus.CounterVec
	writeTotal   *prometheus.CounterVec
	discardTotal *prometheus.CounterVec
	readBytes    prometheus.Counter
	writeBytes   prometheus.Counter
	flushTotal   *prometheus.CounterVec
	readLatency  prometheus.Histogram

	legFailures *prometheus.CounterVec
	retryTotal  *prometheus.CounterVec
	reconfigs   prometheus.Counter
}

// New registers a fresh set of Prometheus collectors labeled with
// device, against reg. Pass prometheus.DefaultRegisterer for the
// global registry, or a dedicated one in tests.
func New(reg prometheus.Registerer, device string) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		device: device,

		readTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_read_ops_total",
			Help: "Completed read operations, by outcome.",
		}, []string{"device", "result"}),

		writeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_write_ops_total",
			Help: "Completed write operations, by outcome.",
		}, []string{"device", "result"}),

		readBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "mirrorset_read_bytes_total",
			Help:        "Bytes successfully read.",
			ConstLabels: prometheus.Labels{"device": device},
		}),

		writeBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "mirrorset_write_bytes_total",
			Help:        "Bytes fanned out by successful writes.",
			ConstLabels: prometheus.Labels{"device": device},
		}),

		discardTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_discard_ops_total",
			Help: "Completed discard/trim operations, by outcome.",
		}, []string{"device", "result"}),

		flushTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_flush_ops_total",
			Help: "Completed flush operations, by outcome.",
		}, []string{"device", "result"}),

		readLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "mirrorset_read_latency_seconds",
			Help:        "Read latency including any retry through a surviving leg.",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
			ConstLabels: prometheus.Labels{"device": device},
		}),

		legFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_leg_failures_total",
			Help: "fail_mirror transitions, by leg and fault kind.",
		}, []string{"device", "leg", "kind"}),

		retryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorset_retry_total",
			Help: "Read retries dispatched by the background retry worker, by outcome.",
		}, []string{"device", "result"}),

		reconfigs: factory.NewCounter(prometheus.CounterOpts{
			Name:        "mirrorset_reconfigs_total",
			Help:        "Table swaps handled by the reconfiguration registry.",
			ConstLabels: prometheus.Labels{"device": device},
		}),
	}
}

func (o *Observer) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.readTotal.WithLabelValues(o.device, result(success)).Inc()
	o.readLatency.Observe(float64(latencyNs) / 1e9)
	if success {
		o.readBytes.Add(float64(bytes))
	}
}

func (o *Observer) ObserveWrite(bytes uint64, _ uint64, success bool) {
	o.writeTotal.WithLabelValues(o.device, result(success)).Inc()
	if success {
		o.writeBytes.Add(float64(bytes))
	}
}

func (o *Observer) ObserveDiscard(_ uint64, _ uint64, success bool) {
	o.discardTotal.WithLabelValues(o.device, result(success)).Inc()
}

func (o *Observer) ObserveFlush(_ uint64, success bool) {
	o.flushTotal.WithLabelValues(o.device, result(success)).Inc()
}

func (o *Observer) ObserveLegFailure(legIndex int, kind mirrorset.ErrorKind) {
	o.legFailures.WithLabelValues(o.device, strconv.Itoa(legIndex), kind.String()).Inc()
}

func (o *Observer) ObserveRetry(success bool) {
	o.retryTotal.WithLabelValues(o.device, result(success)).Inc()
}

func (o *Observer) ObserveReconfig() {
	o.reconfigs.Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

var _ mirrorset.Observer = (*Observer)(nil)
