package base

import (
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// transportMetrics holds the counters of one transport instance. Each
// transport owns its own metrics.Set so several clients can live in one
// process without name clashes.
type transportMetrics struct {
	set *metrics.Set

	dials       *metrics.Counter
	dialErrors  *metrics.Counter
	reuses      *metrics.Counter
	evictions   *metrics.Counter
	discards    *metrics.Counter
	requests    *metrics.Counter
	failures    *metrics.Counter
	retries     *metrics.Counter
	exchangeDur *metrics.Histogram
}

func newTransportMetrics(p *ConnPool) *transportMetrics {
	set := metrics.NewSet()
	m := &transportMetrics{
		set:         set,
		dials:       set.NewCounter("ahnlich_pool_dials_total"),
		dialErrors:  set.NewCounter("ahnlich_pool_dial_errors_total"),
		reuses:      set.NewCounter("ahnlich_pool_reuses_total"),
		evictions:   set.NewCounter("ahnlich_pool_evictions_total"),
		discards:    set.NewCounter("ahnlich_pool_discards_total"),
		requests:    set.NewCounter("ahnlich_requests_total"),
		failures:    set.NewCounter("ahnlich_request_failures_total"),
		retries:     set.NewCounter("ahnlich_request_retries_total"),
		exchangeDur: set.NewHistogram("ahnlich_exchange_duration_seconds"),
	}
	if p != nil {
		set.NewGauge("ahnlich_pool_idle_connections", func() float64 { return float64(p.Stats().Idle) })
		set.NewGauge("ahnlich_pool_open_connections", func() float64 { return float64(p.Stats().Open) })
	}
	return m
}

// observeExchange records one finished exchange
func (m *transportMetrics) observeExchange(start time.Time, err error) {
	m.requests.Inc()
	if err != nil {
		m.failures.Inc()
	}
	m.exchangeDur.UpdateDuration(start)
}

// WritePrometheus writes all metrics in the Prometheus text format to w
func (m *transportMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
