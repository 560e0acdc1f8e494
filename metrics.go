package client

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsp-lqk/metapipe-redis/internal"
)

// Metrics exports connection counters to prometheus. One Metrics can be
// shared by any number of connections, series are labelled by address.
type Metrics struct {
	sent     *prometheus.CounterVec
	rejected *prometheus.CounterVec
	failures *prometheus.CounterVec
	waiting  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_redis",
			Name:      "commands_sent_total",
			Help:      "Commands queued for writing.",
		}, []string{"addr"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_redis",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected because the waiting queue was full.",
		}, []string{"addr"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_redis",
			Name:      "connection_failures_total",
			Help:      "Connections closed by a transport or protocol error.",
		}, []string{"addr"}),
		waiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "metapipe_redis",
			Name:      "waiting_requests",
			Help:      "Requests waiting for a reply, summed over the connections to an address.",
		}, []string{"addr"}),
	}
	for _, c := range []prometheus.Collector{m.sent, m.rejected, m.failures, m.waiting} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observer(addr string) internal.Observer {
	if m == nil {
		return nil
	}
	return &addrObserver{
		sent:     m.sent.WithLabelValues(addr),
		rejected: m.rejected.WithLabelValues(addr),
		failures: m.failures.WithLabelValues(addr),
		waiting:  m.waiting.WithLabelValues(addr),
	}
}

type addrObserver struct {
	sent     prometheus.Counter
	rejected prometheus.Counter
	failures prometheus.Counter
	waiting  prometheus.Gauge
}

func (o *addrObserver) Sent(commands int) {
	o.sent.Add(float64(commands))
}

func (o *addrObserver) Rejected() {
	o.rejected.Inc()
}

func (o *addrObserver) Failed() {
	o.failures.Inc()
}

func (o *addrObserver) Waiting(delta int) {
	o.waiting.Add(float64(delta))
}
