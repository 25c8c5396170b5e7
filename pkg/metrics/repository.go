package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultOK    = "ok"
	ResultError = "error"

	SubscriptionList = "list"
	SubscriptionItem = "item"
)

// RepositoryMetrics records item writes and live subscriptions.
type RepositoryMetrics struct {
	writes        *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
}

func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	if reg == nil {
		return &RepositoryMetrics{}
	}
	m := &RepositoryMetrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "item_writes_total",
			Help: "Item document writes by operation and result.",
		}, []string{"op", "result"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "item_subscriptions_active",
			Help: "Live item subscriptions by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.writes, m.subscriptions)
	return m
}

// ObserveWrite counts a save or delete outcome.
func (m *RepositoryMetrics) ObserveWrite(op string, err error) {
	if m == nil || m.writes == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.writes.WithLabelValues(normalizeLabel(op), result).Inc()
}

func (m *RepositoryMetrics) SubscriptionStarted(kind string) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RepositoryMetrics) SubscriptionStopped(kind string) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.WithLabelValues(normalizeLabel(kind)).Dec()
}
