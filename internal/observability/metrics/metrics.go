package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the widget chat pipeline.
// All observe methods are nil-safe so wiring can skip metrics in tests.
type ChatMetrics struct {
	messagesTotal      *prometheus.CounterVec
	leadsTotal         *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	messageLatency     prometheus.Histogram
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatechat",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total visitor messages handled",
		}, []string{"status"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatechat",
			Subsystem: "chat",
			Name:      "leads_created_total",
			Help:      "Total leads created from conversations",
		}, []string{"intent"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatechat",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total lead notification attempts",
		}, []string{"status"}),
		messageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "estatechat",
			Subsystem: "chat",
			Name:      "message_latency_seconds",
			Help:      "Latency of handling one visitor message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.leadsTotal, m.notificationsTotal, m.messageLatency)
	return m
}

func (m *ChatMetrics) ObserveMessage(status string, seconds float64) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(status).Inc()
	m.messageLatency.Observe(seconds)
}

func (m *ChatMetrics) ObserveLeadCreated(intent string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(intent).Inc()
}

func (m *ChatMetrics) ObserveNotification(status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(status).Inc()
}
