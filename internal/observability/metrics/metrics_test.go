package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestChatMetricsObserve(t *testing.T) {
	m := NewChatMetrics(prometheus.NewRegistry())
	m.ObserveMessage("ok", 0.05)
	m.ObserveMessage("rejected", 0.001)
	m.ObserveLeadCreated("buying")
	m.ObserveNotification("sent")
}

func TestChatMetricsDefaultRegistry(t *testing.T) {
	m := NewChatMetrics(nil)
	m.ObserveLeadCreated("selling")
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveMessage("ok", 0.1)
	m.ObserveLeadCreated("buying")
	m.ObserveNotification("failed")
}
