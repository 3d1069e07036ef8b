package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook relay.
type RelayMetrics struct {
	inboundTotal   *prometheus.CounterVec
	agentCalls     *prometheus.CounterVec
	agentLatency   *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "inbound_total",
			Help:      "Inbound webhook requests by outcome",
		}, []string{"outcome"}),
		agentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "agent_calls_total",
			Help:      "Agent calls by operation and result",
		}, []string{"op", "result"}),
		agentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "agent_latency_seconds",
			Help:      "Latency of agent calls including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 10},
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "session_store_errors_total",
			Help:      "Session store failures absorbed by the relay",
		}, []string{"op"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "outbound_total",
			Help:      "Outbound notifications by channel and status",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "teams",
			Subsystem: "relay",
			Name:      "webhook_latency_seconds",
			Help:      "End-to-end latency of webhook replies",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 5},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.agentCalls, m.agentLatency, m.storeErrors, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *RelayMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveAgentCall(op, result string, seconds float64) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(op, result).Inc()
	m.agentLatency.WithLabelValues(op).Observe(seconds)
}

func (m *RelayMetrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *RelayMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *RelayMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}
