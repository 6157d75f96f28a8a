package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls     prometheus.Gauge
	CallEvents      *prometheus.CounterVec
	CarrierMessages *prometheus.CounterVec
	ModelEvents     *prometheus.CounterVec
	FrameDrops      prometheus.Counter
	BargeIns        prometheus.Counter
	MintOutcomes    *prometheus.CounterVec
	OutboundCalls   *prometheus.CounterVec

	// Stages holds windowed latency summaries that do not fit the
	// counter/gauge model, served by the latency endpoint.
	Stages *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of carrier media streams currently bridged.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		CarrierMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carrier_messages_total",
			Help:      "Carrier media-stream messages by direction and event.",
		}, []string{"direction", "event"}),
		ModelEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_events_total",
			Help:      "Realtime model events by direction and type.",
		}, []string{"direction", "type"}),
		FrameDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_drops_total",
			Help:      "Egress audio frames shed by queue overflow.",
		}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Caller interruptions that truncated an assistant response.",
		}),
		MintOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_mints_total",
			Help:      "Ephemeral credential mint attempts by outcome.",
		}, []string{"outcome"}),
		OutboundCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Outbound call placements by outcome.",
		}, []string{"outcome"}),
		Stages: NewLatencyWindow(256),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
