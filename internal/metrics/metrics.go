// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playrelay_publish_attempts_total",
		Help: "Outbound publish attempts by outcome and failure kind",
	}, []string{"outcome", "kind"})

	CapabilityDowngradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playrelay_capability_downgrades_total",
		Help: "Times the web-app control was rejected and link controls took over",
	})

	BroadcastsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playrelay_broadcasts_in_flight",
		Help: "Publish-to-all jobs currently running",
	})

	AutopostRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playrelay_autopost_runs_total",
		Help: "Scheduled or manual autopost runs by result",
	}, []string{"destination", "result"})

	InboundEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playrelay_inbound_events_total",
		Help: "Inbound transport events by kind",
	}, []string{"kind"})
)

// ObservePublish records one publish attempt.
func ObservePublish(ok bool, kind string) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	if kind == "" {
		kind = "none"
	}
	PublishAttemptsTotal.WithLabelValues(outcome, kind).Inc()
}

// RegisterSessionGauge exports the live session count through fn.
func RegisterSessionGauge(reg prometheus.Registerer, fn func() float64) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playrelay_sessions_active",
		Help: "Capture sessions currently held in memory",
	}, fn))
}
