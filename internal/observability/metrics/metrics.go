// Package metrics defines the retrieval pipeline's Prometheus instruments,
// adapting the teacher's standalone exporter
// (cmd/metrics-server/main.go: prometheus.NewCounterVec + MustRegister +
// promhttp.Handler) into a library other packages import and increment,
// rather than its own standalone binary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts completed orchestrator turns by outcome status.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "legal_rag_turns_total", Help: "Total orchestrator turns by status."},
		[]string{"status"},
	)

	// ClarificationTotal counts turns that escalated to clarification, by level.
	ClarificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "legal_rag_clarification_total", Help: "Turns escalated to clarification by level."},
		[]string{"level"},
	)

	// RouteConfidence observes the router's reported confidence per turn.
	RouteConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legal_rag_route_confidence",
			Help:    "Router confidence distribution.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

func init() {
	prometheus.MustRegister(TurnsTotal, ClarificationTotal, RouteConfidence)
}

// Handler exposes /metrics for a scrape target, matching the teacher's
// promhttp.Handler() wiring.
func Handler() http.Handler {
	return promhttp.Handler()
}
