package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instrumentation for the analysis pipeline. One instance
// per process, registered against the default registry.
type Metrics struct {
	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	TouchesRecorded  *prometheus.CounterVec
	OutcomesRecorded *prometheus.CounterVec
	Recommendations  *prometheus.CounterVec
	ConsensusScore   *prometheus.GaugeVec
	StreamReconnects prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AnalysisRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexbot_analysis_runs_total",
			Help: "Analysis passes by symbol and outcome",
		}, []string{"symbol", "status"}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gexbot_analysis_duration_seconds",
			Help:    "Wall time of one full analysis pass",
			Buckets: prometheus.DefBuckets,
		}),
		TouchesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexbot_touches_recorded_total",
			Help: "Level touches recorded by the monitor",
		}, []string{"symbol"}),
		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexbot_outcomes_recorded_total",
			Help: "Touch outcomes by symbol and result",
		}, []string{"symbol", "result"}),
		Recommendations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gexbot_recommendations_total",
			Help: "Recommendations produced by symbol and action",
		}, []string{"symbol", "action"}),
		ConsensusScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gexbot_consensus_score",
			Help: "Latest consensus score per symbol",
		}, []string{"symbol"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gexbot_stream_reconnects_total",
			Help: "Price stream reconnect attempts",
		}),
	}
}
