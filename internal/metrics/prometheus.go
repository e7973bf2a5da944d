package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_decisions_total",
			Help: "Total decisions processed",
		},
		[]string{"procedure", "result"},
	)

	DecisionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_decision_errors_total",
			Help: "Decisions rejected before scoring",
		},
		[]string{"reason"},
	)

	ComplicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_complications_total",
			Help: "Complications generated by trainee decisions",
		},
		[]string{"type"},
	)

	DecisionTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vetlab_decision_time_seconds",
			Help:    "Time trainees spent on a step before deciding",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"procedure"},
	)

	OverallScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vetlab_session_overall_score",
			Help:    "Overall score of completed sessions",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"procedure"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vetlab_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	ProceduresLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vetlab_procedures_loaded",
			Help: "Procedures available in the catalog",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vetlab_persistence_failures_total",
			Help: "Session writes that failed after retries",
		},
		[]string{"store"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DecisionsTotal)
		prometheus.MustRegister(DecisionErrors)
		prometheus.MustRegister(ComplicationsTotal)
		prometheus.MustRegister(DecisionTimeSeconds)
		prometheus.MustRegister(OverallScore)
		prometheus.MustRegister(ActiveSessions)
		prometheus.MustRegister(ProceduresLoaded)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(PersistenceFailures)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
