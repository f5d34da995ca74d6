// Package metrics exports multigrid setup and solve statistics to Prometheus
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the hierarchy and solver metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	SetupDuration      prometheus.Histogram
	Levels             prometheus.Gauge
	OperatorComplexity prometheus.Gauge
	GridComplexity     prometheus.Gauge
	LevelUnknowns      *prometheus.GaugeVec
	Cycles             *prometheus.CounterVec
	Failures           *prometheus.CounterVec
	SolverIterations   *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		SetupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "setup_duration_seconds",
			Help:      "Duration of hierarchy construction",
			Buckets:   []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
		Levels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "levels",
			Help:      "Number of levels of the current hierarchy",
		}),
		OperatorComplexity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "operator_complexity",
			Help:      "Nonzeros of all levels relative to the finest level",
		}),
		GridComplexity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "grid_complexity",
			Help:      "Unknowns of all levels relative to the finest level",
		}),
		LevelUnknowns: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "level_unknowns",
			Help:      "Global unknowns per level",
		}, []string{"level"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "cycles_total",
			Help:      "Multigrid cycles applied",
		}, []string{"cycle"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amg",
			Name:      "failures_total",
			Help:      "Failed setups and cycles by operation and kind",
		}, []string{"op", "kind"}),
		SolverIterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Outer iterations per linear solve",
			Buckets:   prometheus.LinearBuckets(5, 5, 10),
		}, []string{"solver", "status"}),
	}
}

// ObserveSetup records a finished hierarchy
func (c *Collector) ObserveSetup(d time.Duration, unknowns []int, opComplexity, gridComplexity float64) {
	if c == nil {
		return
	}
	c.SetupDuration.Observe(d.Seconds())
	c.Levels.Set(float64(len(unknowns)))
	c.OperatorComplexity.Set(opComplexity)
	c.GridComplexity.Set(gridComplexity)
	c.LevelUnknowns.Reset()
	for l, n := range unknowns {
		c.LevelUnknowns.WithLabelValues(strconv.Itoa(l)).Set(float64(n))
	}
}

func (c *Collector) IncCycle(cycle string) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(cycle).Inc()
}

func (c *Collector) IncFailure(op, kind string) {
	if c == nil {
		return
	}
	c.Failures.WithLabelValues(op, kind).Inc()
}

// ObserveSolve records the iteration count of an outer solve
func (c *Collector) ObserveSolve(solver string, iterations int, converged bool) {
	if c == nil {
		return
	}
	status := "converged"
	if !converged {
		status = "diverged"
	}
	c.SolverIterations.WithLabelValues(solver, status).Observe(float64(iterations))
}

// Handler serves the metrics of g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
