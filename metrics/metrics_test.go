package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "test")

	c.ObserveSetup(20*time.Millisecond, []int{17, 8, 4, 2}, 1.8, 1.82)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Levels))
	assert.Equal(t, 1.8, testutil.ToFloat64(c.OperatorComplexity))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.LevelUnknowns.WithLabelValues("1")))

	c.IncCycle("V")
	c.IncCycle("V")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Cycles.WithLabelValues("V")))

	c.IncFailure("coarsening", "construction")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Failures.WithLabelValues("coarsening", "construction")))

	c.ObserveSolve("cg", 12, true)
	assert.Equal(t, 1, testutil.CollectAndCount(c.SolverIterations))

	t.Run("Handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		require.Equal(t, 200, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "test_amg_levels 4"))
	})
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveSetup(time.Second, []int{1}, 1, 1)
		c.IncCycle("W")
		c.IncFailure("base", "numerical")
		c.ObserveSolve("richardson", 3, false)
	})
}
