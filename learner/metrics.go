package learner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is the optional instrumentation bundle. A nil *metrics is valid
// and turns every method into a no-op, so the hot path never branches on
// configuration.
type metrics struct {
	visits         prometheus.Counter
	newsClicks     prometheus.Counter
	adClicks       prometheus.Counter
	fallbacks      prometheus.Counter
	solveSeconds   prometheus.Histogram
	diversityError *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		visits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagebandits_visits_total",
			Help: "Processed user visits.",
		}),
		newsClicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagebandits_news_clicks_total",
			Help: "Recorded article clicks.",
		}),
		adClicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagebandits_ad_clicks_total",
			Help: "Recorded advertisement clicks.",
		}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagebandits_solver_fallbacks_total",
			Help: "Visits where the configured strategy failed and a cheaper one produced the page.",
		}),
		solveSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagebandits_allocation_seconds",
			Help:    "Wall time of one news allocation solve.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		diversityError: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pagebandits_diversity_error",
			Help: "Latest measured diversity-bound shortfall per derandomization technique.",
		}, []string{"technique"}),
	}
}

func (m *metrics) visit() {
	if m == nil {
		return
	}
	m.visits.Inc()
}

func (m *metrics) newsClick() {
	if m == nil {
		return
	}
	m.newsClicks.Inc()
}

func (m *metrics) adClick() {
	if m == nil {
		return
	}
	m.adClicks.Inc()
}

func (m *metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *metrics) observeSolve(d time.Duration) {
	if m == nil {
		return
	}
	m.solveSeconds.Observe(d.Seconds())
}

func (m *metrics) setDiversityError(technique string, v float64) {
	if m == nil {
		return
	}
	m.diversityError.WithLabelValues(technique).Set(v)
}
