package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	overdueCount   prometheus.Gauge
	overdueBalance prometheus.Gauge
	stockEntries   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetOverdue publishes the result of the latest overdue payable scan.
func (m *Metrics) SetOverdue(count int, balance float64) {
	if m == nil {
		return
	}
	m.overdueCount.Set(float64(count))
	m.overdueBalance.Set(balance)
}

// StockEntryPosted counts stock entries by outcome (posted, duplicate).
func (m *Metrics) StockEntryPosted(outcome string) {
	if m == nil {
		return
	}
	m.stockEntries.WithLabelValues(outcome).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	overdueCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_payables_overdue",
		Help: "Unpaid subcontractor payables past their due date at the last scan.",
	})
	overdueBalance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_payables_overdue_balance",
		Help: "Outstanding balance of overdue payables at the last scan.",
	})
	stockEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_entries_total",
		Help: "Stock entries consumed from the production pipeline by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, overdueCount, overdueBalance, stockEntries)
	return &Metrics{
		runs:           runs,
		failures:       failures,
		duration:       duration,
		overdueCount:   overdueCount,
		overdueBalance: overdueBalance,
		stockEntries:   stockEntries,
	}
}
