package observability

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics counts production transitions and the rejections by
// error class.
type PipelineMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline counters on registerer.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_production_transitions_total",
		Help: "Committed production transitions by name.",
	}, []string{"transition"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_production_rejections_total",
		Help: "Rejected production transitions by name and error class.",
	}, []string{"transition", "class"})
	registerer.MustRegister(transitions, rejections)
	return &PipelineMetrics{transitions: transitions, rejections: rejections}
}

// TransitionSucceeded implements production.Observer.
func (p *PipelineMetrics) TransitionSucceeded(transition string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(transition).Inc()
}

// TransitionRejected implements production.Observer.
func (p *PipelineMetrics) TransitionRejected(transition, class string) {
	if p == nil {
		return
	}
	p.rejections.WithLabelValues(transition, class).Inc()
}
