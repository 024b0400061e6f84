package track

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink that exposes event counters on a Prometheus registry.
type Prometheus struct {
	executed    prometheus.Counter
	skipped     *prometheus.CounterVec
	tickErrors  prometheus.Counter
	transitions *prometheus.CounterVec
}

// NewPrometheus creates a Prometheus sink and registers its collectors.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "scheduler",
			Name:      "automations_executed_total",
			Help:      "Number of scheduled jobs that produced an agent.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "scheduler",
			Name:      "automations_skipped_total",
			Help:      "Number of scheduled jobs skipped, by reason.",
		}, []string{"reason"}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "scheduler",
			Name:      "tick_errors_total",
			Help:      "Number of scheduler ticks aborted by an error.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "agent",
			Name:      "transitions_total",
			Help:      "Number of agent state transitions, by target status.",
		}, []string{"to"}),
	}

	for _, c := range []prometheus.Collector{p.executed, p.skipped, p.tickErrors, p.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return p, nil
}

// Track implements Sink.
func (p *Prometheus) Track(event string, props map[string]any) {
	switch event {
	case EventAutomationExecuted:
		p.executed.Inc()
	case EventAutomationSkipped:
		reason, _ := props["reason"].(string)
		p.skipped.WithLabelValues(reason).Inc()
	case EventTickError:
		p.tickErrors.Inc()
	case EventAgentTransition:
		to, _ := props["to"].(string)
		p.transitions.WithLabelValues(to).Inc()
	}
}
