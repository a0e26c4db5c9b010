// Package metrics exposes Prometheus instrumentation for the coordination
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the engine's counters
type Set struct {
	Transitions      *prometheus.CounterVec
	PartnerConflicts prometheus.Counter
	OTCVerifications *prometheus.CounterVec
}

// New registers the counters on reg and returns the set
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_job_transitions_total",
			Help: "Job lifecycle transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		PartnerConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_partner_conflicts_total",
			Help: "Assignment attempts rejected because the partner was already bound.",
		}),
		OTCVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_otc_verifications_total",
			Help: "One-time-code verification attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(s.Transitions, s.PartnerConflicts, s.OTCVerifications)
	return s
}
