// Package metrics is the mission metrics sink: explicitly constructed and
// owned by the process that builds it (the scheduler and the fire source
// each build their own), with no package-level global registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink aggregates the scheduler's detection/response/extinguish mission
// metrics. All fields are prometheus collectors registered against a
// private registry; nothing here is package-global.
type Sink struct {
	registry *prometheus.Registry

	FiresAdmitted     prometheus.Counter
	FiresCleared      prometheus.Counter
	FiresUnfulfilled  prometheus.Counter
	AssignmentsMade   prometheus.Counter
	StallsDetected    prometheus.Counter
	HardFaults        prometheus.Counter
	DetectToDispatch  prometheus.Histogram // seconds, detection -> first assignment
	DispatchToExtinguish prometheus.Histogram // seconds, first assignment -> fire cleared
}

// NewSink builds a Sink and registers its collectors against a fresh
// registry, so independent scheduler instances (e.g. in tests) never
// collide on a shared global.
func NewSink() *Sink {
	reg := prometheus.NewRegistry()
	s := &Sink{
		registry: reg,
		FiresAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_fires_admitted_total",
			Help: "Total fire events admitted by the scheduler.",
		}),
		FiresCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_fires_cleared_total",
			Help: "Total fires declared extinguished.",
		}),
		FiresUnfulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_fires_unfulfilled_total",
			Help: "Fire events the fire source gave up on after every resend went unacknowledged; fires left short of serviceable drones are not counted.",
		}),
		AssignmentsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_assignments_total",
			Help: "Total drone assignments dispatched.",
		}),
		StallsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_stalls_detected_total",
			Help: "Total drones marked faulted due to stall detection.",
		}),
		HardFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firedrone_hard_faults_total",
			Help: "Total drones evicted from the fleet due to a hard fault.",
		}),
		DetectToDispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firedrone_detect_to_dispatch_seconds",
			Help:    "Seconds from fire admission to first drone assignment.",
			Buckets: prometheus.DefBuckets,
		}),
		DispatchToExtinguish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firedrone_dispatch_to_extinguish_seconds",
			Help:    "Seconds from first assignment to fire cleared.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		s.FiresAdmitted, s.FiresCleared, s.FiresUnfulfilled, s.AssignmentsMade,
		s.StallsDetected, s.HardFaults, s.DetectToDispatch, s.DispatchToExtinguish,
	)
	return s
}

// Handler returns the HTTP handler to mount at /metrics.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
