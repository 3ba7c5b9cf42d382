// Package metrics records Prometheus counters for a single geoping run.
package metrics

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geoping"

// Probe results
const (
	ProbeReply   = "reply"
	ProbeTimeout = "timeout"
	ProbeError   = "error"
)

// Endpoint results
const (
	EndpointMeasured    = "measured"
	EndpointUnreachable = "unreachable"
	EndpointInvalid     = "invalid"
)

// Geolocation lookup results
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Recorder holds the collectors of one run on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	probes      *prometheus.CounterVec
	endpoints   *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	relocations prometheus.Counter
	rtt         prometheus.Histogram
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probes",
				Name:      "total",
				Help:      "total number of ICMP echo probes by result",
			},
			[]string{"result"},
		),
		endpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "endpoints",
				Name:      "total",
				Help:      "total number of probed endpoints by result",
			},
			[]string{"result"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "geo_lookups",
				Name:      "total",
				Help:      "total number of geolocation resolutions by result",
			},
			[]string{"result"},
		),
		relocations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relocations",
				Name:      "total",
				Help:      "total number of measurements moved to another country",
			},
		),
		rtt: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "endpoint",
				Name:      "rtt_milliseconds",
				Help:      "representative round-trip time of measured endpoints",
				Buckets:   []float64{5, 10, 20, 40, 80, 120, 160, 240, 320, 480},
			},
		),
	}

	r.registry.MustRegister(r.probes, r.endpoints, r.lookups, r.relocations, r.rtt)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveProbe counts one probe.
func (r *Recorder) ObserveProbe(result string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(result).Inc()
}

// ObserveEndpoint counts one probed endpoint; rtt is recorded for measured endpoints only.
func (r *Recorder) ObserveEndpoint(result string, rtt float64) {
	if r == nil {
		return
	}
	r.endpoints.WithLabelValues(result).Inc()
	if result == EndpointMeasured {
		r.rtt.Observe(rtt)
	}
}

// ObserveLookup counts one geolocation resolution.
func (r *Recorder) ObserveLookup(result string) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(result).Inc()
}

// ObserveRelocations adds n moved measurements.
func (r *Recorder) ObserveRelocations(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.relocations.Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand metrics path %q: %w", path, err)
	}
	if err := prometheus.WriteToTextfile(expanded, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
