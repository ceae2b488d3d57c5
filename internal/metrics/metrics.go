package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "last_changed"

// FilterReason labels events the change filter dropped.
type FilterReason string

// Filter reasons.
const (
	ReasonMissing   FilterReason = "missing"
	ReasonSentinel  FilterReason = "sentinel"
	ReasonDuplicate FilterReason = "duplicate"
)

// Recorder exposes sensor activity as Prometheus metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	changes         *prom.CounterVec
	filtered        *prom.CounterVec
	lastChanged     *prom.GaugeVec
	expired         *prom.GaugeVec
	checks          *prom.CounterVec
	publishFailures *prom.CounterVec
	armFailures     *prom.CounterVec
}

// NewRecorder constructs the collectors and registers them on reg.
func NewRecorder(reg prom.Registerer) *Recorder {
	r := &Recorder{
		changes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Meaningful source changes recorded per sensor",
		}, []string{"sensor"}),
		filtered: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "filtered_events_total",
			Help:      "Source events dropped by the change filter",
		}, []string{"sensor", "reason"}),
		lastChanged: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_changed_timestamp_seconds",
			Help:      "Unix time of the last meaningful change",
		}, []string{"sensor"}),
		expired: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "expired",
			Help:      "1 when the sensor is flagged as expired",
		}, []string{"sensor"}),
		checks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "expiration_checks_total",
			Help:      "Daily expiration checks run per sensor",
		}, []string{"sensor"}),
		publishFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Snapshots that could not be written to the durable slot",
		}, []string{"sensor"}),
		armFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "arm_failures_total",
			Help:      "Daily expiration checks that could not be scheduled",
		}, []string{"sensor"}),
	}

	reg.MustRegister(r.changes, r.filtered, r.lastChanged, r.expired, r.checks, r.publishFailures, r.armFailures)

	return r
}

// NewRegistry returns a registry with the Go and process collectors installed.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveChange records a meaningful change at ts.
func (r *Recorder) ObserveChange(sensor string, ts time.Time) {
	if r == nil {
		return
	}

	r.changes.WithLabelValues(sensor).Inc()
	r.lastChanged.WithLabelValues(sensor).Set(float64(ts.Unix()))
}

// ObserveRestored sets the gauges from a restored state without counting a change.
func (r *Recorder) ObserveRestored(sensor string, ts *time.Time, expired bool) {
	if r == nil {
		return
	}

	if ts != nil {
		r.lastChanged.WithLabelValues(sensor).Set(float64(ts.Unix()))
	}

	r.SetExpired(sensor, expired)
}

// IncFiltered counts an event dropped by the change filter.
func (r *Recorder) IncFiltered(sensor string, reason FilterReason) {
	if r == nil {
		return
	}

	r.filtered.WithLabelValues(sensor, string(reason)).Inc()
}

// ObserveCheck counts an expiration check and records its result.
func (r *Recorder) ObserveCheck(sensor string, expired bool) {
	if r == nil {
		return
	}

	r.checks.WithLabelValues(sensor).Inc()
	r.SetExpired(sensor, expired)
}

// SetExpired sets the expired gauge.
func (r *Recorder) SetExpired(sensor string, expired bool) {
	if r == nil {
		return
	}

	v := 0.0
	if expired {
		v = 1
	}

	r.expired.WithLabelValues(sensor).Set(v)
}

// IncPublishFailure counts a failed slot write.
func (r *Recorder) IncPublishFailure(sensor string) {
	if r == nil {
		return
	}

	r.publishFailures.WithLabelValues(sensor).Inc()
}

// IncArmFailure counts a daily check that could not be scheduled.
func (r *Recorder) IncArmFailure(sensor string) {
	if r == nil {
		return
	}

	r.armFailures.WithLabelValues(sensor).Inc()
}

// Forget drops every series of a removed sensor.
func (r *Recorder) Forget(sensor string) {
	if r == nil {
		return
	}

	labels := prom.Labels{"sensor": sensor}
	r.changes.DeletePartialMatch(labels)
	r.filtered.DeletePartialMatch(labels)
	r.lastChanged.DeletePartialMatch(labels)
	r.expired.DeletePartialMatch(labels)
	r.checks.DeletePartialMatch(labels)
	r.publishFailures.DeletePartialMatch(labels)
	r.armFailures.DeletePartialMatch(labels)
}
