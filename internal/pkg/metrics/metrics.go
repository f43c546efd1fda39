// Package metrics exposes provisioning outcomes as Prometheus metrics written to a
// node-exporter textfile.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/provision"
)

type Metrics struct {
	registry *prometheus.Registry

	// StageDuration is the time spent in each pipeline stage.
	StageDuration *prometheus.HistogramVec

	// RunsTotal counts finished runs by outcome.
	RunsTotal *prometheus.CounterVec

	// FailuresTotal counts failed runs by stage and error kind.
	FailuresTotal *prometheus.CounterVec

	// AgentPort is the gateway port of each provisioned agent.
	AgentPort *prometheus.GaugeVec

	// LastRunTimestamp is the unix time of the last finished run per seller.
	LastRunTimestamp *prometheus.GaugeVec
}

var _ provision.Observer = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,

		StageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nemu_provision_stage_duration_seconds",
			Help:    "Histogram of provisioning stage durations.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nemu_provision_runs_total",
			Help: "Total number of finished provisioning runs.",
		}, []string{"result"}),

		FailuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nemu_provision_failures_total",
			Help: "Total number of failed provisioning runs by stage and reason.",
		}, []string{"stage", "reason"}),

		AgentPort: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nemu_agent_port",
			Help: "Gateway port assigned to the seller agent.",
		}, []string{"seller_id"}),

		LastRunTimestamp: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nemu_provision_last_run_timestamp_seconds",
			Help: "Unix time of the last finished provisioning run.",
		}, []string{"seller_id", "result"}),
	}
}

// Registry returns the registry all metrics are registered with.
func (metrics *Metrics) Registry() *prometheus.Registry {
	return metrics.registry
}

// Transition records stage timings and run outcomes.
func (metrics *Metrics) Transition(_ context.Context, event provision.Event) {
	if event.Previous != "" {
		metrics.StageDuration.WithLabelValues(string(event.Previous)).Observe(event.PreviousDuration.Seconds())
	}

	switch event.State {
	case agent.RunDone:
		metrics.RunsTotal.WithLabelValues(string(agent.RunDone)).Inc()
		metrics.LastRunTimestamp.WithLabelValues(string(event.SellerID), string(agent.RunDone)).Set(float64(event.At.Unix()))
		if event.Port != 0 {
			metrics.AgentPort.WithLabelValues(string(event.SellerID)).Set(float64(event.Port))
		}
	case agent.RunFailed:
		metrics.RunsTotal.WithLabelValues(string(agent.RunFailed)).Inc()
		metrics.FailuresTotal.WithLabelValues(string(event.FailedStage), Reason(event.Err)).Inc()
		metrics.LastRunTimestamp.WithLabelValues(string(event.SellerID), string(agent.RunFailed)).Set(float64(event.At.Unix()))
	}
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (metrics *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, metrics.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}

// Reason classifies err into a low-cardinality label value.
func Reason(err error) string {
	reasons := []struct {
		target error
		label  string
	}{
		{agent.ErrValidation, "validation"},
		{agent.ErrNotFound, "not_found"},
		{agent.ErrUpstream, "upstream"},
		{agent.ErrExhausted, "exhausted"},
		{agent.ErrUnresolvedPlaceholder, "unresolved_placeholder"},
		{agent.ErrIO, "io"},
		{agent.ErrRegistration, "registration"},
		{agent.ErrStart, "start"},
		{context.Canceled, "cancelled"},
		{context.DeadlineExceeded, "deadline"},
	}

	for _, reason := range reasons {
		if errors.Is(err, reason.target) {
			return reason.label
		}
	}

	return "other"
}
