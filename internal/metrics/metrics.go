// Package metrics exports the outcome of the last run as a Prometheus
// textfile, for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run is what one invocation reports.
type Run struct {
	Tool        string
	Success     bool
	ExitCode    int
	Duration    time.Duration
	TunnelUsed  bool
	TunnelReady time.Duration // time from start request to Active
	Finished    time.Time
}

// Registry builds a fresh registry holding the gauges for r.
func Registry(r Run) *prometheus.Registry {
	labels := prometheus.Labels{"tool": r.Tool}
	gauge := func(name, help string, v float64) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: labels})
		g.Set(v)
		return g
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		gauge("pgtun_last_run_success", "Whether the last dump succeeded (1) or failed (0).", boolToFloat(r.Success)),
		gauge("pgtun_last_exit_code", "Exit code of the last run.", float64(r.ExitCode)),
		gauge("pgtun_last_run_duration_seconds", "Wall time of the last run.", r.Duration.Seconds()),
		gauge("pgtun_tunnel_used", "Whether the last run went through an ssh tunnel.", boolToFloat(r.TunnelUsed)),
		gauge("pgtun_tunnel_ready_seconds", "Time the last tunnel took to become ready.", r.TunnelReady.Seconds()),
	)
	if !r.Finished.IsZero() {
		reg.MustRegister(gauge("pgtun_last_run_timestamp_seconds", "Unix time the last run finished.", float64(r.Finished.Unix())))
	}
	return reg
}

// WriteTextfile replaces path with the metrics for r. The write is atomic.
func WriteTextfile(path string, r Run) error {
	if err := prometheus.WriteToTextfile(path, Registry(r)); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
