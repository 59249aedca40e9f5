// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the worker-pool counters and gauges.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsRetried   prometheus.Counter
	JobDuration   prometheus.Histogram

	PendingDepth prometheus.Gauge
	ActiveDepth  prometheus.Gauge
	DelayedDepth prometheus.Gauge
}

// NewMetrics creates and registers the worker metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelift", Subsystem: "worker",
			Name: "jobs_started_total", Help: "Jobs picked up by the worker pool.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelift", Subsystem: "worker",
			Name: "jobs_completed_total", Help: "Jobs finished successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelift", Subsystem: "worker",
			Name: "jobs_failed_total", Help: "Jobs finished with a failure.",
		}),
		JobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelift", Subsystem: "worker",
			Name: "jobs_retried_total", Help: "Jobs re-scheduled after a transient error.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "framelift", Subsystem: "worker",
			Name: "job_duration_seconds", Help: "Wall-clock duration of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "framelift", Subsystem: "queue",
			Name: "pending_depth", Help: "Jobs waiting in the pending list.",
		}),
		ActiveDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "framelift", Subsystem: "queue",
			Name: "active_depth", Help: "Jobs currently being processed.",
		}),
		DelayedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "framelift", Subsystem: "queue",
			Name: "delayed_depth", Help: "Jobs waiting out their retry backoff.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.JobsStarted, m.JobsCompleted, m.JobsFailed, m.JobsRetried,
			m.JobDuration, m.PendingDepth, m.ActiveDepth, m.DelayedDepth,
		)
	}
	return m
}
