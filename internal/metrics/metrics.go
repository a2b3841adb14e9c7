// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics collects per-cycle counters and pushes them to a
// Prometheus Pushgateway. A batch job has no scrape endpoint, so push is
// the only delivery path.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job label.
const DefaultJob = "haystacked"

// Cycle results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder holds the collectors for one process.
type Recorder struct {
	reg *prometheus.Registry

	ReportsReceived prometheus.Counter
	ReportsDecoded  prometheus.Counter
	ReportsCorrupt  prometheus.Counter
	ReportsSkipped  prometheus.Counter
	AuthResets      prometheus.Counter
	KeyFilesSkipped prometheus.Counter
	TagsMissing     prometheus.Gauge
	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Recorder {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "haystacked", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "haystacked", Name: name, Help: help})
	}
	r := &Recorder{
		reg:             prometheus.NewRegistry(),
		ReportsReceived: counter("reports_received_total", "Encrypted reports returned by the gateway."),
		ReportsDecoded:  counter("reports_decoded_total", "Reports decrypted inside the window."),
		ReportsCorrupt:  counter("reports_corrupt_total", "Reports dropped as corrupt."),
		ReportsSkipped:  counter("reports_skipped_total", "Reports dropped for an unknown id or an old timestamp."),
		AuthResets:      counter("auth_resets_total", "Header session resets after 401 responses."),
		KeyFilesSkipped: counter("key_files_skipped_total", "Key files that could not be loaded."),
		TagsMissing:     gauge("tags_missing", "Tags without any report in the last cycle."),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haystacked", Name: "cycles_total", Help: "Fetch cycles by result.",
		}, []string{"result"}),
		CycleDuration: gauge("cycle_duration_seconds", "Wall time of the last cycle."),
		LastSuccess:   gauge("last_success_timestamp_seconds", "Unix time of the last successful cycle."),
	}
	r.reg.MustRegister(
		r.ReportsReceived, r.ReportsDecoded, r.ReportsCorrupt, r.ReportsSkipped,
		r.AuthResets, r.KeyFilesSkipped, r.TagsMissing, r.Cycles, r.CycleDuration, r.LastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveCycle records the outcome and duration of a cycle.
func (r *Recorder) ObserveCycle(err error, started, finished time.Time) {
	r.CycleDuration.Set(finished.Sub(started).Seconds())
	if err != nil {
		r.Cycles.WithLabelValues(ResultFailure).Inc()
		return
	}
	r.Cycles.WithLabelValues(ResultSuccess).Inc()
	r.LastSuccess.Set(float64(finished.Unix()))
}

// Push sends all collectors to the Pushgateway at url. An empty url is a
// no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
