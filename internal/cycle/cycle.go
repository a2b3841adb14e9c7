// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cycle runs one fetch-decrypt-store pass over the tag fleet.
package cycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearsfleet/haystacked/internal/fetch"
	"github.com/gearsfleet/haystacked/internal/keystore"
	"github.com/gearsfleet/haystacked/internal/logging"
	"github.com/gearsfleet/haystacked/internal/metrics"
	"github.com/gearsfleet/haystacked/internal/model"
	"github.com/gearsfleet/haystacked/internal/report"
)

// ErrNoTags is returned when the key directory yields no usable tags.
var ErrNoTags = errors.New("no tag keys loaded")

// Session is the header generator lifecycle the cycle drives.
type Session interface {
	Start(ctx context.Context) error
	Headers(ctx context.Context) (map[string]string, error)
	Reset(ctx context.Context) error
	Terminate() error
}

// Fetcher retrieves encrypted reports for a window.
type Fetcher interface {
	FetchWindow(ctx context.Context, ids []string, start, end int64, rs *fetch.RetryState) ([]model.EncryptedReport, error)
}

// Sink persists decoded rows.
type Sink interface {
	UpsertLocations(ctx context.Context, rows []model.LocationRow) error
}

// DecodeFunc decrypts one report; see report.Decode.
type DecodeFunc func(r model.EncryptedReport, keys report.Keys, windowStart int64) (*model.DecodedLocationReport, error)

// Runner wires the collaborators of a cycle. NewSession and NewFetcher are
// called once per Run so no state is shared between cycles.
type Runner struct {
	LoadKeys    func() (*keystore.KeyStore, error)
	NewSession  func() Session
	NewFetcher  func(headers fetch.HeaderProvider) Fetcher
	Sink        Sink
	Decode      DecodeFunc
	Metrics     *metrics.Recorder
	Clock       Clock
	WindowHours int
}

// Result summarizes a finished cycle.
type Result struct {
	ID          string
	WindowStart int64
	WindowEnd   int64
	Received    int
	Corrupt     int
	Skipped     int
	Resets      int
	KeysSkipped []keystore.SkippedFile
	report.Summary
}

// Run executes one cycle. The header session is terminated on every exit
// path, panics included, and nothing is written unless every step before
// the upsert succeeded.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	res.ID = uuid.NewString()
	log := logging.With("cycle", res.ID)
	clock := r.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	decode := r.Decode
	if decode == nil {
		decode = report.Decode
	}
	started := clock.Now()
	finished := false
	if r.Metrics != nil {
		defer func() {
			outcome := err
			if !finished && outcome == nil {
				outcome = errors.New("cycle aborted")
			}
			r.Metrics.ObserveCycle(outcome, started, clock.Now())
		}()
	}

	keys, err := r.LoadKeys()
	if err != nil {
		return res, fmt.Errorf("load keys: %w", err)
	}
	defer keys.Zero()
	res.KeysSkipped = keys.Skipped
	for _, s := range keys.Skipped {
		log.Warn("key file skipped", "file", s.Path, "reason", s.Reason)
	}
	if r.Metrics != nil {
		r.Metrics.KeyFilesSkipped.Add(float64(len(keys.Skipped)))
	}
	if keys.Len() == 0 {
		return res, ErrNoTags
	}
	log.Info("keys loaded", "tags", keys.Len())

	session := r.NewSession()
	defer func() {
		if terr := session.Terminate(); terr != nil {
			log.Warn("header generator terminate", "err", terr)
		}
	}()
	if err := session.Start(ctx); err != nil {
		return res, fmt.Errorf("start header generator: %w", err)
	}

	hours := r.WindowHours
	if hours <= 0 {
		log.Warn("window hours not positive, using default", "hours", hours, "default", 24)
		hours = 24
	}
	res.WindowStart, res.WindowEnd = fetch.Window(clock.Now(), hours)

	rs := &fetch.RetryState{}
	raw, err := r.NewFetcher(session).FetchWindow(ctx, keys.IDs(), res.WindowStart, res.WindowEnd, rs)
	res.Resets = rs.Resets
	if r.Metrics != nil {
		r.Metrics.AuthResets.Add(float64(rs.Resets))
	}
	if err != nil {
		return res, fmt.Errorf("fetch reports: %w", err)
	}
	res.Received = len(raw)

	decoded := make([]model.DecodedLocationReport, 0, len(raw))
	for _, rep := range raw {
		d, derr := decode(rep, keys, res.WindowStart)
		switch {
		case derr != nil:
			res.Corrupt++
			log.Warn("report dropped", "id", rep.ID, "err", derr)
		case d == nil:
			res.Skipped++
		default:
			decoded = append(decoded, *d)
		}
	}

	res.Summary = report.Aggregate(decoded, keys.Names())
	log.Info("reports used", "received", res.Received, "used", len(res.Reports))
	for _, d := range res.Reports {
		log.Debug(d.String())
	}

	if err := r.Sink.UpsertLocations(ctx, res.Rows()); err != nil {
		return res, fmt.Errorf("store locations: %w", err)
	}
	log.Info("cycle complete", "found", res.Found, "missing", res.Missing)

	if r.Metrics != nil {
		r.Metrics.ReportsReceived.Add(float64(res.Received))
		r.Metrics.ReportsDecoded.Add(float64(len(res.Reports)))
		r.Metrics.ReportsCorrupt.Add(float64(res.Corrupt))
		r.Metrics.ReportsSkipped.Add(float64(res.Skipped))
		r.Metrics.TagsMissing.Set(float64(len(res.Missing)))
	}
	finished = true
	return res, nil
}
