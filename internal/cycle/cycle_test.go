// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package cycle

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gearsfleet/haystacked/internal/fetch"
	"github.com/gearsfleet/haystacked/internal/keystore"
	"github.com/gearsfleet/haystacked/internal/logging"
	"github.com/gearsfleet/haystacked/internal/metrics"
	"github.com/gearsfleet/haystacked/internal/model"
	"github.com/gearsfleet/haystacked/internal/report"
	"github.com/gearsfleet/haystacked/internal/security"
)

type fakeSession struct {
	startErr   error
	starts     int
	terminates int
}

func (f *fakeSession) Start(context.Context) error { f.starts++; return f.startErr }
func (f *fakeSession) Headers(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
func (f *fakeSession) Reset(context.Context) error { return nil }
func (f *fakeSession) Terminate() error            { f.terminates++; return nil }

type fakeFetcher struct {
	reports []model.EncryptedReport
	err     error
	resets  int
	ids     []string
	start   int64
}

func (f *fakeFetcher) FetchWindow(_ context.Context, ids []string, start, _ int64, rs *fetch.RetryState) ([]model.EncryptedReport, error) {
	f.ids = ids
	f.start = start
	rs.Resets = f.resets
	return f.reports, f.err
}

type fakeSink struct {
	calls int
	rows  []model.LocationRow
}

func (f *fakeSink) UpsertLocations(_ context.Context, rows []model.LocationRow) error {
	f.calls++
	f.rows = rows
	return nil
}

var testNow = time.Unix(1_700_000_000, 0)

func testKeys() *keystore.KeyStore {
	return keystore.New(
		model.TagKeyPair{Name: "A", HashedAdvKey: "id-a", PrivateKey: security.FromBytes([]byte{1})},
		model.TagKeyPair{Name: "B", HashedAdvKey: "id-b", PrivateKey: security.FromBytes([]byte{2})},
		model.TagKeyPair{Name: "C", HashedAdvKey: "id-c", PrivateKey: security.FromBytes([]byte{3})},
	)
}

func newRunner(sess *fakeSession, f *fakeFetcher, sink *fakeSink, decode DecodeFunc) *Runner {
	return &Runner{
		LoadKeys:    func() (*keystore.KeyStore, error) { return testKeys(), nil },
		NewSession:  func() Session { return sess },
		NewFetcher:  func(fetch.HeaderProvider) Fetcher { return f },
		Sink:        sink,
		Decode:      decode,
		Clock:       FixedClock{T: testNow},
		WindowHours: 24,
	}
}

// decodeByID fakes decryption: the payload is the timestamp, "bad" is corrupt.
func decodeByID(r model.EncryptedReport, keys report.Keys, _ int64) (*model.DecodedLocationReport, error) {
	pair, ok := keys.Lookup(r.ID)
	if !ok {
		return nil, nil
	}
	if r.Payload == "bad" {
		return nil, report.ErrCorruptReport
	}
	ts := map[string]int64{"30": 30, "10": 10, "20": 20}[r.Payload]
	return &model.DecodedLocationReport{TagName: pair.Name, Timestamp: ts}, nil
}

func TestRun_SuccessOrdersAndStores(t *testing.T) {
	sess := &fakeSession{}
	f := &fakeFetcher{reports: []model.EncryptedReport{
		{ID: "id-a", Payload: "30"},
		{ID: "id-b", Payload: "10"},
		{ID: "id-a", Payload: "20"},
		{ID: "id-a", Payload: "bad"},
		{ID: "stranger", Payload: "10"},
	}}
	sink := &fakeSink{}
	rec := metrics.New()
	r := newRunner(sess, f, sink, decodeByID)
	r.Metrics = rec

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sess.starts != 1 || sess.terminates != 1 {
		t.Fatalf("expected one start and one terminate, got %d/%d", sess.starts, sess.terminates)
	}
	if sink.calls != 1 || len(sink.rows) != 3 {
		t.Fatalf("expected one upsert of 3 rows, got %d calls %+v", sink.calls, sink.rows)
	}
	if sink.rows[0].Timestamp != 10 || sink.rows[1].Timestamp != 20 || sink.rows[2].Timestamp != 30 {
		t.Fatalf("rows not sorted by timestamp: %+v", sink.rows)
	}
	if res.Corrupt != 1 || res.Skipped != 1 || res.Received != 5 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "C" {
		t.Fatalf("expected C missing, got %v", res.Missing)
	}
	if res.WindowStart != testNow.Unix()-86400 || f.start != res.WindowStart {
		t.Fatalf("unexpected window start %d", res.WindowStart)
	}
	if len(f.ids) != 3 {
		t.Fatalf("expected all tag ids in the request, got %v", f.ids)
	}
	if res.ID == "" {
		t.Fatalf("expected a cycle id")
	}
	if got := testutil.ToFloat64(rec.ReportsCorrupt); got != 1 {
		t.Fatalf("expected corrupt counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(rec.Cycles.WithLabelValues(metrics.ResultSuccess)); got != 1 {
		t.Fatalf("expected success recorded, got %v", got)
	}
}

func TestRun_FetchFailureTerminatesWithoutCommit(t *testing.T) {
	sess := &fakeSession{}
	f := &fakeFetcher{err: fetch.ErrAuthExhausted, resets: 3}
	sink := &fakeSink{}

	res, err := newRunner(sess, f, sink, decodeByID).Run(context.Background())
	if !errors.Is(err, fetch.ErrAuthExhausted) {
		t.Fatalf("expected ErrAuthExhausted, got %v", err)
	}
	if sess.terminates != 1 {
		t.Fatalf("expected exactly one terminate, got %d", sess.terminates)
	}
	if sink.calls != 0 {
		t.Fatalf("expected no upsert on fatal path")
	}
	if res.Resets != 3 {
		t.Fatalf("expected resets carried into result, got %d", res.Resets)
	}
}

func TestRun_StatusErrorTerminates(t *testing.T) {
	sess := &fakeSession{}
	f := &fakeFetcher{err: &fetch.StatusError{Status: 503}}
	sink := &fakeSink{}

	_, err := newRunner(sess, f, sink, decodeByID).Run(context.Background())
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Status != 503 {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if sess.terminates != 1 || sink.calls != 0 {
		t.Fatalf("expected terminate=1 and no upsert, got %d/%d", sess.terminates, sink.calls)
	}
}

func TestRun_PanicDuringDecodeStillTerminatesOnce(t *testing.T) {
	sess := &fakeSession{}
	f := &fakeFetcher{reports: []model.EncryptedReport{{ID: "id-a", Payload: "10"}, {ID: "id-b", Payload: "20"}}}
	sink := &fakeSink{}
	calls := 0
	panicky := func(r model.EncryptedReport, keys report.Keys, ws int64) (*model.DecodedLocationReport, error) {
		calls++
		if calls == 2 {
			panic("decoder blew up")
		}
		return decodeByID(r, keys, ws)
	}
	rec := metrics.New()
	r := newRunner(sess, f, sink, panicky)
	r.Metrics = rec

	func() {
		defer func() {
			if p := recover(); p == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = r.Run(context.Background())
	}()

	if sess.terminates != 1 {
		t.Fatalf("expected exactly one terminate after panic, got %d", sess.terminates)
	}
	if sink.calls != 0 {
		t.Fatalf("expected no upsert after panic")
	}
	if got := testutil.ToFloat64(rec.Cycles.WithLabelValues(metrics.ResultFailure)); got != 1 {
		t.Fatalf("expected aborted cycle recorded as failure, got %v", got)
	}
}

func TestRun_StartFailureTerminates(t *testing.T) {
	sess := &fakeSession{startErr: errors.New("no binary")}
	sink := &fakeSink{}
	if _, err := newRunner(sess, &fakeFetcher{}, sink, decodeByID).Run(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if sess.terminates != 1 || sink.calls != 0 {
		t.Fatalf("expected terminate=1 and no upsert, got %d/%d", sess.terminates, sink.calls)
	}
}

func TestRun_NoTags(t *testing.T) {
	sess := &fakeSession{}
	r := newRunner(sess, &fakeFetcher{}, &fakeSink{}, decodeByID)
	r.LoadKeys = func() (*keystore.KeyStore, error) { return keystore.New(), nil }
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrNoTags) {
		t.Fatalf("expected ErrNoTags, got %v", err)
	}
	if sess.starts != 0 {
		t.Fatalf("expected the header generator not to start")
	}
}

func TestRun_RealDecoderDropsCorruptReports(t *testing.T) {
	sess := &fakeSession{}
	bogus := make([]byte, report.PayloadSize)
	bogus[5] = 0x04
	f := &fakeFetcher{reports: []model.EncryptedReport{
		{ID: "id-a", Payload: base64.StdEncoding.EncodeToString(bogus)},
		{ID: "id-b", Payload: "AAAA"},
	}}
	sink := &fakeSink{}
	r := newRunner(sess, f, sink, nil)
	r.Clock = FixedClock{T: time.Unix(report.AppleEpochOffset, 0)}
	r.WindowHours = 1

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("corrupt reports must not fail the cycle: %v", err)
	}
	if res.Corrupt != 2 || len(res.Reports) != 0 {
		t.Fatalf("expected two corrupt reports and none decoded, got %+v", res)
	}
	if sink.calls != 1 || len(sink.rows) != 0 {
		t.Fatalf("expected a single empty upsert, got %d calls", sink.calls)
	}
	if len(res.Missing) != 3 {
		t.Fatalf("expected all tags missing, got %v", res.Missing)
	}
}

func TestRun_NonPositiveWindowWarnsAndDefaults(t *testing.T) {
	prev := logging.L
	defer func() { logging.L = prev }()
	var buf bytes.Buffer
	logging.SetOutput(&buf)

	r := newRunner(&fakeSession{}, &fakeFetcher{}, &fakeSink{}, decodeByID)
	r.WindowHours = 0
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.WindowEnd-res.WindowStart != 24*3600 {
		t.Fatalf("expected 24h window, got %d..%d", res.WindowStart, res.WindowEnd)
	}
	if !strings.Contains(buf.String(), "window hours not positive") {
		t.Fatalf("expected a warning for the substituted window, got %q", buf.String())
	}
}
