// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package fetch requests encrypted location reports from the gateway.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/gearsfleet/haystacked/internal/credentials"
	"github.com/gearsfleet/haystacked/internal/logging"
	"github.com/gearsfleet/haystacked/internal/model"
)

// DefaultURL is the report endpoint.
const DefaultURL = "https://gateway.icloud.com/acsnservice/fetch"

// DefaultMaxAuthRetries bounds session resets after 401 responses.
const DefaultMaxAuthRetries = 3

const maxResponseBytes = 64 << 20

// ErrAuthExhausted is returned once the gateway keeps answering 401 after
// the allowed number of session resets.
var ErrAuthExhausted = errors.New("authentication retries exhausted")

// StatusError is a non-2xx, non-401 gateway response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned status %d", e.Status)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Body)
}

// HeaderProvider supplies device-identity headers and can regenerate them.
type HeaderProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
	Reset(ctx context.Context) error
}

// RetryState tracks 401 handling for one cycle.
type RetryState struct {
	Attempts int
	Resets   int
}

// Options configure a Fetcher. Zero values fall back to defaults.
type Options struct {
	URL            string
	Timeout        time.Duration
	MaxAuthRetries int
	// RetryInterval is the minimum spacing between re-issued requests.
	RetryInterval time.Duration
	Transport     http.RoundTripper
	Now           func() time.Time
}

// Fetcher posts search requests for a set of hashed adv keys.
type Fetcher struct {
	client     *http.Client
	url        string
	creds      credentials.Credentials
	headers    HeaderProvider
	limiter    *rate.Limiter
	maxRetries int
	now        func() time.Time
}

// New builds a Fetcher. The transport negotiates compressed responses.
func New(creds credentials.Credentials, headers HeaderProvider, opts Options) *Fetcher {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAuthRetries <= 0 {
		opts.MaxAuthRetries = DefaultMaxAuthRetries
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	if opts.RetryInterval > 0 {
		limit = rate.Every(opts.RetryInterval)
	}
	return &Fetcher{
		client:     &http.Client{Timeout: opts.Timeout, Transport: gzhttp.Transport(opts.Transport)},
		url:        opts.URL,
		creds:      creds,
		headers:    headers,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxAuthRetries,
		now:        opts.Now,
	}
}

// Window returns the unix-second bounds of a lookback of hours ending at now.
func Window(now time.Time, hours int) (start, end int64) {
	end = now.Unix()
	return end - int64(hours)*3600, end
}

type searchRequest struct {
	Search []searchQuery `json:"search"`
}

type searchQuery struct {
	StartDate int64    `json:"startDate"`
	EndDate   int64    `json:"endDate"`
	IDs       []string `json:"ids"`
}

type searchResponse struct {
	Results []model.EncryptedReport `json:"results"`
}

// Fetch requests reports for ids over the last windowHours.
func (f *Fetcher) Fetch(ctx context.Context, ids []string, windowHours int, rs *RetryState) ([]model.EncryptedReport, error) {
	start, end := Window(f.now(), windowHours)
	return f.FetchWindow(ctx, ids, start, end, rs)
}

// FetchWindow requests reports between start and end (unix seconds).
// A 401 resets the header session and re-issues the request until
// rs.Attempts reaches the retry bound.
func (f *Fetcher) FetchWindow(ctx context.Context, ids []string, start, end int64, rs *RetryState) ([]model.EncryptedReport, error) {
	if rs == nil {
		rs = &RetryState{}
	}
	if ids == nil {
		ids = []string{}
	}
	body, err := json.Marshal(searchRequest{Search: []searchQuery{{
		StartDate: start * 1000,
		EndDate:   end * 1000,
		IDs:       ids,
	}}})
	if err != nil {
		return nil, err
	}

	for {
		status, payload, err := f.post(ctx, body)
		if err != nil {
			return nil, err
		}
		switch {
		case status == http.StatusUnauthorized:
			if rs.Attempts >= f.maxRetries {
				return nil, ErrAuthExhausted
			}
			logging.Warnf("gateway returned 401, resetting header session (attempt %d of %d)", rs.Attempts+1, f.maxRetries)
			if err := f.headers.Reset(ctx); err != nil {
				return nil, err
			}
			rs.Attempts++
			rs.Resets++
			if rs.Attempts >= f.maxRetries {
				return nil, ErrAuthExhausted
			}
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		case status < 200 || status > 299:
			return nil, &StatusError{Status: status, Body: snippet(payload)}
		default:
			var resp searchResponse
			if err := json.Unmarshal(payload, &resp); err != nil {
				return nil, fmt.Errorf("decode gateway response: %w", err)
			}
			rs.Attempts = 0
			logging.Infof("%d: %d reports received", status, len(resp.Results))
			return resp.Results, nil
		}
	}
}

func (f *Fetcher) post(ctx context.Context, body []byte) (int, []byte, error) {
	h, err := f.headers.Headers(ctx)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	for k, v := range h {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(f.creds.DSID, f.creds.Token.Reveal())

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post to gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read gateway response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

func snippet(b []byte) string {
	const max = 256
	b = bytes.TrimSpace(b)
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
