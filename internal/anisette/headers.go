// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package anisette

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is where the header generator listens by default.
const DefaultURL = "http://127.0.0.1:6969"

// HeaderSource produces device-identity headers.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
	Reset(ctx context.Context) error
}

// HTTPHeaderSource reads headers from the generator's HTTP endpoint.
// ResetPath is optional; without it a reset only drops cached headers.
type HTTPHeaderSource struct {
	BaseURL   string
	ResetPath string
	Client    *http.Client
}

// NewHTTPHeaderSource returns a source for baseURL with a short timeout.
func NewHTTPHeaderSource(baseURL, resetPath string) *HTTPHeaderSource {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &HTTPHeaderSource{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ResetPath: resetPath,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Headers fetches a fresh header set.
func (s *HTTPHeaderSource) Headers(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("header generator returned %s", resp.Status)
	}

	var raw map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// Reset asks the generator to re-provision when ResetPath is set.
func (s *HTTPHeaderSource) Reset(ctx context.Context) error {
	if s.ResetPath == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/"+strings.TrimLeft(s.ResetPath, "/"), nil)
	if err != nil {
		return err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("header generator reset returned %s", resp.Status)
	}
	return nil
}

func (s *HTTPHeaderSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
