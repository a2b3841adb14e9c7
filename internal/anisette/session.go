// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package anisette owns the external device-identity header generator for
// the duration of one fetch cycle.
package anisette

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/gearsfleet/haystacked/internal/logging"
)

// State is the lifecycle position of a Session.
type State int

const (
	NotStarted State = iota
	Starting
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNotRunning is returned by Headers and Reset outside the Running state.
var ErrNotRunning = errors.New("header session not running")

// Options tune a Session.
type Options struct {
	// ReadyTimeout bounds how long Start waits for the first headers.
	ReadyTimeout time.Duration
	// PollInterval is the delay between readiness probes.
	PollInterval time.Duration
	// StopTimeout bounds Terminate before the process is killed.
	StopTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	return o
}

// Session pairs a Process with the HeaderSource it serves.
type Session struct {
	proc Process
	src  HeaderSource
	opts Options

	mu      sync.Mutex
	state   State
	spawned bool
	headers map[string]string

	stopOnce sync.Once
	stopErr  error
}

// NewSession returns a session in the NotStarted state.
func NewSession(proc Process, src HeaderSource, opts Options) *Session {
	return &Session{proc: proc, src: src, opts: opts.withDefaults()}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the process and blocks until it serves headers. A failed
// spawn leaves the session Terminated.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != NotStarted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("start header session: already %s", st)
	}
	s.state = Starting
	s.mu.Unlock()

	if err := s.proc.Start(); err != nil {
		s.mu.Lock()
		s.state = Terminated
		s.mu.Unlock()
		return fmt.Errorf("start header generator: %w", err)
	}
	s.mu.Lock()
	s.spawned = true
	s.mu.Unlock()

	readyCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		h, err := s.src.Headers(readyCtx)
		if err == nil {
			s.mu.Lock()
			if s.state == Starting {
				s.state = Running
				s.headers = h
			}
			st := s.state
			s.mu.Unlock()
			if st != Running {
				return fmt.Errorf("start header session: %w", ErrNotRunning)
			}
			logging.Debugf("header generator ready with %d headers", len(h))
			return nil
		}
		lastErr = err
		select {
		case <-readyCtx.Done():
			return fmt.Errorf("header generator not ready: %w (last error: %v)", readyCtx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

// Headers returns the current header set, regenerating it after a Reset.
func (s *Session) Headers(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	if s.headers != nil {
		h := maps.Clone(s.headers)
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	h, err := s.src.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate headers: %w", err)
	}
	s.mu.Lock()
	s.headers = h
	s.mu.Unlock()
	return maps.Clone(h), nil
}

// Reset drops the cached headers without restarting the process.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.headers = nil
	s.mu.Unlock()

	if err := s.src.Reset(ctx); err != nil {
		return fmt.Errorf("reset header session: %w", err)
	}
	return nil
}

// Terminate stops the process if it was spawned. Only the first call has any
// effect; later calls return the first call's result.
func (s *Session) Terminate() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.spawned
		s.state = Terminated
		s.headers = nil
		s.mu.Unlock()
		if !started {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
		defer cancel()
		s.stopErr = s.proc.Stop(ctx)
		if s.stopErr != nil {
			logging.Warnf("header generator stop: %v", s.stopErr)
		}
	})
	return s.stopErr
}
