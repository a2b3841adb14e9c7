// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

package anisette

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

// DefaultBinary is the base name of the header generator executable.
const DefaultBinary = "anisette-v3-server"

// Process is the external header generator as seen by a Session.
type Process interface {
	Start() error
	Stop(ctx context.Context) error
}

// BinaryName returns the executable name for goos.
func BinaryName(base, goos string) string {
	if goos == "windows" && filepath.Ext(base) != ".exe" {
		return base + ".exe"
	}
	return base
}

// ExecProcess runs the header generator as a child process.
type ExecProcess struct {
	Binary string
	Dir    string
	Args   []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

// NewExecProcess resolves the platform binary name inside dir.
func NewExecProcess(dir, binary string, args ...string) *ExecProcess {
	if binary == "" {
		binary = DefaultBinary
	}
	name := BinaryName(binary, runtime.GOOS)
	if dir != "" && !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	return &ExecProcess{Binary: name, Dir: dir, Args: args}
}

// Start spawns the process. Output is forwarded to stderr.
func (p *ExecProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return errors.New("header generator already started")
	}
	cmd := exec.Command(p.Binary, p.Args...)
	cmd.Dir = p.Dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Binary, err)
	}
	p.cmd = cmd
	p.done = make(chan error, 1)
	go func() { p.done <- cmd.Wait() }()
	return nil
}

// Stop interrupts the process and kills it if it has not exited when ctx
// is done. Windows has no interrupt, so the process is killed directly.
func (p *ExecProcess) Stop(ctx context.Context) error {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
	} else if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("header generator did not exit: %w", ctx.Err())
	}
}
