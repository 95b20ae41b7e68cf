/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tv controls the attached display over HDMI-CEC, with an infrared
// transmitter as a cold-start fallback. All control goes through external
// binaries (cec-ctl, ir-ctl) behind the Runner interface.
package tv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

var (
	// ErrBinaryMissing is returned when the control binary is not installed.
	ErrBinaryMissing = errors.New("control binary not installed")
	// ErrUnavailable is returned when no control device is present.
	ErrUnavailable = errors.New("tv control unavailable")
)

// Result is the outcome of one control binary invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes control binaries with a per-call timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
	LookPath(name string) (string, error)
	Glob(pattern string) ([]string, error)
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit is reported in Result, not
// as an error; errors are reserved for missing binaries and timeouts.
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%s: %w", name, ErrBinaryMissing)
	}
	if runCtx.Err() != nil {
		return res, fmt.Errorf("%s timed out after %s: %w", name, timeout, runCtx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", name, err)
}

// LookPath resolves a binary on PATH.
func (ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrBinaryMissing)
	}
	return path, nil
}

// Glob lists device nodes.
func (ExecRunner) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}
