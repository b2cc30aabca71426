// Package workflow runs a noopcheck: it dumps a PHP file's opcodes with
// and without the optimizer, compares the two listings and reports the
// functions that reduce to a constant return. It is consumed by both the
// CLI and the MCP server.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/noopcheck/internal/config"
	"github.com/deixis/noopcheck/internal/runner"
)

// Dumper starts opcode dumps.
// Implemented by runner.Runner.
type Dumper interface {
	Prepare(ctx context.Context) error
	Start(path string, optimize bool) *runner.Process
}

// Engine holds shared dependencies for a check.
type Engine struct {
	Config  *config.Config
	Runner  Dumper
	Verbose bool // log non-fatal stream setup problems
}

// NewRunner builds a runner.Runner from cfg. binary overrides cfg.PHP
// when non-empty.
func NewRunner(cfg *config.Config, binary string) (*runner.Runner, error) {
	if binary == "" {
		binary = cfg.PHP
	}
	path, err := runner.ResolveBinary(binary)
	if err != nil {
		return nil, err
	}
	return &runner.Runner{
		Binary:        path,
		Timeout:       cfg.Timeout(),
		MaxOutput:     cfg.MaxOutputBytes(),
		Extension:     cfg.ExtensionMode(),
		ExtensionName: cfg.ExtensionName,
		ExtraArgs:     cfg.Args,
		Unoptimized:   levels(cfg.Unoptimized, runner.DefaultUnoptimized),
		Optimized:     levels(cfg.Optimized, runner.DefaultOptimized),
	}, nil
}

func levels(lc config.LevelConfig, def runner.Levels) runner.Levels {
	lv := def
	if lc.DebugLevel != "" {
		lv.DebugLevel = lc.DebugLevel
	}
	if lc.OptimizationLevel != "" {
		lv.OptimizationLevel = lc.OptimizationLevel
	}
	return lv
}

// ErrInputNotFound is returned when the file to check does not exist.
var ErrInputNotFound = errors.New("file does not exist")

// SubprocessError reports a dump that did not produce a listing: php
// exited non-zero, could not be started, or timed out.
type SubprocessError struct {
	Optimized bool
	Message   string // first line of php's output, or the operational failure
	Err       error  // underlying cause, if any (e.g. runner.ErrTimeout)
}

func (e *SubprocessError) Error() string {
	pass := "unoptimized"
	if e.Optimized {
		pass = "optimized"
	}
	return fmt.Sprintf("%s dump failed: %s", pass, e.Message)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}
