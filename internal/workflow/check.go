package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/deixis/noopcheck/internal/opcache"
	"github.com/deixis/noopcheck/internal/report"
	"github.com/deixis/noopcheck/internal/runner"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CheckResult holds the full outcome of a check.
type CheckResult struct {
	RunResult   *report.RunResult
	Unoptimized *opcache.Dump
	Optimized   *opcache.Dump
}

// Check dumps file twice, unoptimized then optimized, and compares the
// listings. Both dumps must succeed; the first failure is returned as a
// *SubprocessError. A missing file yields ErrInputNotFound before any
// process is spawned.
func (e *Engine) Check(ctx context.Context, file string) (*CheckResult, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", file, err)
	}
	st, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, file)
	}
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", file, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", file)
	}

	if err := e.Runner.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("preparing php: %w", err)
	}

	var unopt, opt *runner.Process
	if e.Config.Concurrent {
		unopt, opt, err = e.dumpConcurrently(ctx, abs)
	} else {
		unopt, opt, err = e.dumpSequentially(ctx, abs)
	}
	if err != nil {
		return nil, err
	}

	unoptimized := opcache.Parse(unopt.Output())
	optimized := opcache.Parse(opt.Output())
	for _, name := range e.Config.ExcludedFunctions() {
		unoptimized.Delete(name)
		optimized.Delete(name)
	}

	truncated := unopt.Truncated() || opt.Truncated()
	if truncated {
		log.Printf("warning: opcode listing for %s exceeded the output cap; later functions were not compared", file)
	}

	return &CheckResult{
		RunResult: &report.RunResult{
			ID:        uuid.New().String(),
			File:      abs,
			Binary:    unopt.Argv[0],
			Functions: countShared(unoptimized, optimized),
			Truncated: truncated,
			Findings:  Compare(unoptimized, optimized),
		},
		Unoptimized: unoptimized,
		Optimized:   optimized,
	}, nil
}

func (e *Engine) dumpSequentially(ctx context.Context, path string) (*runner.Process, *runner.Process, error) {
	unopt, err := e.dump(ctx, path, false)
	if err != nil {
		return nil, nil, err
	}
	opt, err := e.dump(ctx, path, true)
	if err != nil {
		return nil, nil, err
	}
	return unopt, opt, nil
}

func (e *Engine) dumpConcurrently(ctx context.Context, path string) (*runner.Process, *runner.Process, error) {
	var procs [2]*runner.Process
	g, gctx := errgroup.WithContext(ctx)
	for i, optimize := range []bool{false, true} {
		g.Go(func() error {
			p, err := e.dump(gctx, path, optimize)
			procs[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return procs[0], procs[1], nil
}

// dump runs one pass to completion.
func (e *Engine) dump(ctx context.Context, path string, optimize bool) (*runner.Process, error) {
	p := e.Runner.Start(path, optimize)
	if p.SetupErr != nil && e.Verbose {
		log.Printf("%v; reading in blocking mode", p.SetupErr)
	}
	if err := p.BlockingRead(ctx); err != nil {
		msg := err.Error()
		if p.Done() && p.Err() != "" {
			msg = p.Err()
		}
		return p, &SubprocessError{Optimized: optimize, Message: msg, Err: err}
	}
	if msg := p.Err(); msg != "" {
		return p, &SubprocessError{Optimized: optimize, Message: msg}
	}
	return p, nil
}
