// Package runner spawns the PHP binary in syntax-check mode with opcache's
// debug output enabled and captures the opcode listing it prints.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Extension loading modes.
const (
	ExtensionAuto   = "auto"   // load opcache only if `php -m` does not list it
	ExtensionAlways = "always" // always pass -d zend_extension
	ExtensionNever  = "never"  // never pass -d zend_extension
)

// Levels selects one opcache configuration for a dump.
type Levels struct {
	DebugLevel        string // opcache.opt_debug_level
	OptimizationLevel string // opcache.optimization_level
}

var (
	// DefaultUnoptimized dumps the opcodes before any optimizer pass runs.
	DefaultUnoptimized = Levels{DebugLevel: "0x10000", OptimizationLevel: "0"}
	// DefaultOptimized enables every pass and dumps the result.
	DefaultOptimized = Levels{DebugLevel: "0x20000", OptimizationLevel: "-1"}
)

// Runner starts opcode dumps of PHP files.
type Runner struct {
	Binary        string        // path to the php binary
	Timeout       time.Duration // per-dump limit for BlockingRead; 0 means none
	MaxOutput     int           // bytes kept per dump; 0 means unlimited
	Extension     string        // ExtensionAuto, ExtensionAlways or ExtensionNever
	ExtensionName string        // zend_extension value, e.g. opcache.so
	ExtraArgs     []string      // passed before --syntax-check
	Unoptimized   Levels
	Optimized     Levels
	Verbose       bool // log every spawned command

	mu      sync.Mutex
	loadExt bool
}

// DefaultExtensionName returns the opcache library name for the host OS.
func DefaultExtensionName() string {
	if runtime.GOOS == "windows" {
		return "php_opcache.dll"
	}
	return "opcache.so"
}

// Prepare decides whether the opcache extension must be loaded explicitly.
// It must be called before Start whenever Extension is ExtensionAuto.
// A failed probe leaves the extension unloaded so the dump itself reports
// what is wrong with the interpreter.
func (r *Runner) Prepare(ctx context.Context) error {
	var load bool
	switch r.Extension {
	case "", ExtensionAuto:
		loaded, err := r.HasExtension(ctx)
		if err != nil {
			if r.Verbose {
				log.Printf("%v; not loading the opcache extension", err)
			}
			break
		}
		load = !loaded
	case ExtensionAlways:
		load = true
	case ExtensionNever:
	default:
		return fmt.Errorf("unknown extension mode %q", r.Extension)
	}
	r.mu.Lock()
	r.loadExt = load
	r.mu.Unlock()
	return nil
}

// HasExtension reports whether `php -m` lists Zend OPcache.
func (r *Runner) HasExtension(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, "-m")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, fmt.Errorf("executing %s: %w", r.Binary, err)
		}
		return false, fmt.Errorf("listing modules of %s: %s", r.Binary, firstLine(normalize(out.String())))
	}
	return strings.Contains(out.String(), "Zend OPcache"), nil
}

// Argv returns the command line used to dump path.
func (r *Runner) Argv(path string, optimize bool) []string {
	lv := r.Unoptimized
	if optimize {
		lv = r.Optimized
	}
	if lv == (Levels{}) {
		lv = DefaultUnoptimized
		if optimize {
			lv = DefaultOptimized
		}
	}

	argv := []string{
		r.Binary,
		"-d", "opcache.enable_cli=1",
		"-d", "opcache.opt_debug_level=" + lv.DebugLevel,
		"-d", "opcache.optimization_level=" + lv.OptimizationLevel,
	}
	r.mu.Lock()
	load := r.loadExt
	r.mu.Unlock()
	if load {
		name := r.ExtensionName
		if name == "" {
			name = DefaultExtensionName()
		}
		argv = append(argv, "-d", "zend_extension="+name)
	}
	argv = append(argv, r.ExtraArgs...)
	return append(argv, "--syntax-check", path)
}

// Start spawns a dump of path and returns immediately. The child's stdout
// and stderr share a single pipe, so the listing is captured no matter
// which stream PHP writes it to. The child's stdin is /dev/null; PHP reads
// the file from path.
//
// Spawn failures do not return an error: the returned Process is already
// complete and carries the failure as its error message.
func (r *Runner) Start(path string, optimize bool) *Process {
	argv := r.Argv(path, optimize)
	p := &Process{
		RunID:     uuid.New().String(),
		Argv:      argv,
		Optimized: optimize,
		timeout:   r.Timeout,
	}
	p.out = &limitWriter{buf: &p.raw, limit: r.MaxOutput}

	if r.Verbose {
		log.Printf("running %s", strings.Join(argv, " "))
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		p.exitCode = -1
		p.complete("", fmt.Sprintf("creating pipe for %s: %v", argv[0], err))
		return p
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		p.exitCode = -1
		p.complete("", fmt.Sprintf("starting %s: %v", argv[0], err))
		return p
	}
	// The child holds its own copy; ours must go or EOF never arrives.
	_ = pw.Close()

	p.cmd = cmd
	p.stream = pr
	if err := p.setNonblocking(); err != nil {
		p.SetupErr = fmt.Errorf("%w: %v", ErrStreamSetup, err)
	}
	return p
}

// ResolveBinary returns the php binary to invoke. An explicit name wins,
// then $PHP_BINARY, then php on PATH.
func ResolveBinary(name string) (string, error) {
	if name == "" {
		name = os.Getenv("PHP_BINARY")
	}
	if name == "" {
		name = "php"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolving php binary: %w", err)
	}
	return path, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
// A limit of zero or less disables the cap.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *limitWriter) full() bool {
	return w.limit > 0 && w.buf.Len() >= w.limit
}

// normalize trims the output and drops carriage returns.
func normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\r", "")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
