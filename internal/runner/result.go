package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

var (
	// ErrStreamSetup is recorded in Process.SetupErr when the output pipe
	// cannot be switched to non-blocking mode. Reads still work but block.
	ErrStreamSetup = errors.New("unable to make output stream non-blocking")

	// ErrBlockingSetup is returned by BlockingRead when the output pipe
	// cannot be switched to blocking mode.
	ErrBlockingSetup = errors.New("unable to make output stream blocking")

	// ErrTimeout is returned by BlockingRead when the child did not close
	// its output within the runner's timeout. The child is killed.
	ErrTimeout = errors.New("timed out waiting for output")

	// ErrIncompleteRead is returned by BlockingRead when a blocking read
	// stopped before end of stream for no known reason.
	ErrIncompleteRead = errors.New("failed to read output to completion")

	errWouldBlock = errors.New("read would block")
)

// Process is one running or finished dump. It is pending until Read or
// BlockingRead observes end of stream; only then are the results set.
type Process struct {
	RunID     string
	Argv      []string
	Optimized bool
	SetupErr  error // non-fatal stream setup failure, see ErrStreamSetup

	cmd         *exec.Cmd
	stream      *os.File
	conn        syscall.RawConn
	nonblocking bool
	timeout     time.Duration

	raw bytes.Buffer
	out *limitWriter

	done      bool
	errMsg    string
	output    string
	exitCode  int
	truncated bool
}

// Done reports whether the process has completed.
func (p *Process) Done() bool {
	return p.done
}

// Err returns the failure message, or "" if the dump succeeded. For a
// non-zero exit this is the first line of the child's output.
// It panics if the process has not completed.
func (p *Process) Err() string {
	p.mustBeDone("Err")
	return p.errMsg
}

// Output returns the normalized listing of a successful dump.
// It panics if the process has not completed.
func (p *Process) Output() string {
	p.mustBeDone("Output")
	return p.output
}

// ExitCode returns the child's exit code, or -1 if it never ran to exit.
// It panics if the process has not completed.
func (p *Process) ExitCode() int {
	p.mustBeDone("ExitCode")
	return p.exitCode
}

// Truncated reports whether output beyond the runner's MaxOutput was
// discarded. It panics if the process has not completed.
func (p *Process) Truncated() bool {
	p.mustBeDone("Truncated")
	return p.truncated
}

// Read drains whatever output is currently available and reports whether
// the process has completed. In non-blocking mode it never waits for more
// data. At end of stream the pipe is closed and the child reaped.
func (p *Process) Read() bool {
	if p.done {
		return true
	}
	buf := make([]byte, 4096)
	for {
		var (
			n   int
			err error
		)
		if p.nonblocking {
			n, err = readAvailable(p.conn, buf)
		} else {
			n, err = p.stream.Read(buf)
		}
		if n > 0 {
			_, _ = p.out.Write(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.finish()
			return true
		case errors.Is(err, errWouldBlock), errors.Is(err, os.ErrDeadlineExceeded):
			return false
		default:
			p.abort(fmt.Sprintf("reading output of %s: %v", p.Argv[0], err))
			return true
		}
	}
}

// BlockingRead switches the stream to blocking mode and reads until the
// process completes, the runner's timeout expires or ctx is done. On
// timeout or cancellation the child's process group is killed and the
// process completes with an error message. The process is always complete
// when BlockingRead returns.
func (p *Process) BlockingRead(ctx context.Context) error {
	if p.done {
		return nil
	}

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	// Streams without deadline support still block; they just cannot time out.
	if err := p.stream.SetReadDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		p.abort(fmt.Sprintf("%s: %v", p.Argv[0], ErrBlockingSetup))
		return fmt.Errorf("%w: %v", ErrBlockingSetup, err)
	}
	p.nonblocking = false

	stop := context.AfterFunc(ctx, func() {
		_ = p.stream.SetReadDeadline(time.Now())
	})
	defer stop()

	if p.Read() {
		return nil
	}

	switch {
	case ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		p.abort(fmt.Sprintf("%s: %v", p.Argv[0], ctx.Err()))
		return ctx.Err()
	case !deadline.IsZero() && !time.Now().Before(deadline):
		p.abort(fmt.Sprintf("%s produced no complete output within %s", p.Argv[0], p.timeoutLabel(ctx)))
		return fmt.Errorf("%w from %s", ErrTimeout, p.Argv[0])
	default:
		p.abort(fmt.Sprintf("%s: %v", p.Argv[0], ErrIncompleteRead))
		return ErrIncompleteRead
	}
}

func (p *Process) timeoutLabel(ctx context.Context) string {
	if _, ok := ctx.Deadline(); ok || p.timeout <= 0 {
		return "the caller's deadline"
	}
	return p.timeout.String()
}

func (p *Process) setNonblocking() error {
	conn, err := p.stream.SyscallConn()
	if err != nil {
		return err
	}
	if err := setNonblock(conn); err != nil {
		return err
	}
	p.conn = conn
	p.nonblocking = true
	return nil
}

// finish closes the stream, reaps the child and classifies its exit.
func (p *Process) finish() {
	_ = p.stream.Close()
	err := p.cmd.Wait()
	p.truncated = p.out.full()
	text := normalize(p.raw.String())

	if err == nil {
		p.exitCode = 0
		p.complete(text, "")
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.exitCode = exitErr.ExitCode()
		msg := firstLine(text)
		if msg == "" {
			msg = fmt.Sprintf("%s: %v", p.Argv[0], exitErr)
		}
		p.complete("", msg)
		return
	}
	p.exitCode = -1
	p.complete("", fmt.Sprintf("waiting for %s: %v", p.Argv[0], err))
}

// abort kills the child's process group, releases the stream and reaps
// the child, completing the process with msg.
func (p *Process) abort(msg string) {
	_ = killProcessGroup(p.cmd)
	_ = p.stream.Close()
	_ = p.cmd.Wait()
	p.truncated = p.out.full()
	p.exitCode = -1
	p.complete("", msg)
}

// complete is the only transition out of the pending state.
func (p *Process) complete(output, errMsg string) {
	if p.done {
		panic("runner: process completed twice")
	}
	if errMsg != "" {
		p.errMsg = errMsg
	} else {
		p.output = output
	}
	p.done = true
}

func (p *Process) mustBeDone(method string) {
	if !p.done {
		panic(fmt.Sprintf("runner: %s called before process %s completed", method, p.RunID))
	}
}
