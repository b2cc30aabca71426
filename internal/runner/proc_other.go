//go:build !unix

package runner

import (
	"errors"
	"os/exec"
	"runtime"
	"syscall"
)

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func setNonblock(syscall.RawConn) error {
	return errors.New("non-blocking pipes are not supported on " + runtime.GOOS)
}

func readAvailable(syscall.RawConn, []byte) (int, error) {
	return 0, errWouldBlock
}
