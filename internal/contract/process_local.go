package contract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Wait keeps reading pipes held open by orphans
// after the process group was killed.
const waitDelay = 500 * time.Millisecond

// ErrTimeout is returned when an external process outlives its timeout.
var ErrTimeout = errors.New("process timed out")

// ExitError reports a process that finished with a non-zero exit code.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// ExecRunner implements ProcessRunner with os/exec. No shell is involved,
// so arguments are never re-quoted.
type ExecRunner struct{}

var _ ProcessRunner = &ExecRunner{} // Compile-time check

// NewExecRunner creates a new process runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts inv and waits for it to finish or time out.
// A timeout yields ErrTimeout with ExitCode -1; a non-zero exit yields *ExitError.
// Captured output is returned in both cases.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (InvocationResult, error) {
	if inv.Name == "" {
		return InvocationResult{ExitCode: -1}, errors.New("invocation has no executable")
	}
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err := cmd.Run()
	res := InvocationResult{
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		res.TimedOut = true
		return res, fmt.Errorf("%s after %v: %w", inv.Name, inv.Timeout, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Name: inv.Name, ExitCode: res.ExitCode, Stderr: stderrBuf.String()}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("exec %s: %w", inv.Name, err)
	}
	return res, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
