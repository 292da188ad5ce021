package contract

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func skipIfShellNotAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not found in PATH: %v", err)
	}
}

func TestExecRunner_Run(t *testing.T) {
	skipIfShellNotAvailable(t)
	runner := NewExecRunner()
	ctx := context.Background()

	t.Run("captures output", func(t *testing.T) {
		res, err := runner.Run(ctx, Invocation{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "out\n", string(res.Stdout))
		assert.Equal(t, "err\n", string(res.Stderr))
	})

	t.Run("runs in dir with env", func(t *testing.T) {
		dir := t.TempDir()
		res, err := runner.Run(ctx, Invocation{
			Name: "sh",
			Args: []string{"-c", "pwd; echo $EXECDIFF_PROBE"},
			Dir:  dir,
			Env:  []string{"EXECDIFF_PROBE=ok"},
		})
		require.NoError(t, err)
		assert.Contains(t, string(res.Stdout), "ok")
	})

	t.Run("non zero exit", func(t *testing.T) {
		res, err := runner.Run(ctx, Invocation{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
		require.Error(t, err)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, 3, res.ExitCode)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("timeout", func(t *testing.T) {
		res, err := runner.Run(ctx, Invocation{Name: "sh", Args: []string{"-c", "sleep 5"}, Timeout: 50 * time.Millisecond})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.True(t, res.TimedOut)
		assert.Equal(t, -1, res.ExitCode)
	})

	t.Run("timeout kills spawned children", func(t *testing.T) {
		start := time.Now()
		res, err := runner.Run(ctx, Invocation{
			Name:    "sh",
			Args:    []string{"-c", "sleep 4; echo done"},
			Timeout: 200 * time.Millisecond,
		})
		elapsed := time.Since(start)
		require.ErrorIs(t, err, ErrTimeout)
		assert.True(t, res.TimedOut)
		assert.NotContains(t, string(res.Stdout), "done")
		assert.Less(t, elapsed, 2*time.Second)
	})

	t.Run("missing executable", func(t *testing.T) {
		res, err := runner.Run(ctx, Invocation{Name: "execdiff-no-such-binary"})
		require.Error(t, err)
		assert.Equal(t, -1, res.ExitCode)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := runner.Run(ctx, Invocation{})
		assert.Error(t, err)
	})
}

func TestMockProcessRunner(t *testing.T) {
	m := new(MockProcessRunner)
	ctx := context.Background()
	inv := Invocation{Name: "java", Args: []string{"-jar", "explainer.jar"}}
	m.On("Run", ctx, inv).Return(InvocationResult{ExitCode: 1}, errors.New("failed")).Once()

	res, err := m.Run(ctx, inv)
	assert.EqualError(t, err, "failed")
	assert.Equal(t, 1, res.ExitCode)
	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "Run", 1)
	m.AssertCalled(t, "Run", mock.Anything, inv)
}
