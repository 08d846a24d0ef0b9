package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitCode(nil), 0)
	assert.Equal(t, ExitCode(errors.New("boom")), 1)
	assert.Equal(t, ExitCode(&ExitStatus{Code: 3}), 3)
	assert.Equal(t, ExitCode(fmt.Errorf("wrapped: %w", &ExitStatus{Code: 42})), 42)
	assert.Equal(t, ExitCode(&ExitStatus{Code: -2}), 130)
	assert.Equal(t, ExitCode(fmt.Errorf("unmount: %w", ErrNothingToDo)), 0)
}

func TestUsagef(t *testing.T) {
	err := Usagef("target %s is missing", "/tmp/x")
	assert.Assert(t, errors.Is(err, ErrUsage))
	assert.ErrorContains(t, err, "target /tmp/x is missing")
}
