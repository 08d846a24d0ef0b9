package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"
)

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, LevelFromVerbosity(0), hclog.Warn)
	assert.Equal(t, LevelFromVerbosity(1), hclog.Info)
	assert.Equal(t, LevelFromVerbosity(2), hclog.Debug)
	assert.Equal(t, LevelFromVerbosity(5), hclog.Trace)
}

func TestNewHonorsEnvironment(t *testing.T) {
	t.Setenv("REPROUNZIP_LOG_LEVEL", "debug")
	t.Setenv("REPROUNZIP_JSON_LOG", "1")
	var buf bytes.Buffer
	logger := New(0, &buf)
	logger.Debug("extracting", "member", "DATA/bin/sh")
	out := buf.String()
	assert.Assert(t, strings.Contains(out, `"member":"DATA/bin/sh"`), out)
}

func TestNoticeWritesArrow(t *testing.T) {
	var buf bytes.Buffer
	Notice(&buf, "Experiment set up in %s", "/tmp/exp")
	assert.Assert(t, strings.Contains(buf.String(), "->"))
	assert.Assert(t, strings.Contains(buf.String(), "/tmp/exp"))
}

func TestIsTerminalOnBuffer(t *testing.T) {
	assert.Assert(t, !IsTerminal(&bytes.Buffer{}))
}
