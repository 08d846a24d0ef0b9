package privilege

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"

	"reprounzip/internal/errdefs"
)

func TestResolveTable(t *testing.T) {
	cases := []struct {
		req      Request
		elevated bool
		want     Outcome
		wantErr  bool
	}{
		{Unset, true, Enabled, false},
		{Unset, false, Skipped, false},
		{Yes, true, Enabled, false},
		{Yes, false, Disabled, true},
		{No, true, Disabled, false},
		{No, false, Disabled, false},
	}
	for _, tc := range cases {
		got, err := Resolve(tc.req, tc.elevated)
		if tc.wantErr {
			assert.Assert(t, errors.Is(err, errdefs.ErrPrivilege), "%s elevated=%v", tc.req, tc.elevated)
			continue
		}
		assert.NilError(t, err)
		assert.Equal(t, got, tc.want, "%s elevated=%v", tc.req, tc.elevated)
	}
}

func TestFromFlags(t *testing.T) {
	r, err := FromFlags(true, false)
	assert.NilError(t, err)
	assert.Equal(t, r, Yes)
	r, err = FromFlags(false, false)
	assert.NilError(t, err)
	assert.Equal(t, r, Unset)
	_, err = FromFlags(true, true)
	assert.Assert(t, errors.Is(err, errdefs.ErrUsage))
}

func TestDecideWarnsWhenSkipped(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Trace})

	on, err := RestoreOwner.Decide(Unset, false, logger)
	assert.NilError(t, err)
	assert.Assert(t, !on)
	assert.Assert(t, strings.Contains(buf.String(), "won't restore"))

	_, err = MountMagicDirs.Decide(Yes, false, logger)
	assert.Assert(t, errors.Is(err, errdefs.ErrPrivilege))
}
