package runner

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
)

func fourRuns() *pack.Config {
	return &pack.Config{Runs: []pack.Run{
		{ID: "prepare"}, {}, {ID: "plot"}, {},
	}}
}

func TestSelectRuns(t *testing.T) {
	cfg := fourRuns()
	cases := []struct {
		sel  string
		want []int
	}{
		{"", []int{0, 1, 2, 3}},
		{"2", []int{2}},
		{"1-2", []int{1, 2}},
		{"-1", []int{0, 1}},
		{"2-", []int{2, 3}},
		{"plot,0", []int{2, 0}},
		{"prepare, 3", []int{0, 3}},
	}
	for _, tc := range cases {
		got, err := SelectRuns(cfg, tc.sel)
		assert.NilError(t, err, tc.sel)
		assert.DeepEqual(t, got, tc.want)
	}
}

func TestSelectRunsErrors(t *testing.T) {
	cfg := fourRuns()
	for _, sel := range []string{"4", "x", "3-1", "1-9", ","} {
		_, err := SelectRuns(cfg, sel)
		assert.Assert(t, errors.Is(err, errdefs.ErrUsage), "%q: %v", sel, err)
	}
}
