// Package runner composes the shell command lines that re-execute recorded
// runs and executes them.
package runner

import (
	"strconv"
	"strings"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
)

// SelectRuns parses a run selection: a comma separated list of run ids,
// indices and ranges ("1-3", "-2", "2-"). An empty selection picks every run.
func SelectRuns(cfg *pack.Config, selection string) ([]int, error) {
	n := len(cfg.Runs)
	if strings.TrimSpace(selection) == "" {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	byID := make(map[string]int, n)
	for i, run := range cfg.Runs {
		if run.ID != "" {
			byID[run.ID] = i
		}
	}

	var selected []int
	for _, tok := range strings.Split(selection, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if i, ok := byID[tok]; ok {
			selected = append(selected, i)
			continue
		}
		lo, hi, err := parseRange(tok, n)
		if err != nil {
			return nil, err
		}
		for i := lo; i <= hi; i++ {
			selected = append(selected, i)
		}
	}
	if len(selected) == 0 {
		return nil, errdefs.Usagef("no run selected by %q", selection)
	}
	return selected, nil
}

func parseRange(tok string, n int) (int, int, error) {
	first, last, isRange := strings.Cut(tok, "-")
	index := func(s string, def int) (int, error) {
		if s == "" {
			return def, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, errdefs.Usagef("unknown run %q", tok)
		}
		if i < 0 || i >= n {
			return 0, errdefs.Usagef("run index %d out of range (%d runs)", i, n)
		}
		return i, nil
	}
	if !isRange {
		i, err := index(tok, 0)
		return i, i, err
	}
	lo, err := index(first, 0)
	if err != nil {
		return 0, 0, err
	}
	hi, err := index(last, n-1)
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, errdefs.Usagef("empty run range %q", tok)
	}
	return lo, hi, nil
}
