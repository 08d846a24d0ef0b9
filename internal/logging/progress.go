package logging

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// NewProgress returns a progress bar drawn on stderr, or a silent one when
// stderr is not a terminal. A negative total renders a spinner.
func NewProgress(total int64, description string, bytes bool) *progressbar.ProgressBar {
	var out io.Writer = os.Stderr
	if !IsTerminal(os.Stderr) {
		out = io.Discard
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(bytes),
		progressbar.OptionClearOnFinish(),
	)
}
