package logging

import (
	"fmt"
	"io"

	"github.com/gookit/color"
)

// color helpers
var (
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// Notice prints an arrow-prefixed progress line for the user.
func Notice(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, colArrow.Sprint("-> "))
	fmt.Fprintln(w, colSuccess.Sprintf(format, args...))
}

// Warning prints a highlighted warning line.
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, colArrow.Sprint("-> "))
	fmt.Fprintln(w, colWarn.Sprintf(format, args...))
}

// Failure prints a highlighted error line.
func Failure(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, colArrow.Sprint("-> "))
	fmt.Fprintln(w, colError.Sprintf(format, args...))
}
