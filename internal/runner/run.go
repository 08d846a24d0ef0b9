package runner

import (
	"fmt"
	"io"
	"os/exec"

	"reprounzip/internal/executor"
)

// Execute runs line through /bin/sh attached to the terminal and reports
// the raw exit status on stderr, also when the run was interrupted.
func Execute(ex *executor.Executor, line string, stderr io.Writer) (int, error) {
	ex.Logger.Debug("executing", "command", line)
	cmd := exec.Command("/bin/sh", "-c", line)
	err := ex.WithInteractive().Run(cmd)
	status, ok := executor.Status(err)
	if !ok {
		return 0, err
	}
	fmt.Fprintf(stderr, "\n*** Command finished, status: %d\n", status)
	return status, nil
}
