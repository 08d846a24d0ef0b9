package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
)

// watchSignals cancels ctx on the first SIGINT or SIGTERM so the running
// command is stopped and still reports its status. A second signal exits
// immediately.
func watchSignals(ctx context.Context, cancel context.CancelFunc, stderr io.Writer) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			fmt.Fprintln(stderr, color.Danger.Sprintf("\nReceived %v, stopping", sig))
			cancel()
		case <-done:
			return
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			fmt.Fprintln(stderr, color.Danger.Sprint("\nSecond interrupt received, exiting now"))
			os.Exit(130)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
