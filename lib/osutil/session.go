package osutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ForcedExitCode is the exit status used when a second signal arrives
// before the process stopped on its own.
const ForcedExitCode = 130

// SignalContext returns a context that is cancelled on the first Ctrl+C or
// SIGTERM, a second one exits the process immediately. The returned stop
// function releases the signal handler.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			slog.Warn("stopping, waiting for in-flight work to finish (signal again to force)", "signal", sig.String())
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigs:
			slog.Error("forced exit")
			os.Exit(ForcedExitCode)
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
		cancel()
	}
	return ctx, stop
}
