package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arung-agamani/pgtun/internal/proc"
)

// Signals are the ones that interrupt a run.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// NotifyContext returns a context that is cancelled with a *proc.Interrupt
// cause when one of sigs arrives. Later signals are ignored.
func NotifyContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	ctx, stop := watchSignals(parent, ch)
	return ctx, func() {
		signal.Stop(ch)
		stop()
	}
}

func watchSignals(parent context.Context, ch <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case sig := <-ch:
			cancel(&proc.Interrupt{Signal: sig})
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}
