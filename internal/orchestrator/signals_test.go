package orchestrator

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/arung-agamani/pgtun/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSignalsCancelsWithInterrupt(t *testing.T) {
	ch := make(chan os.Signal, 1)
	ctx, stop := watchSignals(context.Background(), ch)
	defer stop()

	ch <- syscall.SIGHUP
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	var intr *proc.Interrupt
	require.True(t, errors.As(context.Cause(ctx), &intr))
	assert.Equal(t, syscall.SIGHUP, intr.Signal)
	assert.Equal(t, 129, intr.ExitCode())
}

func TestWatchSignalsStop(t *testing.T) {
	ch := make(chan os.Signal, 1)
	ctx, stop := watchSignals(context.Background(), ch)
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestNotifyContextRealSignal(t *testing.T) {
	ctx, stop := NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled")
	}
	var intr *proc.Interrupt
	require.ErrorAs(t, context.Cause(ctx), &intr)
	assert.Equal(t, syscall.SIGUSR1, intr.Signal)
}
