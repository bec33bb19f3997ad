package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/arung-agamani/pgtun/internal/proc"
	"github.com/sirupsen/logrus"
)

// SpawnError reports a dump tool that could not be started.
type SpawnError struct {
	Tool     string
	Path     string
	NotFound bool
	Err      error
}

func (e *SpawnError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("%s not found at '%s'. Please ensure PostgreSQL client tools are installed", e.Tool, e.Path)
	}
	return fmt.Sprintf("cannot execute %s at '%s': %v", e.Tool, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitCode follows the shell: 127 for a missing command, 126 otherwise.
func (e *SpawnError) ExitCode() int {
	if e.NotFound {
		return 127
	}
	return 126
}

// Result is the outcome of one dump run.
type Result struct {
	Code     int
	Duration time.Duration
	Signal   os.Signal // set when the run was interrupted
}

// Invoker runs a dump tool with the caller's standard streams.
type Invoker struct {
	Spawner proc.Spawner
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	// Grace is how long an interrupted child gets before it is killed.
	Grace time.Duration
	Log   logrus.FieldLogger
}

func NewInvoker(log logrus.FieldLogger) *Invoker {
	return &Invoker{
		Spawner: proc.ExecSpawner{},
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Grace:   5 * time.Second,
		Log:     log,
	}
}

// Invoke runs path with args and returns the child's exit code verbatim.
// When ctx is cancelled with a *proc.Interrupt cause, that signal is
// forwarded to the child and the code becomes 128+signal.
func (inv *Invoker) Invoke(ctx context.Context, tool, path string, args []string) (Result, error) {
	log := inv.logger().WithFields(logrus.Fields{"tool": tool, "path": path})
	start := time.Now()

	p, err := inv.Spawner.Spawn(proc.Spec{
		Path:   path,
		Args:   args,
		Stdin:  inv.Stdin,
		Stdout: inv.Stdout,
		Stderr: inv.Stderr,
	})
	if err != nil {
		return Result{}, spawnErr(tool, path, err)
	}
	log.WithField("pid", p.Pid()).Debug("dump started")

	select {
	case <-p.Done():
		code, err := p.Wait()
		res := Result{Code: code, Duration: time.Since(start)}
		if err != nil {
			return res, fmt.Errorf("wait for %s: %w", tool, err)
		}
		log.WithFields(logrus.Fields{"code": code, "duration": res.Duration}).Debug("dump finished")
		return res, nil
	case <-ctx.Done():
	}

	sig := os.Signal(syscall.SIGTERM)
	var intr *proc.Interrupt
	if errors.As(context.Cause(ctx), &intr) {
		sig = intr.Signal
	}
	log.WithField("signal", sig.String()).Info("relaying signal to dump")
	if err := p.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.WithError(err).Warn("failed to signal dump")
	}

	grace := inv.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.Done():
	case <-timer.C:
		log.WithField("grace", grace).Warn("dump did not exit after signal, killing")
		_ = p.Kill()
		<-p.Done()
	}
	return Result{Code: 128 + proc.SignalNumber(sig), Duration: time.Since(start), Signal: sig}, nil
}

func (inv *Invoker) logger() logrus.FieldLogger {
	if inv.Log != nil {
		return inv.Log
	}
	return logger.Discard()
}
