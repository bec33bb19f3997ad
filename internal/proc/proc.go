// Package proc wraps OS subprocesses behind small interfaces so the tunnel
// and dump layers can be driven by fakes in tests.
package proc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Spec describes a process to start.
type Spec struct {
	Path   string
	Args   []string
	Env    []string // nil inherits the parent environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a started child process.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	// Wait blocks until the process exits and returns its exit code.
	// A process killed by signal N reports 128+N. Wait may be called
	// any number of times and from several goroutines.
	Wait() (int, error)
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// Spawner starts processes.
type Spawner interface {
	Spawn(spec Spec) (Process, error)
}

// ExecSpawner starts real processes with os/exec.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(spec Spec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int
	err  error
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()
	p.code, p.err = ExitCode(err)
	close(p.done)
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() (int, error) {
	<-p.done
	return p.code, p.err
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

// ExitCode converts the error returned by exec.Cmd.Wait into a shell-style
// exit code. Errors that are not exit statuses are returned unchanged.
func ExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

// SignalNumber returns the numeric value of sig, or 0 when it has none.
func SignalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}

// TailBuffer keeps the last Max bytes written to it. Safe for concurrent use.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf []byte
}

func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{Max: max}
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if b.Max > 0 && len(b.buf) > b.Max {
		b.buf = append([]byte(nil), b.buf[len(b.buf)-b.Max:]...)
	}
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Interrupt is the cancellation cause recorded when a signal ends the run.
type Interrupt struct {
	Signal os.Signal
}

func (i *Interrupt) Error() string {
	return "interrupted by " + i.Signal.String()
}

// ExitCode is the shell convention for death by this signal.
func (i *Interrupt) ExitCode() int {
	return 128 + SignalNumber(i.Signal)
}
