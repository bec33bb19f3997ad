// Package proctest provides scriptable fakes for proc.Spawner and proc.Process.
package proctest

import (
	"os"
	"sync"

	"github.com/arung-agamani/pgtun/internal/proc"
)

// Process is a fake child. It runs until Exit is called, or until a signal
// arrives when ExitOnSignal is set, or until Kill.
type Process struct {
	PID          int
	ExitOnSignal bool

	mu      sync.Mutex
	signals []os.Signal
	killed  bool
	done    chan struct{}
	once    sync.Once
	code    int
}

func NewProcess(pid int) *Process {
	return &Process{PID: pid, ExitOnSignal: true, done: make(chan struct{})}
}

func (p *Process) Pid() int { return p.PID }

func (p *Process) Signal(sig os.Signal) error {
	if p.Exited() {
		return os.ErrProcessDone
	}
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	exit := p.ExitOnSignal
	p.mu.Unlock()
	if exit {
		p.Exit(128 + proc.SignalNumber(sig))
	}
	return nil
}

func (p *Process) Kill() error {
	if p.Exited() {
		return os.ErrProcessDone
	}
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(137)
	return nil
}

func (p *Process) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, nil
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Exit terminates the fake with code. Only the first call has an effect.
func (p *Process) Exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Spawner records every spawn request. OnSpawn, when set, builds the
// process to return; otherwise a fresh Process is created.
type Spawner struct {
	Err     error
	OnSpawn func(spec proc.Spec) (*Process, error)

	mu        sync.Mutex
	specs     []proc.Spec
	processes []*Process
}

func (s *Spawner) Spawn(spec proc.Spec) (proc.Process, error) {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	n := len(s.specs)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	var (
		p   *Process
		err error
	)
	if s.OnSpawn != nil {
		p, err = s.OnSpawn(spec)
		if err != nil {
			return nil, err
		}
	} else {
		p = NewProcess(1000 + n)
	}
	s.mu.Lock()
	s.processes = append(s.processes, p)
	s.mu.Unlock()
	return p, nil
}

func (s *Spawner) Specs() []proc.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proc.Spec(nil), s.specs...)
}

func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.processes...)
}
