package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/arung-agamani/pgtun/internal/port"
	"github.com/sirupsen/logrus"
)

// Forwarder is a running port forward as seen by the supervisor.
type Forwarder interface {
	// Done is closed when the forwarder has exited for any reason.
	Done() <-chan struct{}
	// Terminate asks the forwarder to shut down gracefully.
	Terminate() error
	// Kill stops the forwarder immediately.
	Kill() error
	// Diagnostics returns captured error output, if any.
	Diagnostics() string
}

// Launcher starts a forwarder for spec. The returned forwarder may still be
// connecting; readiness is checked by the supervisor.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Forwarder, error)
}

// Options tune readiness polling and teardown.
type Options struct {
	ReadyAttempts  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ReadyTimeout   time.Duration
	StopGrace      time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadyAttempts:  10,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		ReadyTimeout:   5 * time.Second,
		StopGrace:      2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadyAttempts <= 0 {
		o.ReadyAttempts = d.ReadyAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.StopGrace <= 0 {
		o.StopGrace = d.StopGrace
	}
	return o
}

// Supervisor starts tunnels and hands out handles that guarantee teardown.
type Supervisor struct {
	launcher Launcher
	opts     Options
	log      logrus.FieldLogger

	// dialReady probes the local endpoint; replaced in tests.
	dialReady func(ctx context.Context, addr string) error
	allocate  func() (int, error)
}

func NewSupervisor(launcher Launcher, opts Options, log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logger.Discard()
	}
	return &Supervisor{
		launcher:  launcher,
		opts:      opts.withDefaults(),
		log:       log.WithField("package", "tunnel"),
		dialReady: dialTCP,
		allocate:  port.Allocate,
	}
}

// Start launches the forwarder and blocks until the local endpoint accepts
// connections. On failure the forwarder is killed, the returned handle is
// nil and the error is a *StartError or *port.AllocationError.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.LocalPort == 0 {
		p, err := s.allocate()
		if err != nil {
			return nil, err
		}
		spec.LocalPort = p
	}

	h := newHandle(spec, s.opts, s.log.WithFields(logrus.Fields{
		"bastion":    spec.Bastion.String(),
		"remote":     spec.RemoteAddress(),
		"local_port": spec.LocalPort,
	}))
	h.transition(StateStarting, "start requested")

	fwd, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		h.transition(StateFailed, "launch failed")
		return nil, &StartError{Bastion: spec.Bastion.String(), Err: err}
	}
	h.fwd = fwd

	if err := s.waitReady(ctx, h); err != nil {
		h.transition(StateFailed, err.Error())
		h.reap()
		return nil, &StartError{Bastion: spec.Bastion.String(), Stderr: fwd.Diagnostics(), Err: err}
	}

	h.transition(StateActive, "local endpoint accepting connections")
	go h.watch()
	return h, nil
}

func (s *Supervisor) waitReady(ctx context.Context, h *Handle) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()

	addr := h.LocalAddress()
	backoff := s.opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.ReadyAttempts; attempt++ {
		select {
		case <-h.fwd.Done():
			return ErrExited
		default:
		}

		if lastErr = s.dialReady(ctx, addr); lastErr == nil {
			h.log.WithField("attempt", attempt).Debug("tunnel ready")
			return nil
		}
		h.log.WithFields(logrus.Fields{"attempt": attempt, "error": lastErr}).Debug("tunnel not ready yet")
		if attempt == s.opts.ReadyAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-h.fwd.Done():
			timer.Stop()
			return ErrExited
		case <-ctx.Done():
			timer.Stop()
			return readyContextErr(ctx)
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
	if ctx.Err() != nil {
		return readyContextErr(ctx)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrNotReady, s.opts.ReadyAttempts, lastErr)
}

func readyContextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrNotReady
	}
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("tunnel start interrupted: %w", cause)
	}
	return ctx.Err()
}

func dialTCP(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Handle is a live tunnel. Stop may be called any number of times from any
// goroutine; teardown happens once.
type Handle struct {
	spec Spec
	opts Options
	log  logrus.FieldLogger
	fwd  Forwarder

	mu          sync.Mutex
	state       State
	transitions []Transition

	stopOnce sync.Once
	stopErr  error
}

func newHandle(spec Spec, opts Options, log logrus.FieldLogger) *Handle {
	return &Handle{spec: spec, opts: opts, log: log, state: StateIdle}
}

func (h *Handle) LocalPort() int { return h.spec.LocalPort }

func (h *Handle) LocalAddress() string {
	return net.JoinHostPort(port.LoopbackHost, strconv.Itoa(h.spec.LocalPort))
}

func (h *Handle) Spec() Spec { return h.spec }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Transitions() []Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Transition(nil), h.transitions...)
}

// transition moves to `to` when the edge is legal and reports whether it did.
func (h *Handle) transition(to State, reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitionLocked(to, reason)
}

func (h *Handle) transitionLocked(to State, reason string) bool {
	from := h.state
	if !canTransition(from, to) {
		return false
	}
	h.state = to
	h.transitions = append(h.transitions, Transition{From: from, To: to, Timestamp: time.Now(), Reason: reason})
	h.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug(reason)
	return true
}

// watch marks the tunnel failed if the forwarder dies while active.
func (h *Handle) watch() {
	<-h.fwd.Done()
	h.mu.Lock()
	failed := h.transitionLocked(StateFailed, "forwarder exited unexpectedly")
	h.mu.Unlock()
	if failed {
		h.log.Warn("ssh tunnel exited unexpectedly")
	}
}

// Stop tears the tunnel down: graceful terminate, a grace period, then kill.
// The returned error is informational only.
func (h *Handle) Stop() error {
	h.stopOnce.Do(func() {
		h.stopErr = h.stop()
	})
	return h.stopErr
}

func (h *Handle) stop() error {
	if !h.transition(StateStopping, "stop requested") {
		// Already failed: nothing is forwarding, just make sure it is gone.
		h.reap()
		return nil
	}
	defer h.transition(StateStopped, "teardown complete")

	select {
	case <-h.fwd.Done():
		return nil
	default:
	}

	termErr := h.fwd.Terminate()
	timer := time.NewTimer(h.opts.StopGrace)
	defer timer.Stop()
	select {
	case <-h.fwd.Done():
		return termErr
	case <-timer.C:
	}

	h.log.WithField("grace", h.opts.StopGrace).Warn("ssh tunnel ignored terminate, killing")
	return h.reap()
}

// reap kills the forwarder if it is still running and waits briefly for it.
func (h *Handle) reap() error {
	if h.fwd == nil {
		return nil
	}
	select {
	case <-h.fwd.Done():
		return nil
	default:
	}
	killErr := h.fwd.Kill()
	timer := time.NewTimer(h.opts.StopGrace)
	defer timer.Stop()
	select {
	case <-h.fwd.Done():
		return nil
	case <-timer.C:
		if killErr != nil {
			return fmt.Errorf("kill ssh tunnel: %w", killErr)
		}
		return errors.New("ssh tunnel still running after kill")
	}
}
