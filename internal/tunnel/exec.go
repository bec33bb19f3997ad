package tunnel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"syscall"

	"github.com/arung-agamani/pgtun/internal/port"
	"github.com/arung-agamani/pgtun/internal/proc"
)

// maxStderrBytes bounds how much ssh output is kept for error reports.
const maxStderrBytes = 4096

// baseOptions keep a dead bastion from hanging the run.
var baseOptions = []string{
	"ExitOnForwardFailure=yes",
	"ConnectTimeout=10",
	"ServerAliveInterval=5",
	"ServerAliveCountMax=2",
}

// ExecLauncher runs the system ssh client with a single -L forward.
// Authentication is left to the user's ssh configuration and agent.
type ExecLauncher struct {
	Binary    string
	Spawner   proc.Spawner
	BatchMode bool
	Options   []string // extra -o values
	// Stderr, when set, also receives ssh's error output as it arrives.
	Stderr io.Writer
}

// Args returns the ssh argument vector for spec.
func (l *ExecLauncher) Args(spec Spec) []string {
	args := []string{"-N"}
	for _, o := range baseOptions {
		args = append(args, "-o", o)
	}
	if l.BatchMode {
		args = append(args, "-o", "BatchMode=yes")
	}
	for _, o := range l.Options {
		args = append(args, "-o", o)
	}
	if spec.IdentityFile != "" {
		args = append(args, "-i", spec.IdentityFile)
	}
	args = append(args,
		"-p", strconv.Itoa(spec.Bastion.Port),
		"-L", fmt.Sprintf("%s:%d:%s:%d", port.LoopbackHost, spec.LocalPort, forwardHost(spec.RemoteHost), spec.RemotePort),
	)
	dest := spec.Bastion.Host
	if spec.Bastion.User != "" {
		dest = spec.Bastion.User + "@" + dest
	}
	// "--" keeps a hostile destination from being read as an option.
	return append(args, "--", dest)
}

// forwardHost brackets IPv6 literals the way ssh -L expects.
func forwardHost(h string) string {
	for i := 0; i < len(h); i++ {
		if h[i] == ':' {
			return "[" + h + "]"
		}
	}
	return h
}

func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (Forwarder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin := l.Binary
	if bin == "" {
		bin = "ssh"
	}
	spawner := l.Spawner
	if spawner == nil {
		spawner = proc.ExecSpawner{}
	}

	stderr := proc.NewTailBuffer(maxStderrBytes)
	var w io.Writer = stderr
	if l.Stderr != nil {
		w = io.MultiWriter(stderr, l.Stderr)
	}
	p, err := spawner.Spawn(proc.Spec{Path: bin, Args: l.Args(spec), Stderr: w})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	return &execForwarder{p: p, stderr: stderr}, nil
}

type execForwarder struct {
	p      proc.Process
	stderr *proc.TailBuffer
}

func (f *execForwarder) Done() <-chan struct{} { return f.p.Done() }
func (f *execForwarder) Terminate() error     { return f.p.Signal(syscall.SIGTERM) }
func (f *execForwarder) Kill() error          { return f.p.Kill() }
func (f *execForwarder) Diagnostics() string  { return f.stderr.String() }
