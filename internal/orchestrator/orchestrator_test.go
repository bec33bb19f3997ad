package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/arung-agamani/pgtun/internal/args"
	"github.com/arung-agamani/pgtun/internal/config"
	"github.com/arung-agamani/pgtun/internal/dump"
	"github.com/arung-agamani/pgtun/internal/inventory"
	"github.com/arung-agamani/pgtun/internal/port"
	"github.com/arung-agamani/pgtun/internal/proc"
	"github.com/arung-agamani/pgtun/internal/proc/proctest"
	"github.com/arung-agamani/pgtun/internal/tunnel"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// events records the order in which tunnel and dump activity happens.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// fakeForwarder accepts on the local port right away, like a healthy ssh.
// Without a listener it stays up but never becomes ready.
type fakeForwarder struct {
	ev   *events
	ln   net.Listener
	diag string
	once sync.Once
	done chan struct{}
}

func (f *fakeForwarder) Done() <-chan struct{} { return f.done }

func (f *fakeForwarder) Terminate() error {
	f.once.Do(func() {
		f.ev.add("tunnel-stop")
		if f.ln != nil {
			f.ln.Close()
		}
		close(f.done)
	})
	return nil
}

func (f *fakeForwarder) Kill() error         { return f.Terminate() }
func (f *fakeForwarder) Diagnostics() string { return f.diag }

type fakeLauncher struct {
	ev  *events
	err error
	// hang launches forwarders that never listen, with this stderr.
	hang string

	mu       sync.Mutex
	specs    []tunnel.Spec
	backends []tunnel.Backend
	fwds     []*fakeForwarder
}

func (l *fakeLauncher) forBackend(b tunnel.Backend) tunnel.Launcher {
	l.mu.Lock()
	l.backends = append(l.backends, b)
	l.mu.Unlock()
	return l
}

func (l *fakeLauncher) Launch(_ context.Context, spec tunnel.Spec) (tunnel.Forwarder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	if l.hang != "" {
		l.ev.add("tunnel-start")
		f := &fakeForwarder{ev: l.ev, diag: l.hang, done: make(chan struct{})}
		l.fwds = append(l.fwds, f)
		return f, nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(port.LoopbackHost, strconv.Itoa(spec.LocalPort)))
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	l.ev.add("tunnel-start")
	f := &fakeForwarder{ev: l.ev, ln: ln, done: make(chan struct{})}
	l.fwds = append(l.fwds, f)
	return f, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

type fakeAliases map[string]inventory.Entry

func (f fakeAliases) Resolve(name string) (inventory.Entry, bool) {
	e, ok := f[name]
	return e, ok
}

func (f fakeAliases) Aliases() []string {
	return inventory.Resolver{Config: map[string]string{"dev": "x", "prod": "y"}}.Aliases()
}

type harness struct {
	o        *Orchestrator
	ev       *events
	launcher *fakeLauncher
	spawner  *proctest.Spawner
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

// newHarness builds an orchestrator whose dump child exits with code.
func newHarness(t *testing.T, code int) *harness {
	t.Helper()
	ev := &events{}
	h := &harness{
		ev:       ev,
		launcher: &fakeLauncher{ev: ev},
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
	h.spawner = &proctest.Spawner{OnSpawn: func(spec proc.Spec) (*proctest.Process, error) {
		ev.add("dump")
		p := proctest.NewProcess(42)
		p.Exit(code)
		return p, nil
	}}

	cfg := config.Default()
	cfg.Tunnel.ReadyInitialBackoff = 10 * time.Millisecond
	cfg.Tunnel.ReadyMaxBackoff = 20 * time.Millisecond
	cfg.Tunnel.StopGrace = 100 * time.Millisecond

	logger := logrus.New()
	logger.SetOutput(h.stderr)
	logger.SetLevel(logrus.WarnLevel)

	h.o = &Orchestrator{
		Tool:     args.PgDump,
		Config:   cfg,
		Aliases:  fakeAliases{},
		Dumper:   &dump.Invoker{Spawner: h.spawner, Stdout: h.stdout, Stderr: h.stderr, Grace: 100 * time.Millisecond},
		Launcher: h.launcher.forBackend,
		Locate:   func(tool, _ string) (string, error) { return "/usr/bin/" + tool, nil },
		Stdout:   h.stdout,
		Stderr:   h.stderr,
		Logger:   logger,
	}
	return h
}

func (h *harness) dumpArgs(t *testing.T) []string {
	t.Helper()
	specs := h.spawner.Specs()
	require.Len(t, specs, 1, "dump tool spawned once")
	return specs[0].Args
}

func TestRunPassthrough(t *testing.T) {
	h := newHarness(t, 0)
	argv := []string{"-Fc", "-f", "out.dump", "-h", "db.internal", "app"}

	code := h.o.Run(context.Background(), argv)

	assert.Equal(t, 0, code)
	assert.Equal(t, argv, h.dumpArgs(t))
	assert.Zero(t, h.launcher.launchCount())
}

func TestRunForwardsDumpExitCode(t *testing.T) {
	h := newHarness(t, 7)
	assert.Equal(t, 7, h.o.Run(context.Background(), []string{"app"}))
}

func TestRunTunnel(t *testing.T) {
	h := newHarness(t, 0)
	argv := []string{"--ssh-tunnel", "jump@bastion:2222", "-h", "db.internal", "-p", "5433", "-Fc", "app"}

	code := h.o.Run(context.Background(), argv)
	require.Equal(t, 0, code, h.stderr.String())

	require.Len(t, h.launcher.specs, 1)
	spec := h.launcher.specs[0]
	assert.Equal(t, tunnel.Bastion{User: "jump", Host: "bastion", Port: 2222}, spec.Bastion)
	assert.Equal(t, "db.internal", spec.RemoteHost)
	assert.Equal(t, 5433, spec.RemotePort)
	assert.NotZero(t, spec.LocalPort)
	assert.Equal(t, []tunnel.Backend{tunnel.BackendExec}, h.launcher.backends)

	local := strconv.Itoa(spec.LocalPort)
	assert.Equal(t, []string{"-h", "127.0.0.1", "-p", local, "-Fc", "app"}, h.dumpArgs(t))
	assert.Equal(t, []string{"tunnel-start", "dump", "tunnel-stop"}, h.ev.list())
}

func TestRunBareTunnelFlagWithBastionFlags(t *testing.T) {
	h := newHarness(t, 0)
	argv := []string{"--ssh-tunnel", "--ssh-host", "bastion", "-h", "dbhost", "-p", "5432", "-d", "postgres"}

	code := h.o.Run(context.Background(), argv)
	require.Equal(t, 0, code, h.stderr.String())

	require.Len(t, h.launcher.specs, 1)
	spec := h.launcher.specs[0]
	assert.Equal(t, tunnel.Bastion{Host: "bastion", Port: 22}, spec.Bastion)
	assert.Equal(t, "dbhost", spec.RemoteHost)
	assert.Equal(t, 5432, spec.RemotePort)

	local := strconv.Itoa(spec.LocalPort)
	assert.Equal(t, []string{"-h", "127.0.0.1", "-p", local, "-d", "postgres"}, h.dumpArgs(t))
	assert.Equal(t, []string{"tunnel-start", "dump", "tunnel-stop"}, h.ev.list())
}

func TestRunBareTunnelFlagUsesConfig(t *testing.T) {
	h := newHarness(t, 0)
	p, err := config.NewPattern(`db\..*`, "ops@bastion.example.com")
	require.NoError(t, err)
	h.o.Config.SSHTunnels = config.PatternList{Patterns: []config.Pattern{p}}

	require.Equal(t, 0, h.o.Run(context.Background(), []string{"-h", "db.prod", "--ssh-tunnel"}), h.stderr.String())
	require.Equal(t, 1, h.launcher.launchCount())
	assert.Equal(t, "bastion.example.com", h.launcher.specs[0].Bastion.Host)
}

func TestRunTunnelDefaultsFromLibPQ(t *testing.T) {
	h := newHarness(t, 0)
	h.o.LibPQ = config.LibPQ{Host: "db.env", Port: "6543"}

	code := h.o.Run(context.Background(), []string{"--ssh-host", "bastion", "--ssh-user", "ops", "app"})
	require.Equal(t, 0, code, h.stderr.String())

	spec := h.launcher.specs[0]
	assert.Equal(t, tunnel.Bastion{User: "ops", Host: "bastion", Port: 22}, spec.Bastion)
	assert.Equal(t, "db.env", spec.RemoteHost)
	assert.Equal(t, 6543, spec.RemotePort)
	assert.Equal(t, []string{"app", "-h", "127.0.0.1", "-p", strconv.Itoa(spec.LocalPort)}, h.dumpArgs(t))
}

func TestRunTunnelDefaultRemote(t *testing.T) {
	h := newHarness(t, 0)
	require.Equal(t, 0, h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion"}))
	spec := h.launcher.specs[0]
	assert.Equal(t, "localhost", spec.RemoteHost)
	assert.Equal(t, 5432, spec.RemotePort)
}

func TestRunHelpShortCircuits(t *testing.T) {
	for _, tok := range []string{"--help", "-?", "--version", "-V"} {
		t.Run(tok, func(t *testing.T) {
			h := newHarness(t, 0)
			code := h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db", tok})

			assert.Equal(t, 0, code)
			assert.Zero(t, h.launcher.launchCount(), "no tunnel for %s", tok)
			assert.Equal(t, []string{tok}, h.dumpArgs(t))
		})
	}

	h := newHarness(t, 0)
	h.o.Run(context.Background(), []string{"--help"})
	assert.Contains(t, h.stdout.String(), "--ssh-tunnel [URL]")

	h = newHarness(t, 0)
	h.o.Run(context.Background(), []string{"-v"})
	assert.Equal(t, []string{"--version"}, h.dumpArgs(t))
}

func TestRunTunnelStartFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.launcher.err = errors.New("connection refused")

	code := h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db", "app"})

	assert.Equal(t, ExitTunnel, code)
	assert.Empty(t, h.spawner.Specs(), "dump must not run without a tunnel")
	assert.Contains(t, h.stderr.String(), "ssh tunnel via bastion:22 failed")
	assert.Contains(t, h.stderr.String(), "connection refused")
}

func TestRunTunnelNeverReady(t *testing.T) {
	h := newHarness(t, 0)
	h.launcher.hang = "Permission denied (publickey)."
	h.o.Config.Tunnel.ReadyAttempts = 3
	h.o.Config.Tunnel.ReadyTimeout = 300 * time.Millisecond

	code := h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db", "app"})

	assert.Equal(t, ExitTunnel, code)
	assert.Empty(t, h.spawner.Specs(), "dump must not run without a tunnel")
	assert.Equal(t, []string{"tunnel-start", "tunnel-stop"}, h.ev.list(), "forwarder is killed")
	assert.Contains(t, h.stderr.String(), "did not become ready")
	assert.Contains(t, h.stderr.String(), "Permission denied (publickey).")
}

func TestRunPreferredLocalPortBusy(t *testing.T) {
	h := newHarness(t, 0)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port
	h.o.Config.Tunnel.LocalPort = busy

	require.Equal(t, 0, h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db"}))
	assert.NotEqual(t, busy, h.launcher.specs[0].LocalPort, "falls back to a free port")
}

func TestRunInterruptTearsDown(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	h.spawner.OnSpawn = func(proc.Spec) (*proctest.Process, error) {
		h.ev.add("dump")
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel(&proc.Interrupt{Signal: syscall.SIGINT})
		}()
		return proctest.NewProcess(42), nil
	}

	code := h.o.Run(ctx, []string{"--ssh-tunnel", "bastion", "-h", "db", "app"})

	assert.Equal(t, 130, code)
	assert.Equal(t, []os.Signal{syscall.SIGINT}, h.spawner.Processes()[0].Signals())
	assert.Equal(t, []string{"tunnel-start", "dump", "tunnel-stop"}, h.ev.list())
}

func TestRunInterruptBeforeTunnelReady(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&proc.Interrupt{Signal: syscall.SIGTERM})

	code := h.o.Run(ctx, []string{"--ssh-tunnel", "bastion", "-h", "db"})

	assert.Equal(t, 143, code)
	assert.Empty(t, h.spawner.Specs())
}

func TestRunRejectsUnsupportedTargets(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"service", []string{"--ssh-tunnel", "bastion", "service=prod"}},
		{"service keyword in -d", []string{"--ssh-tunnel", "bastion", "-d", "service=prod dbname=app"}},
		{"unknown alias", []string{"--ssh-tunnel", "bastion", "--dsn", "nope"}},
		{"multiple hosts", []string{"--ssh-tunnel", "bastion", "-h", "a,b"}},
		{"unix socket", []string{"--ssh-tunnel", "bastion", "-h", "/var/run/postgresql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			code := h.o.Run(context.Background(), tt.argv)
			assert.Equal(t, ExitUsage, code)
			assert.Zero(t, h.launcher.launchCount(), "ssh must not be started")
			assert.Empty(t, h.spawner.Specs())
			assert.Contains(t, h.stderr.String(), "cannot tunnel")
		})
	}
}

func TestRunServiceFromEnvironmentRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.o.LibPQ = config.LibPQ{Service: "prod"}
	assert.Equal(t, ExitUsage, h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion"}))
	assert.Zero(t, h.launcher.launchCount())
}

func TestRunUsageErrors(t *testing.T) {
	tests := [][]string{
		{"--ssh-tunnel"},
		{"--ssh-tunnel", "--ssh-user", "ops", "-h", "db"},
		{"--ssh-host"},
		{"--debug=yes"},
		{"--ssh-port", "99999"},
		{"--ssh-tunnel", "http://bastion"},
		{"--ssh-tunnel", "bastion", "--ssh-backend", "telnet", "-h", "db"},
		{"--ssh-tunnel", "bastion", "-h", "db", "-p", "notaport"},
		{"--ssh-host", "-oProxyCommand=sh", "-h", "db"},
	}
	for _, argv := range tests {
		h := newHarness(t, 0)
		assert.Equal(t, ExitUsage, h.o.Run(context.Background(), argv), "%v", argv)
		assert.Empty(t, h.spawner.Specs(), "%v", argv)
	}
}

func TestRunAlias(t *testing.T) {
	t.Run("resolved alias with its own tunnel", func(t *testing.T) {
		h := newHarness(t, 0)
		h.o.Aliases = fakeAliases{"prod": {DSN: "host=db.prod port=5432 dbname=app", SSHTunnel: "jump@bastion"}}

		require.Equal(t, 0, h.o.Run(context.Background(), []string{"--dsn", "prod", "-Fc"}), h.stderr.String())

		spec := h.launcher.specs[0]
		assert.Equal(t, "db.prod", spec.RemoteHost)
		assert.Equal(t, "jump", spec.Bastion.User)
		want := []string{"-d", "host=127.0.0.1 port=" + strconv.Itoa(spec.LocalPort) + " dbname=app", "-Fc"}
		assert.Equal(t, want, h.dumpArgs(t))
	})

	t.Run("database argument is folded into the alias", func(t *testing.T) {
		h := newHarness(t, 0)
		h.o.Aliases = fakeAliases{"prod": {DSN: "host=db.prod port=5432 dbname=x", SSHTunnel: "jump@bastion"}}

		require.Equal(t, 0, h.o.Run(context.Background(), []string{"--dsn", "prod", "-Fc", "app"}), h.stderr.String())

		spec := h.launcher.specs[0]
		assert.Equal(t, "db.prod", spec.RemoteHost)
		want := []string{"-Fc", "host=127.0.0.1 port=" + strconv.Itoa(spec.LocalPort) + " dbname=app"}
		assert.Equal(t, want, h.dumpArgs(t))
	})

	t.Run("resolved alias without tunnel", func(t *testing.T) {
		h := newHarness(t, 0)
		h.o.Aliases = fakeAliases{"dev": {DSN: "postgresql://localhost/dev"}}
		require.Equal(t, 0, h.o.Run(context.Background(), []string{"--dsn=dev", "-s"}))
		assert.Equal(t, []string{"-d", "postgresql://localhost/dev", "-s"}, h.dumpArgs(t))
		assert.Zero(t, h.launcher.launchCount())
	})

	t.Run("unknown alias alone", func(t *testing.T) {
		h := newHarness(t, 0)
		assert.Equal(t, ExitUsage, h.o.Run(context.Background(), []string{"--dsn", "ghost"}))
		assert.Contains(t, h.stderr.String(), `unknown dsn alias "ghost"`)
	})

	t.Run("unknown alias only keys the tunnel lookup", func(t *testing.T) {
		h := newHarness(t, 0)
		p, err := config.NewPattern("prod-.*", "ssh://jump@bastion:22")
		require.NoError(t, err)
		h.o.Config.DSNSSHTunnels = config.PatternList{Patterns: []config.Pattern{p}}

		code := h.o.Run(context.Background(), []string{"--dsn", "prod-eu", "-h", "db.eu", "app"})
		require.Equal(t, 0, code, h.stderr.String())
		assert.Equal(t, "db.eu", h.launcher.specs[0].RemoteHost)
	})

	t.Run("interactive selection", func(t *testing.T) {
		h := newHarness(t, 0)
		h.o.Aliases = fakeAliases{"dev": {DSN: "dbname=dev"}}
		var offered []string
		h.o.SelectAlias = func(aliases []string) (string, error) {
			offered = aliases
			return "dev", nil
		}
		require.Equal(t, 0, h.o.Run(context.Background(), []string{"--dsn"}))
		assert.Equal(t, []string{"dev", "prod"}, offered)
		assert.Equal(t, []string{"-d", "dbname=dev"}, h.dumpArgs(t))
	})

	t.Run("interactive selection without a terminal", func(t *testing.T) {
		h := newHarness(t, 0)
		assert.Equal(t, ExitUsage, h.o.Run(context.Background(), []string{"--dsn"}))
	})
}

func TestRunTunnelFromConfigHostPattern(t *testing.T) {
	h := newHarness(t, 0)
	p, err := config.NewPattern(`.*\.prod\.example\.com`, "ops@bastion.example.com:2200")
	require.NoError(t, err)
	h.o.Config.SSHTunnels = config.PatternList{Patterns: []config.Pattern{p}}

	require.Equal(t, 0, h.o.Run(context.Background(), []string{"-h", "db1.prod.example.com", "app"}))
	require.Equal(t, 1, h.launcher.launchCount())
	assert.Equal(t, tunnel.Bastion{User: "ops", Host: "bastion.example.com", Port: 2200}, h.launcher.specs[0].Bastion)

	h = newHarness(t, 0)
	h.o.Config.SSHTunnels = config.PatternList{Patterns: []config.Pattern{p}}
	require.Equal(t, 0, h.o.Run(context.Background(), []string{"-h", "db1.dev.example.com", "app"}))
	assert.Zero(t, h.launcher.launchCount(), "pattern must match the whole host")
}

func TestRunPasswordSelectsNativeBackend(t *testing.T) {
	h := newHarness(t, 0)
	require.Equal(t, 0, h.o.Run(context.Background(), []string{"--ssh-tunnel", "jump:pw@bastion", "-h", "db"}))
	assert.Equal(t, []tunnel.Backend{tunnel.BackendNative}, h.launcher.backends)
	assert.NotContains(t, h.stderr.String(), "pw@")
}

func TestRunListDSN(t *testing.T) {
	h := newHarness(t, 0)
	h.o.Aliases = inventory.Resolver{Config: map[string]string{"b": "dbname=b", "a": "dbname=a"}}
	assert.Equal(t, 0, h.o.Run(context.Background(), []string{"--list-dsn"}))
	assert.Equal(t, "a\tdbname=a\nb\tdbname=b\n", h.stdout.String())
	assert.Empty(t, h.spawner.Specs())
}

func TestRunToolNotFound(t *testing.T) {
	h := newHarness(t, 0)
	h.o.Locate = func(tool, _ string) (string, error) {
		return "", &dump.SpawnError{Tool: tool, Path: tool, NotFound: true}
	}
	assert.Equal(t, 127, h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db"}))
	assert.Contains(t, h.stderr.String(), "pg_dump not found")
	assert.Equal(t, []string{"tunnel-start", "tunnel-stop"}, h.ev.list(), "tunnel is still torn down")
}

func TestRunDumpAllUsesItsOwnPath(t *testing.T) {
	h := newHarness(t, 0)
	h.o.Tool = args.PgDumpAll
	h.o.Config.PgDumpAllPath = "/opt/pg/bin/pg_dumpall"
	var explicit string
	h.o.Locate = func(_, e string) (string, error) { explicit = e; return e, nil }

	require.Equal(t, 0, h.o.Run(context.Background(), []string{"-g"}))
	assert.Equal(t, "/opt/pg/bin/pg_dumpall", explicit)
	assert.Equal(t, "/opt/pg/bin/pg_dumpall", h.spawner.Specs()[0].Path)
}

func TestRunDebugRaisesLogLevel(t *testing.T) {
	h := newHarness(t, 0)
	require.Equal(t, 0, h.o.Run(context.Background(), []string{"--debug", "app"}))
	assert.Equal(t, logrus.DebugLevel, h.o.Logger.GetLevel())
	assert.Equal(t, []string{"app"}, h.dumpArgs(t))
	assert.Contains(t, h.stderr.String(), "running dump tool")
}

func TestRunWritesMetrics(t *testing.T) {
	h := newHarness(t, 4)
	path := filepath.Join(t.TempDir(), "pgtun.prom")
	h.o.Config.MetricsTextfile = path

	require.Equal(t, 4, h.o.Run(context.Background(), []string{"--ssh-tunnel", "bastion", "-h", "db"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pgtun_last_exit_code{tool="pg_dump"} 4`)
	assert.Contains(t, string(data), `pgtun_tunnel_used{tool="pg_dump"} 1`)
	assert.Contains(t, string(data), `pgtun_last_run_success{tool="pg_dump"} 0`)
}

func TestRunSkipsMetricsWithoutDump(t *testing.T) {
	h := newHarness(t, 0)
	path := filepath.Join(t.TempDir(), "pgtun.prom")
	h.o.Config.MetricsTextfile = path
	h.o.Run(context.Background(), []string{"--list-dsn"})
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRedact(t *testing.T) {
	got := redact([]string{"-d", "host=db password=s3cret", "postgresql://u:p@db/app", "-Fc"})
	assert.Equal(t, []string{"-d", "<connection string>", "<connection string>", "-Fc"}, got)
}
