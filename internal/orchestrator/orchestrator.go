// Package orchestrator runs one pgtun invocation: it splits the wrapper
// flags off, brings a tunnel up when one is wanted, runs the dump tool
// against it and tears everything down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arung-agamani/pgtun/internal/args"
	"github.com/arung-agamani/pgtun/internal/config"
	"github.com/arung-agamani/pgtun/internal/dump"
	"github.com/arung-agamani/pgtun/internal/inventory"
	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/arung-agamani/pgtun/internal/metrics"
	"github.com/arung-agamani/pgtun/internal/port"
	"github.com/arung-agamani/pgtun/internal/proc"
	"github.com/arung-agamani/pgtun/internal/tunnel"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const (
	defaultRemoteHost = "localhost"
	defaultRemotePort = 5432
)

// AliasResolver looks up --dsn aliases.
type AliasResolver interface {
	Resolve(name string) (inventory.Entry, bool)
	Aliases() []string
}

// Dumper runs the dump tool; *dump.Invoker is the real one.
type Dumper interface {
	Invoke(ctx context.Context, tool, path string, args []string) (dump.Result, error)
}

// Orchestrator holds everything one run needs. Zero-valued optional fields
// fall back to the real implementations.
type Orchestrator struct {
	Tool    args.Tool
	Config  *config.Config
	LibPQ   config.LibPQ
	Aliases AliasResolver
	Dumper  Dumper

	// Launcher returns the forwarder implementation for a backend.
	Launcher func(tunnel.Backend) tunnel.Launcher
	// Locate finds the dump tool binary.
	Locate func(tool, explicit string) (string, error)
	// SelectAlias asks the user to pick an alias for a bare --dsn. Nil
	// means no terminal is available.
	SelectAlias func(aliases []string) (string, error)
	// PromptPassword reads ssh passwords and key passphrases for the
	// native backend.
	PromptPassword func(prompt string) (string, error)

	Stdout io.Writer
	Stderr io.Writer
	// Logger is raised to debug level by --debug.
	Logger *logrus.Logger
	Log    logrus.FieldLogger
}

// report collects what the metrics textfile needs.
type report struct {
	dumped      bool
	tunnelUsed  bool
	tunnelReady time.Duration
}

// Run executes argv (everything after the subcommand name) and returns the
// process exit code.
func (o *Orchestrator) Run(ctx context.Context, argv []string) int {
	o.defaults()
	start := time.Now()
	var rep report
	code := o.run(ctx, argv, &rep)
	if rep.dumped || rep.tunnelUsed {
		o.writeMetrics(metrics.Run{
			Tool:        string(o.Tool),
			Success:     code == 0,
			ExitCode:    code,
			Duration:    time.Since(start),
			TunnelUsed:  rep.tunnelUsed,
			TunnelReady: rep.tunnelReady,
			Finished:    time.Now(),
		})
	}
	o.Log.WithFields(logrus.Fields{"code": code, "duration": time.Since(start)}).Debug("run finished")
	return code
}

func (o *Orchestrator) defaults() {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Locate == nil {
		o.Locate = dump.Locate
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Log == nil {
		if o.Logger != nil {
			o.Log = o.Logger
		} else {
			o.Log = logger.Discard()
		}
	}
	if o.Dumper == nil {
		inv := dump.NewInvoker(o.Log)
		inv.Grace = o.Config.DumpStopGrace
		o.Dumper = inv
	}
	if o.Aliases == nil {
		o.Aliases = inventory.Resolver{Config: o.Config.AliasDSN}
	}
	if o.Launcher == nil {
		o.Launcher = o.defaultLauncher
	}
}

func (o *Orchestrator) run(ctx context.Context, argv []string, rep *report) int {
	w, rest, err := args.SplitWrapper(o.Tool, argv)
	if err != nil {
		return o.fail(err, ExitUsage)
	}
	if w.Debug && o.Logger != nil {
		o.Logger.SetLevel(logrus.DebugLevel)
	}
	log := o.Log

	if sc, tok := args.DetectShortCircuit(o.Tool, rest); sc != args.NoShortCircuit {
		if sc == args.Help {
			o.printWrapperHelp()
		}
		log.WithField("token", tok).Debug("short-circuit, no tunnel")
		return o.invoke(ctx, []string{tok}, rep)
	}

	if w.ListDSN {
		o.listAliases()
		return 0
	}

	alias := w.DSN
	if w.DSNInteractive {
		if alias, err = o.selectAlias(); err != nil {
			return o.fail(err, ExitUsage)
		}
	}

	var entry inventory.Entry
	unresolved := ""
	if alias != "" {
		var ok bool
		if entry, ok = o.Aliases.Resolve(alias); ok {
			if rest, err = withAlias(o.Tool, rest, entry.DSN); err != nil {
				return o.fail(err, ExitUsage)
			}
			log.WithField("alias", alias).Debug("dsn alias resolved")
		} else {
			unresolved = alias
		}
	}

	target, err := args.Parse(o.Tool, rest, unresolved)
	if err != nil {
		return o.fail(err, ExitUsage)
	}

	bastion, wanted, err := o.bastion(w, alias, entry, target)
	if err != nil {
		return o.fail(err, ExitUsage)
	}
	if !wanted {
		if target.Mode() == args.ModeAlias {
			return o.fail(&UnknownAliasError{Alias: unresolved}, ExitUsage)
		}
		log.Debug("no tunnel configured, passing arguments through")
		return o.invoke(ctx, rest, rep)
	}

	effective := o.withLibPQDefaults(target)
	if err := args.CheckTunnelable(effective); err != nil {
		return o.fail(err, ExitUsage)
	}
	remotePort, err := effective.PortNumber(defaultRemotePort)
	if err != nil {
		return o.fail(err, ExitUsage)
	}
	remoteHost := effective.Host
	if remoteHost == "" {
		remoteHost = defaultRemoteHost
	}

	backend, err := o.backend(w, bastion)
	if err != nil {
		return o.fail(err, ExitUsage)
	}

	spec := tunnel.Spec{
		Bastion:      bastion,
		RemoteHost:   remoteHost,
		RemotePort:   remotePort,
		IdentityFile: w.SSHIdentity,
	}
	if pref := o.Config.Tunnel.LocalPort; pref > 0 {
		if spec.LocalPort, err = port.AllocatePreferred(pref); err != nil {
			return o.fail(err, ExitTunnel)
		}
	}

	rep.tunnelUsed = true
	sup := tunnel.NewSupervisor(o.Launcher(backend), o.tunnelOptions(), log)
	startedAt := time.Now()
	h, err := sup.Start(ctx, spec)
	if err != nil {
		var intr *proc.Interrupt
		if errors.As(context.Cause(ctx), &intr) {
			log.WithField("signal", intr.Signal.String()).Info("interrupted while starting tunnel")
			return intr.ExitCode()
		}
		return o.fail(err, ExitTunnel)
	}
	rep.tunnelReady = time.Since(startedAt)
	defer func() {
		if err := h.Stop(); err != nil {
			log.WithError(err).Warn("ssh tunnel teardown")
		}
	}()
	log.WithFields(logrus.Fields{
		"bastion":    h.Spec().Bastion.String(),
		"remote":     h.Spec().RemoteAddress(),
		"local_port": h.LocalPort(),
		"backend":    string(backend),
	}).Info("ssh tunnel established")

	rewritten, err := args.Rewrite(o.Tool, rest, unresolved, h.LocalPort())
	if err != nil {
		return o.fail(err, ExitUsage)
	}
	return o.invoke(ctx, rewritten, rep)
}

// withAlias puts a resolved alias in front of the user's arguments as -d, so
// later -h/-p still win. pg_dump drops -d when it is also given a database
// argument, so a plain database name is folded into the alias instead.
func withAlias(tool args.Tool, tokens []string, dsn string) ([]string, error) {
	if i, db, ok := args.Positional(tool, tokens); ok && !args.IsConnString(db) {
		folded, err := args.WithDatabase(dsn, db)
		if err != nil {
			return nil, &args.UsageError{Msg: fmt.Sprintf("dsn alias: %v", err)}
		}
		out := append([]string(nil), tokens...)
		out[i] = folded
		return out, nil
	}
	return append([]string{"-d", dsn}, tokens...), nil
}

// bastion decides whether a tunnel is wanted and through which host.
// Command-line flags win over the alias entry, which wins over the config
// file's pattern tables. A bare --ssh-tunnel with no bastion anywhere is a
// usage error.
func (o *Orchestrator) bastion(w args.Wrapper, alias string, entry inventory.Entry, target args.Target) (tunnel.Bastion, bool, error) {
	var (
		b   tunnel.Bastion
		err error
	)
	switch {
	case w.SSHTunnel != "":
		b, err = tunnel.ParseURL(w.SSHTunnel)
	case w.SSHHost != "":
		b = tunnel.Bastion{Host: w.SSHHost, Port: tunnel.DefaultSSHPort}
	case entry.SSHTunnel != "":
		b, err = tunnel.ParseURL(entry.SSHTunnel)
	default:
		host := target.Host
		if host == "" {
			host = o.LibPQ.Host
		}
		url, ok := o.Config.TunnelURL(alias, host)
		if !ok {
			if w.TunnelRequested() {
				return tunnel.Bastion{}, false, &args.UsageError{
					Msg: "--ssh-tunnel: no bastion given; pass a URL, --ssh-host, or configure ssh_tunnels"}
			}
			return tunnel.Bastion{}, false, nil
		}
		o.Log.WithFields(logrus.Fields{"alias": alias, "host": host}).Debug("ssh tunnel matched from config")
		b, err = tunnel.ParseURL(url)
	}
	if err != nil {
		return tunnel.Bastion{}, false, &args.UsageError{Msg: err.Error()}
	}
	if w.SSHUser != "" {
		b.User = w.SSHUser
	}
	if w.SSHPort != 0 {
		b.Port = w.SSHPort
	}
	if err := b.Validate(); err != nil {
		return tunnel.Bastion{}, false, &args.UsageError{Msg: err.Error()}
	}
	return b, true, nil
}

// withLibPQDefaults fills what the arguments leave open from PGHOST,
// PGPORT and PGSERVICE, the way the dump tool itself would.
func (o *Orchestrator) withLibPQDefaults(t args.Target) args.Target {
	if t.Host == "" && t.Service == "" && t.DSNAlias == "" {
		t.Host = o.LibPQ.Host
		if t.Host == "" {
			t.Service = o.LibPQ.Service
		}
	}
	if t.Port == "" {
		t.Port = o.LibPQ.Port
	}
	return t
}

func (o *Orchestrator) backend(w args.Wrapper, b tunnel.Bastion) (tunnel.Backend, error) {
	name := o.Config.Tunnel.Backend
	if w.SSHBackend != "" {
		name = w.SSHBackend
	}
	backend, err := tunnel.ParseBackend(name)
	if err != nil {
		return "", &args.UsageError{Msg: err.Error()}
	}
	// The ssh client cannot take a password non-interactively.
	if b.Password != "" && backend == tunnel.BackendExec {
		o.Log.Debug("tunnel url carries a password, using the native backend")
		backend = tunnel.BackendNative
	}
	return backend, nil
}

func (o *Orchestrator) tunnelOptions() tunnel.Options {
	t := o.Config.Tunnel
	return tunnel.Options{
		ReadyAttempts:  t.ReadyAttempts,
		InitialBackoff: t.ReadyInitialBackoff,
		MaxBackoff:     t.ReadyMaxBackoff,
		ReadyTimeout:   t.ReadyTimeout,
		StopGrace:      t.StopGrace,
	}
}

func (o *Orchestrator) defaultLauncher(b tunnel.Backend) tunnel.Launcher {
	c := o.Config
	if b == tunnel.BackendNative {
		return &tunnel.NativeLauncher{
			AllowAgent:      c.AllowAgent,
			InsecureHostKey: c.InsecureHostKey,
			KnownHostsFile:  c.KnownHostsFile,
			PromptPassword:  o.PromptPassword,
			Log:             o.Log,
		}
	}
	var stderr io.Writer
	if o.Logger != nil && o.Logger.IsLevelEnabled(logrus.DebugLevel) {
		stderr = o.Stderr
	}
	return &tunnel.ExecLauncher{
		Binary:    c.SSHBinary,
		BatchMode: c.BatchMode,
		Options:   c.SSHOptions,
		Stderr:    stderr,
	}
}

// invoke locates and runs the dump tool with tokens.
func (o *Orchestrator) invoke(ctx context.Context, tokens []string, rep *report) int {
	tool := string(o.Tool)
	path, err := o.Locate(tool, o.explicitPath())
	if err != nil {
		return o.spawnFailure(err)
	}
	rep.dumped = true
	o.Log.WithFields(logrus.Fields{"path": path, "args": redact(tokens)}).Debug("running dump tool")
	res, err := o.Dumper.Invoke(ctx, tool, path, tokens)
	if err != nil {
		return o.spawnFailure(err)
	}
	return res.Code
}

func (o *Orchestrator) spawnFailure(err error) int {
	var se *dump.SpawnError
	if errors.As(err, &se) {
		return o.fail(err, se.ExitCode())
	}
	return o.fail(err, 1)
}

func (o *Orchestrator) explicitPath() string {
	if o.Tool == args.PgDumpAll {
		return o.Config.PgDumpAllPath
	}
	return o.Config.PgDumpPath
}

func (o *Orchestrator) selectAlias() (string, error) {
	aliases := o.Aliases.Aliases()
	if o.SelectAlias == nil {
		return "", &args.UsageError{Msg: "--dsn requires a value when not run from a terminal"}
	}
	if len(aliases) == 0 {
		return "", &args.UsageError{Msg: "--dsn: no aliases are configured"}
	}
	name, err := o.SelectAlias(aliases)
	if err != nil {
		return "", &args.UsageError{Msg: fmt.Sprintf("--dsn: %v", err)}
	}
	return name, nil
}

func (o *Orchestrator) listAliases() {
	for _, name := range o.Aliases.Aliases() {
		e, _ := o.Aliases.Resolve(name)
		fmt.Fprintf(o.Stdout, "%s\t%s\n", name, e.DSN)
	}
}

func (o *Orchestrator) printWrapperHelp() {
	fmt.Fprintf(o.Stdout, `pgtun options (handled before %s sees the command line):
  --ssh-tunnel [URL]     tunnel through [ssh://][user[:password]@]host[:port]; without
                         a URL the bastion comes from --ssh-host or the config file
  --ssh-host HOST        tunnel through HOST (with --ssh-user, --ssh-port, --ssh-identity)
  --ssh-backend NAME     exec (system ssh, default) or native
  --dsn[=ALIAS]          connect to a configured alias; prompts when ALIAS is omitted
  --list-dsn             list configured aliases and exit
  --debug                log tunnel and dump activity to stderr

`, o.Tool)
}

// fail prints err in red when stderr is a terminal and returns code.
func (o *Orchestrator) fail(err error, code int) int {
	c := color.New(color.FgRed)
	if f, ok := o.Stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	c.Fprintf(o.Stderr, "pgtun: %v\n", err)
	o.Log.WithFields(logrus.Fields{"code": code, "error": err}).Debug("run failed")
	return code
}

func (o *Orchestrator) writeMetrics(r metrics.Run) {
	path := o.Config.MetricsTextfile
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path, r); err != nil {
		o.Log.WithError(err).Warn("metrics not written")
	}
}

// redact hides connection-string passwords in logged arguments.
func redact(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t
		if strings.Contains(t, "password=") || (strings.Contains(t, "://") && strings.Contains(t, "@")) {
			out[i] = "<connection string>"
		}
	}
	return out
}
