package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arung-agamani/pgtun/internal/config"
	"github.com/arung-agamani/pgtun/internal/inventory"
	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// runtime is what every command shares: config, logger and the alias
// inventory.
type runtime struct {
	cfg    *config.Config
	libpq  config.LibPQ
	log    *logrus.Logger
	runID  string
	store  *inventory.Store
	closer io.Closer
}

func (rt *runtime) resolver() inventory.Resolver {
	return inventory.Resolver{Config: rt.cfg.AliasDSN, Store: rt.store}
}

func (rt *runtime) Close() error { return rt.closer.Close() }

// loadRuntime never fails: a broken config file or inventory is reported
// and the command carries on with what it has. debug forces debug logging
// from the first line on.
func loadRuntime(stderr io.Writer, debug bool) *runtime {
	env, envErr := config.LoadEnv()
	path := config.Path(env)
	cfg, warnings, loadErr := config.Load(path)
	warnings = append(warnings, cfg.ApplyEnv(env)...)

	log, closer := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Debug:  debug,
		Output: stderr,
	})
	rt := &runtime{cfg: cfg, libpq: config.LoadLibPQ(), log: log, runID: logger.NewRunID(), closer: closer}

	entry := log.WithFields(logrus.Fields{"run_id": rt.runID, "package": "config", "path": path})
	if loadErr != nil {
		entry.WithError(loadErr).Warn("config file ignored, using defaults")
	}
	if envErr != nil {
		entry.WithError(envErr).Warn("environment overrides ignored")
	}
	for _, w := range warnings {
		entry.Warn(w)
	}

	store, err := inventory.Open(dataDir(cfg))
	if err != nil {
		log.WithFields(logrus.Fields{"run_id": rt.runID, "package": "inventory", "error": err}).Warn("dsn inventory unavailable")
	} else {
		rt.store = store
	}
	return rt
}

// dataDir is where the alias inventory lives; replaced in tests.
var dataDir = func(cfg *config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "." // fallback
	}
	return filepath.Join(home, ".pgtun")
}

// interactive reports whether prompts can be shown; replaced in tests.
var interactive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// stderrCloser lets promptui draw on stderr, keeping stdout for dump data.
type stderrCloser struct{ io.Writer }

func (stderrCloser) Close() error { return nil }

func selectAlias(aliases []string) (string, error) {
	prompt := promptui.Select{
		Label: "Select DSN alias",
		Items: aliases,
		Searcher: func(input string, index int) bool {
			return strings.Contains(strings.ToLower(aliases[index]), strings.ToLower(input))
		},
		Stdout: stderrCloser{os.Stderr},
	}
	_, name, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %v", err)
	}
	return name, nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to read a password from")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
