package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/arung-agamani/pgtun/internal/config"
	"github.com/spf13/cobra"
)

// executeCommandC executes a cobra command and captures stdout and stderr
// separately.
func executeCommandC(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

// isolate points config, inventory and prompts at a scratch directory and
// returns it. configYAML, when non-empty, is written as the config file.
func isolate(t *testing.T, configYAML string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if configYAML != "" {
		if err := os.WriteFile(cfgPath, []byte(configYAML), 0600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	t.Setenv("PGTUN_CONFIG", cfgPath)
	for _, k := range []string{"PGTUN_LOG_LEVEL", "PGTUN_LOG_FORMAT", "PGTUN_PG_DUMP", "PGTUN_PG_DUMPALL",
		"PGTUN_SSH_BINARY", "PGTUN_SSH_BACKEND", "PGTUN_METRICS_TEXTFILE", "PGHOST", "PGPORT", "PGSERVICE"} {
		t.Setenv(k, "")
	}

	oldDataDir, oldInteractive := dataDir, interactive
	dataDir = func(*config.Config) string { return filepath.Join(dir, "data") }
	interactive = func() bool { return false }
	dsnSetTunnel, dsnSetTags = "", ""
	t.Cleanup(func() {
		dataDir, interactive = oldDataDir, oldInteractive
		dsnSetTunnel, dsnSetTags = "", ""
		rootCmd.SetArgs(nil)
	})
	return dir
}
