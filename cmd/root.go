package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pgtun",
	Short: "Run pg_dump and pg_dumpall through an SSH tunnel",
	Long: `pgtun wraps pg_dump and pg_dumpall. When a bastion is given on the command line,
in the alias inventory or in the config file, it opens an SSH local forward,
points the dump tool at it and tears the tunnel down when the dump ends.

Installed or symlinked as pgtun_dump or pgtun_dumpall it behaves as the
matching subcommand.`,
	SilenceUsage: true,
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// programCommands maps invocation names to the subcommand they stand for.
var programCommands = map[string]string{
	"pgtun_dump":    "dump",
	"pgtun_dumpall": "dumpall",
}

// programArgs returns the arguments for rootCmd given the full os.Args.
func programArgs(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	name := strings.TrimSuffix(filepath.Base(argv[0]), ".exe")
	if sub, ok := programCommands[name]; ok {
		return append([]string{sub}, argv[1:]...)
	}
	return argv[1:]
}

// Execute adds all child commands to the root command and runs it with the
// process arguments, exiting with the dump tool's status.
func Execute() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	rootCmd.SetArgs(programArgs(argv))
	err := rootCmd.Execute()
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		return 1
	}
}
