package cmd

import (
	"context"

	"github.com/arung-agamani/pgtun/internal/args"
	"github.com/arung-agamani/pgtun/internal/completion"
	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/arung-agamani/pgtun/internal/orchestrator"
	"github.com/spf13/cobra"
)

var dumpCmd = newToolCmd(args.PgDump, "dump", "Run pg_dump, through an SSH tunnel when one applies")

var dumpAllCmd = newToolCmd(args.PgDumpAll, "dumpall", "Run pg_dumpall, through an SSH tunnel when one applies")

// newToolCmd builds a subcommand that hands its whole command line to the
// orchestrator. Flag parsing is off so every dump tool option, --help
// included, reaches the tool untouched.
func newToolCmd(tool args.Tool, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [pgtun flags] [" + string(tool) + " flags]",
		Short: short,
		Long: short + `.

pgtun flags: --ssh-tunnel [URL], --ssh-host, --ssh-user, --ssh-port, --ssh-identity,
--ssh-backend exec|native, --dsn[=ALIAS], --list-dsn, --debug.
Everything else is passed to ` + string(tool) + `; run "pgtun ` + use + ` --help" for its options.`,
		DisableFlagParsing: true,
		SilenceErrors:      true,
		ValidArgsFunction:  completeTool(tool),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if code := runTool(cmd, tool, argv); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// newOrchestrator is replaced in tests to swap in fakes.
var newOrchestrator = func(o *orchestrator.Orchestrator) *orchestrator.Orchestrator { return o }

func runTool(cmd *cobra.Command, tool args.Tool, argv []string) int {
	// Errors are reported by the orchestrator's own split below.
	w, _, _ := args.SplitWrapper(tool, argv)
	rt := loadRuntime(cmd.ErrOrStderr(), w.Debug)
	defer rt.Close()

	ctx, stop := orchestrator.NotifyContext(commandContext(cmd), orchestrator.Signals...)
	defer stop()

	o := &orchestrator.Orchestrator{
		Tool:           tool,
		Config:         rt.cfg,
		LibPQ:          rt.libpq,
		Aliases:        rt.resolver(),
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
		Logger:         rt.log,
		Log:            rt.log.WithFields(logger.CoreFields(rt.runID, string(tool), "orchestrator")),
		PromptPassword: promptPassword,
	}
	if interactive() {
		o.SelectAlias = selectAlias
	}
	return newOrchestrator(o).Run(ctx, argv)
}

// completeTool serves dynamic completion. With flag parsing disabled cobra
// hands over every preceding word, flags included.
func completeTool(tool args.Tool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, words []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		rt := loadRuntime(cmd.ErrOrStderr(), false)
		defer rt.Close()

		tokens := append(append([]string(nil), words...), toComplete)
		_, rest, err := args.SplitWrapper(tool, words)
		if err != nil {
			rest = nil
		}
		target, _ := args.Parse(tool, rest, "")
		src := &completion.Live{
			ConnString: target.ConnString(),
			AliasNames: rt.resolver().Aliases(),
		}
		out := completion.Complete(commandContext(cmd), tool, tokens, len(words), src)
		if len(out) == 0 {
			// -f and friends still want file names.
			return nil, cobra.ShellCompDirectiveDefault
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

// commandContext is nil-safe: cobra leaves Context unset when a command is
// run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(dumpAllCmd)
}
