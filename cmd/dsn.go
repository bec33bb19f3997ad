package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/arung-agamani/pgtun/internal/args"
	"github.com/arung-agamani/pgtun/internal/inventory"
	"github.com/arung-agamani/pgtun/internal/tunnel"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var dsnCmd = &cobra.Command{
	Use:   "dsn",
	Short: "Manage DSN aliases used with --dsn",
	Long: `Manage the local DSN alias inventory.

Aliases from the alias_dsn section of the config file are listed too; an
inventory entry with the same name takes precedence.`,
}

var dsnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List DSN aliases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt := loadRuntime(cmd.ErrOrStderr(), false)
		defer rt.Close()

		r := rt.resolver()
		names := r.Aliases()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No DSN aliases found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Available DSN aliases:")
		for _, name := range names {
			e, _ := r.Resolve(name)
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", describe(name, e, rt.store))
		}
		return nil
	},
}

var dsnGetCmd = &cobra.Command{
	Use:               "get [alias]",
	Short:             "Show one DSN alias",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completeAliases,
	RunE: func(cmd *cobra.Command, argv []string) error {
		rt := loadRuntime(cmd.ErrOrStderr(), false)
		defer rt.Close()

		r := rt.resolver()
		var name string
		if len(argv) > 0 {
			name = argv[0]
		} else {
			names := r.Aliases()
			if len(names) == 0 {
				return errors.New("no DSN aliases found")
			}
			if !interactive() {
				return errors.New("alias name required")
			}
			var err error
			if name, err = selectAlias(names); err != nil {
				return err
			}
		}
		e, ok := r.Resolve(name)
		if !ok {
			return fmt.Errorf("%w: %s", inventory.ErrNotFound, name)
		}
		fmt.Fprintln(cmd.OutOrStdout(), describe(name, e, rt.store))
		return nil
	},
}

var (
	dsnSetTunnel string
	dsnSetTags   string
)

var dsnSetCmd = &cobra.Command{
	Use:   "set [alias] [dsn]",
	Short: "Add or replace a DSN alias",
	Long: `Add or replace a DSN alias in the local inventory. The DSN may be a
postgresql:// URI or a libpq keyword/value string. Missing arguments are
prompted for when running in a terminal.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, argv []string) error {
		rt := loadRuntime(cmd.ErrOrStderr(), false)
		defer rt.Close()
		if rt.store == nil {
			return errors.New("dsn inventory unavailable")
		}

		name, err := argOrPrompt(argv, 0, "Alias name", inventory.ValidateName)
		if err != nil {
			return err
		}
		dsn, err := argOrPrompt(argv, 1, "DSN (URI or keyword/value string)", validateDSN)
		if err != nil {
			return err
		}
		if dsnSetTunnel != "" {
			if _, err := tunnel.ParseURL(dsnSetTunnel); err != nil {
				return err
			}
		}

		e := inventory.Entry{DSN: dsn, SSHTunnel: dsnSetTunnel, Tags: splitTags(dsnSetTags)}
		if err := rt.store.Set(name, e); err != nil {
			return fmt.Errorf("failed to set alias: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DSN alias '%s' set\n", name)
		return nil
	},
}

var dsnDeleteCmd = &cobra.Command{
	Use:               "delete <alias>",
	Short:             "Remove a DSN alias from the local inventory",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeAliases,
	RunE: func(cmd *cobra.Command, argv []string) error {
		rt := loadRuntime(cmd.ErrOrStderr(), false)
		defer rt.Close()
		if rt.store == nil {
			return errors.New("dsn inventory unavailable")
		}
		if err := rt.store.Delete(argv[0]); err != nil {
			if _, inConfig := rt.cfg.AliasDSN[argv[0]]; inConfig {
				return fmt.Errorf("alias '%s' is defined in the config file and cannot be deleted here", argv[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DSN alias '%s' deleted\n", argv[0])
		return nil
	},
}

// describe renders an alias for list and get. Passwords in the DSN are not
// shown.
func describe(name string, e inventory.Entry, store *inventory.Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", name, maskPassword(e.DSN))
	if e.SSHTunnel != "" {
		if bastion, err := tunnel.ParseURL(e.SSHTunnel); err == nil {
			fmt.Fprintf(&b, ", ssh_tunnel=%s", bastion)
		}
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, ", tags=[%s]", strings.Join(e.Tags, ", "))
	}
	if store == nil || !inStore(store, name) {
		b.WriteString(" (config)")
	}
	return b.String()
}

func inStore(s *inventory.Store, name string) bool {
	_, err := s.Get(name)
	return err == nil
}

func maskPassword(dsn string) string {
	if strings.Contains(dsn, "://") {
		scheme, rest, _ := strings.Cut(dsn, "://")
		at := strings.LastIndex(rest, "@")
		slash := strings.Index(rest, "/")
		if at >= 0 && (slash < 0 || at < slash) {
			if user, _, hasPass := strings.Cut(rest[:at], ":"); hasPass {
				return scheme + "://" + user + ":***" + rest[at:]
			}
		}
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}

func validateDSN(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("dsn must not be empty")
	}
	if !args.IsConnString(s) {
		return fmt.Errorf("%q is neither a URI nor a keyword/value connection string", s)
	}
	_, err := args.ParseConnString(s)
	return err
}

func argOrPrompt(argv []string, i int, label string, validate func(string) error) (string, error) {
	if len(argv) > i {
		return argv[i], validate(argv[i])
	}
	if !interactive() {
		return "", fmt.Errorf("%s required", strings.ToLower(label))
	}
	prompt := promptui.Prompt{Label: label, Validate: validate, Stdout: stderrCloser{os.Stderr}}
	v, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %v", err)
	}
	return v, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func completeAliases(cmd *cobra.Command, argv []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(argv) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	rt := loadRuntime(cmd.ErrOrStderr(), false)
	defer rt.Close()
	return rt.resolver().Aliases(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	dsnSetCmd.Flags().StringVar(&dsnSetTunnel, "ssh-tunnel", "", "Bastion used whenever this alias is dumped ([ssh://][user[:password]@]host[:port])")
	dsnSetCmd.Flags().StringVar(&dsnSetTags, "tags", "", "Comma-separated tags")
	dsnCmd.AddCommand(dsnListCmd)
	dsnCmd.AddCommand(dsnGetCmd)
	dsnCmd.AddCommand(dsnSetCmd)
	dsnCmd.AddCommand(dsnDeleteCmd)
	rootCmd.AddCommand(dsnCmd)
}
