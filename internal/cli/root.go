// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Dialect string
	NoColor bool

	// config and logger are set before any subcommand runs.
	config *Config
	logger *slog.Logger
}

// NewRootCommand creates the root command of the sqlexpr CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlexpr",
		Short: "Compile typed query expressions to SQL",
		Long: `sqlexpr compiles the built-in example queries to SQL for a dialect and
runs them on SQLite, dqlite, PostgreSQL or MySQL.

Settings are read from flags, SQLEXPR_* environment variables, a .env file
and .sqlexpr.yaml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log executed statements to stderr")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "", "SQL dialect (at|sqlite|postgres|mysql)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewScenariosCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func (opts *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	opts.config = cfg
	if cfg.NoColor {
		color.NoColor = true
		pterm.DisableColor()
	}

	var w io.Writer = io.Discard
	if cfg.Verbose {
		w = cmd.ErrOrStderr()
	}
	opts.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return nil
}
