// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlexpr"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver string
	DSN    string
	Seed   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run an example query on a database",
		Long: `Compile a scenario for the dialect of the chosen driver and run it.

With --seed the example tables are created and filled first, which an
empty database such as the default in-memory SQLite one needs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite3", "database driver (sqlite3|postgres|mysql, dqlite when built with the dqlite tag)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", ":memory:", "data source name")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "create and fill the example tables first")

	return cmd
}

func runScenario(opts *RunOptions, name string, cmd *cobra.Command) error {
	cfg := opts.config
	s, err := lookupScenario(name)
	if err != nil {
		return err
	}
	drv, err := lookupDriver(cfg.Driver)
	if err != nil {
		return err
	}
	d, err := cfg.dialect(drv.dialect)
	if err != nil {
		return err
	}
	cq, err := s.Build(d)
	if err != nil {
		return fmt.Errorf("cannot compile %s: %w", s.Name, err)
	}

	ctx := cmd.Context()
	sqldb, release, err := drv.open(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("cannot open %s database: %w", cfg.Driver, err)
	}
	defer release()

	if cfg.Seed {
		for _, stmt := range seedStatements(d) {
			opts.logger.Debug("seeding", "sql", stmt)
			if _, err := sqldb.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("cannot seed database: %w", err)
			}
		}
	}

	db := sqlexpr.NewDB(sqldb, sqlexpr.WithLogger(opts.logger))
	rows, err := db.Rows(ctx, cq)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, highlight(cq.SQL()))
	n, err := printRows(w, rows)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, dimColor.Sprintf("%d row(s)", n))
	return nil
}
