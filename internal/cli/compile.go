// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [scenario...]",
		Short: "Print the SQL and parameters of example queries",
		Long: `Compile the named scenarios, or all of them, and print the SQL text,
the parameters bound to each placeholder and the selected columns.

The default dialect writes @0, @1, ... placeholders.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runCompile(opts *RootOptions, names []string, cmd *cobra.Command) error {
	d, err := opts.config.dialect("at")
	if err != nil {
		return err
	}
	selected := Scenarios()
	if len(names) > 0 {
		selected = selected[:0:0]
		for _, name := range names {
			s, err := lookupScenario(name)
			if err != nil {
				return err
			}
			selected = append(selected, s)
		}
	}

	w := cmd.OutOrStdout()
	for i, s := range selected {
		cq, err := s.Build(d)
		if err != nil {
			return fmt.Errorf("cannot compile %s: %w", s.Name, err)
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		printCompiled(w, s.Name, cq)
	}
	return nil
}
