// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewScenariosCommand creates the command listing the built-in scenarios.
func NewScenariosCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "scenarios",
		Short:         "List the built-in example queries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range Scenarios() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", headingColor.Sprint(s.Name), s.Description)
			}
			return nil
		},
	}
}
