package main

import (
	"fmt"

	"github.com/bissquit/clerk-queue/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "clerkqueue %s (commit %s, built %s)\n",
				version.Version, version.GitCommit, version.BuildDate)
			return nil
		},
	}
}
