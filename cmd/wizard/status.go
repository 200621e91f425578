package main

import (
	"fmt"
	"strings"

	"ethics-review/internal/submission"

	"github.com/spf13/cobra"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <application-id>",
		Short: "Show an application's status and the sections still missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			agg, err := newClient(cfg).GetApplication(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", agg.ID, agg.Title)
			fmt.Fprintf(out, "protocol: %s  status: %s\n", agg.ProtocolNumber, agg.Status)
			fmt.Fprintf(out, "documents: %d\n", len(agg.Files))

			missing := submission.MissingSections(agg)
			if len(missing) == 0 {
				fmt.Fprintln(out, "all sections complete")
				return nil
			}
			fmt.Fprintf(out, "missing: %s\n", strings.Join(missing, ", "))
			return nil
		},
	}
}
