package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
)

func newCleanCmd() *cobra.Command {
	var source, logs bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the cloned source tree and/or log files",
		Long:  "Remove the cloned source tree and/or log files. Without flags both are removed. A link in the bin directory pointing into the removed tree goes with it; the manifest is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !source && !logs {
				source, logs = true, true
			}
			// No log file: it would be removed by the command that opened it.
			s, err := loadSettings(cmd, "", false)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := interruptContext(cmd)
			defer stop()

			removed, err := s.newResolver().Clean(ctx, bootstrap.CleanOptions{Source: source, Logs: logs})
			for _, path := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
			}
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to remove")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&source, "source", false, "Remove the cloned source tree")
	cmd.Flags().BoolVar(&logs, "logs", false, "Remove log files")
	return cmd
}
