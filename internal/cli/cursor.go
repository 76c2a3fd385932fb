package cli

import (
	"time"

	"github.com/spf13/cobra"
)

const defaultAnalysisWait = 2 * time.Minute

func newCursorCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "cursor FILE LINE COL",
		Short: "Show ownership and lifetime decorations at a position",
		Long:  "Resolve ferrous-owl, open FILE in an LSP session and print the decorations at LINE:COL (1-based).",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseCursorArgs(args)
			if err != nil {
				return err
			}
			s, err := loadSettings(cmd, "cursor", true)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := interruptContext(cmd)
			defer stop()

			ss, err := openSession(ctx, cmd, s, target, wait)
			if err != nil {
				return err
			}
			defer ss.Close()

			status := newStatus(cmd, "Querying decorations")
			resp, err := ss.query(ctx, status)
			status.Stop()
			if err != nil {
				return err
			}
			return ss.render(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultAnalysisWait, "How long to re-query while the server is still analyzing")
	return cmd
}
