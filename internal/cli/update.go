package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/tui"
)

const updateTimeout = 30 * time.Minute

var errUpdateDeclined = errors.New("update cancelled")

// confirmUpdate asks before replacing a binary other editor sessions may be
// running. Tests swap it out.
var confirmUpdate = func(cmd *cobra.Command, cacheDir string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title("Rebuild ferrous-owl v" + clientVersion + "?").
		Description("Pulls " + cacheDir + " and runs a release build. Running servers keep the old binary until restarted.").
		Affirmative("Update").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func newUpdateCmd() *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh the source checkout and rebuild ferrous-owl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd, "update", true)
			if err != nil {
				return err
			}
			defer s.Close()

			if !assumeYes {
				if outputJSON || !tui.IsTerminal(cmd.InOrStdin()) {
					return errors.New("update needs confirmation; pass --yes in non-interactive sessions")
				}
				ok, err := confirmUpdate(cmd, s.layout.CacheDir)
				if err != nil {
					return fmt.Errorf("confirm update: %w", err)
				}
				if !ok {
					return errUpdateDeclined
				}
			}

			sigCtx, stop := interruptContext(cmd)
			defer stop()
			ctx, cancel := context.WithTimeout(sigCtx, updateTimeout)
			defer cancel()

			res, err := runResolution(ctx, cmd, s, "Updating ferrous-owl", nil, func(ctx context.Context, r *bootstrap.Resolver) (string, error) {
				return r.Update(ctx)
			})
			if err != nil {
				return err
			}
			return writeResolution(cmd, res)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
