package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
)

func newResolveCmd() *cobra.Command {
	var (
		devMode       bool
		extensionPath string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the ferrous-owl executable to launch, installing it when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if devMode && extensionPath == "" {
				return errors.New("--dev requires --extension-path")
			}
			s, err := loadSettings(cmd, "resolve", true)
			if err != nil {
				return err
			}
			defer s.Close()

			mutate := func(o *bootstrap.Options) {
				if devMode {
					o.Mode = bootstrap.ModeDevelopment
					o.ExtensionPath = extensionPath
				}
			}
			ctx, stop := interruptContext(cmd)
			defer stop()

			res, err := runResolution(ctx, cmd, s, "Resolving ferrous-owl", mutate, func(ctx context.Context, r *bootstrap.Resolver) (string, error) {
				return r.Resolve(ctx)
			})
			if err != nil {
				return err
			}
			return writeResolution(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&devMode, "dev", false, "Prefer the debug build of a development checkout")
	cmd.Flags().StringVar(&extensionPath, "extension-path", "", "Editor extension directory inside a ferrous-owl checkout")
	return cmd
}

func writeResolution(cmd *cobra.Command, res resolution) error {
	if outputJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode resolution json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Path)
	return nil
}
