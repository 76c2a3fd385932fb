package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the owlctl version and the server version it expects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputJSON {
				data, err := json.MarshalIndent(map[string]string{
					"version":  clientVersion,
					"expected": "v" + clientVersion,
					"platform": runtime.GOOS + "/" + runtime.GOARCH,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owlctl v%s (%s/%s)\n", clientVersion, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
