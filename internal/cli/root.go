package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// clientVersion is the version the resolved server is expected to match.
var clientVersion = "0.3.1"

var (
	configPath string
	outputJSON bool
	verbose    bool
	cacheDir   string
	binDir     string
	noProgress bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "owlctl",
		Short:         "Resolve, build and talk to the ferrous-owl analysis server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $"+configEnv+" or the user config dir)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Echo log lines and compiler progress to stderr")
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Override the source checkout directory")
	cmd.PersistentFlags().StringVar(&binDir, "bin-dir", "", "Override the symlink directory")
	cmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable the interactive progress display")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newCursorCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
