package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/paths"
	"ferrousowl/internal/tui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every ferrous-owl candidate and the recorded install",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd, "", true)
	if err != nil {
		return err
	}
	defer s.Close()

	r := s.newResolver()
	candidates := r.Detect(commandContext(cmd))
	manifest, err := r.LoadManifest()
	if err != nil {
		// The manifest is informational; a broken one should not hide candidates.
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if outputJSON {
		return writeStatusJSON(cmd, s.layout, candidates, manifest)
	}
	writeStatusTable(cmd, s.layout, candidates, manifest)
	return nil
}

func writeStatusTable(cmd *cobra.Command, l paths.Layout, candidates []bootstrap.Candidate, m bootstrap.Manifest) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n", l.CacheDir)
	fmt.Fprintf(out, "Bin:   %s\n", l.BinDir)

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tVERSION\tPATH\tNOTES")
	for _, c := range candidates {
		status := "missing"
		if c.Valid {
			status = "valid"
		} else if !c.Missing {
			status = "invalid"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Source,
			tui.StatusStyle(status).Render(status),
			tui.NonEmptyOrDash(c.Version),
			c.Path,
			tui.TruncateWithEllipsis(tui.NonEmptyOrDash(c.Error), 48),
		)
	}
	w.Flush()

	if m.Current == nil {
		fmt.Fprintln(out, "Installed: -")
		return
	}
	rec := m.Current
	line := fmt.Sprintf("Installed: %s via %s at %s", tui.NonEmptyOrDash(rec.Version), rec.Method, rec.InstalledAt)
	if rec.Asset != "" {
		line += " (" + rec.Asset + ")"
	}
	fmt.Fprintln(out, line)
}

func writeStatusJSON(cmd *cobra.Command, l paths.Layout, candidates []bootstrap.Candidate, m bootstrap.Manifest) error {
	payload := struct {
		ClientVersion string                `json:"client_version"`
		CacheDir      string                `json:"cache_dir"`
		BinDir        string                `json:"bin_dir"`
		Candidates    []bootstrap.Candidate `json:"candidates"`
		Manifest      bootstrap.Manifest    `json:"manifest"`
	}{
		ClientVersion: clientVersion,
		CacheDir:      l.CacheDir,
		BinDir:        l.BinDir,
		Candidates:    candidates,
		Manifest:      m,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
