package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/config"
	"ferrousowl/internal/paths"
	"ferrousowl/internal/version"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check toolchain, config and installed binary health",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd, "", false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := commandContext(cmd)
	r := s.newResolver()
	candidates := r.Detect(ctx)
	found, hasBinary := firstValid(candidates)

	var checks []healthCheck
	checks = append(checks, checkToolchain(r.Toolchain(ctx), hasBinary))
	checks = append(checks, checkConfig(s.cfg, s.cfgErr))
	checks = append(checks, checkBinary(s.cfg, candidates))
	if hasBinary {
		checks = append(checks, checkVersion(found, clientVersion))
	}
	checks = append(checks, checkSymlink(s.layout))

	if err := writeDoctorResult(cmd, s.layout.CacheDir, checks); err != nil {
		return err
	}

	var errs []error
	for _, c := range checks {
		if c.Status == "error" {
			errs = append(errs, fmt.Errorf("%s: %s", c.Name, c.Summary))
		}
	}
	return errors.Join(errs...)
}

// firstValid mirrors resolution order: Detect lists the override first,
// then the probe locations.
func firstValid(candidates []bootstrap.Candidate) (bootstrap.Candidate, bool) {
	for _, c := range candidates {
		if c.Source == bootstrap.SourceOverride && !c.Valid {
			return bootstrap.Candidate{}, false
		}
		if c.Valid {
			return c, true
		}
	}
	return bootstrap.Candidate{}, false
}

func checkToolchain(statuses []bootstrap.ToolStatus, hasBinary bool) healthCheck {
	var available, missing []string
	for _, st := range statuses {
		if st.Error != "" {
			missing = append(missing, st.Tool)
			continue
		}
		available = append(available, st.Version)
	}
	if len(missing) == 0 {
		return healthCheck{Name: "Toolchain", Status: "ok", Summary: joinComma(available)}
	}
	status := "error"
	if hasBinary {
		// Only installs and updates need cargo and git.
		status = "warning"
	}
	return healthCheck{
		Name:    "Toolchain",
		Status:  status,
		Summary: fmt.Sprintf("missing %s; %s", joinComma(missing), joinComma(bootstrap.ToolchainHints())),
	}
}

func checkConfig(cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}

	var warnings, errs int
	var first string
	for _, v := range cfg.Validate() {
		switch v.Level {
		case "warning":
			warnings++
		case "error":
			errs++
		}
		if first == "" {
			first = v.Message
		}
	}

	summary := "defaults"
	if cfg.ServerPath != "" {
		summary = "serverPath " + cfg.ServerPath
	}
	if errs > 0 {
		return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%d errors; %s", errs, first)}
	}
	if warnings > 0 {
		return healthCheck{Name: "Config", Status: "warning", Summary: fmt.Sprintf("%d warnings; %s", warnings, first)}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkBinary(cfg config.Config, candidates []bootstrap.Candidate) healthCheck {
	for _, c := range candidates {
		if c.Source == bootstrap.SourceOverride && !c.Valid {
			return healthCheck{Name: "Binary", Status: "error", Summary: "serverPath is not runnable: " + c.Error}
		}
		if c.Valid {
			return healthCheck{Name: "Binary", Status: "ok", Summary: fmt.Sprintf("%s (%s)", c.Path, c.Source)}
		}
	}
	if cfg.SkipToolchainSetup {
		return healthCheck{Name: "Binary", Status: "error", Summary: "not installed and skipToolchainSetup is set"}
	}
	return healthCheck{Name: "Binary", Status: "warning", Summary: "not installed; `owlctl resolve` builds it"}
}

func checkVersion(found bootstrap.Candidate, expected string) healthCheck {
	if version.NeedsUpdate(found.Version, expected) {
		return healthCheck{
			Name:    "Version",
			Status:  "warning",
			Summary: fmt.Sprintf("%s, expected v%s; run `owlctl update`", found.Version, expected),
		}
	}
	return healthCheck{Name: "Version", Status: "ok", Summary: found.Version}
}

func checkSymlink(l paths.Layout) healthCheck {
	link := l.SymlinkPath()
	info, err := os.Lstat(link)
	if err != nil {
		if os.IsNotExist(err) {
			return healthCheck{Name: "Symlink", Status: "warning", Summary: link + " missing"}
		}
		return healthCheck{Name: "Symlink", Status: "error", Summary: err.Error()}
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return healthCheck{Name: "Symlink", Status: "ok", Summary: link + " (regular file)"}
	}
	target, err := os.Readlink(link)
	if err != nil {
		return healthCheck{Name: "Symlink", Status: "error", Summary: err.Error()}
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	if filepath.Clean(target) != filepath.Clean(l.ReleaseBinary()) {
		return healthCheck{Name: "Symlink", Status: "warning", Summary: fmt.Sprintf("%s points to %s", link, target)}
	}
	if _, err := os.Stat(target); err != nil {
		return healthCheck{Name: "Symlink", Status: "warning", Summary: link + " is dangling"}
	}
	return healthCheck{Name: "Symlink", Status: "ok", Summary: link + " -> " + target}
}

func writeDoctorResult(cmd *cobra.Command, cacheDir string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("FERROUS-OWL HEALTH:")+" "+cacheDir)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}

func joinComma(items []string) string {
	if len(items) == 0 {
		return ""
	}
	result := items[0]
	for _, item := range items[1:] {
		result += ", " + item
	}
	return result
}
