package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"ferrousowl/internal/config"
)

func TestConfigPathReportsMissingFile(t *testing.T) {
	l := setupCLI(t)

	stdout, _, err := execute(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if !strings.HasPrefix(stdout, l.ConfigFile) || !strings.Contains(stdout, "defaults in effect") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestConfigShowMergesDefaults(t *testing.T) {
	l := setupCLI(t)
	writeConfig(t, l.ConfigFile, "serverPath: /opt/owl\ndecorations:\n  outliveColor: \"#101010\"\n")

	stdout, _, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"serverPath: /opt/owl", "#101010", "cursorMethod: " + config.DefaultCursorMethod, "#47eb55"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in:\n%s", want, stdout)
		}
	}
}

func TestEnsureConfigFileExistsWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := ensureConfigFileExists(path); err != nil {
		t.Fatalf("ensureConfigFileExists: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.CursorMethod != config.DefaultCursorMethod {
		t.Fatalf("unexpected config %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("serverPath: keep\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigFileExists(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "serverPath: keep\n" {
		t.Fatalf("existing config overwritten: %q", data)
	}
}

func TestSplitEditorCommand(t *testing.T) {
	tests := map[string][]string{
		"":          nil,
		"vi":        {"vi"},
		" code -w ": {"code", "-w"},
	}
	for in, want := range tests {
		got := splitEditorCommand(in)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("splitEditorCommand(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	setupCLI(t)
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "owlctl v"+clientVersion) {
		t.Fatalf("unexpected version output %q", stdout)
	}
}

func TestUpdateRequiresConfirmationWhenNotInteractive(t *testing.T) {
	setupCLI(t)
	called := false
	prev := confirmUpdate
	confirmUpdate = func(*cobra.Command, string) (bool, error) {
		called = true
		return true, nil
	}
	t.Cleanup(func() { confirmUpdate = prev })

	_, _, err := execute(t, "update")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected --yes hint, got %v", err)
	}
	if called {
		t.Fatal("prompt must not run without a terminal")
	}
}
