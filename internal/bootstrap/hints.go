package bootstrap

import (
	"runtime"

	"ferrousowl/internal/paths"
)

// RecoveryInstructions are the manual commands that reproduce an install.
func RecoveryInstructions(l paths.Layout, repoURL string) []string {
	if repoURL == "" {
		repoURL = DefaultRepoURL
	}
	return []string{
		"git clone " + repoURL + " " + l.CacheDir,
		"cd " + l.CacheDir + " && cargo build --release --locked",
	}
}

// ToolchainHints suggest how to obtain cargo and git on this platform.
func ToolchainHints() []string {
	rust := "Install Rust via https://rustup.rs"
	switch runtime.GOOS {
	case "darwin":
		return []string{rust, "Install git via Xcode command line tools: xcode-select --install"}
	case "linux":
		return []string{rust, "Install git with your distro package manager, e.g. sudo apt install git"}
	case "windows":
		return []string{rust, "Install git via winget: winget install Git.Git"}
	default:
		return []string{rust, "Install git using your platform's package manager"}
	}
}
