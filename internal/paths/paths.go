package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// ServerName is the executable name of the analysis server without extension.
	ServerName = "ferrous-owl"

	rootEnv = "FERROUS_OWL_CACHE_DIR_ROOT"
)

// Layout captures the canonical filesystem locations used by the bootstrapper.
// Everything that touches disk receives a Layout instead of deriving paths from
// the environment, so tests can point it at a temporary directory.
type Layout struct {
	// CacheDir holds the cloned source tree and its build output.
	CacheDir string
	// BinDir is the preferred symlink target and the first probe location.
	BinDir string
	// StateDir holds logs, the install lock, the manifest and downloads. It must
	// live outside CacheDir since a re-clone wipes CacheDir.
	StateDir   string
	LogsDir    string
	ConfigFile string
}

// Default derives the layout from the user's home directory.
func Default() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("detect user home: %w", err)
	}

	cacheRoot := filepath.Join(home, ".cache")
	if override, ok := os.LookupEnv(rootEnv); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return Layout{}, fmt.Errorf("resolve %s: %w", rootEnv, err)
		}
		cacheRoot = abs
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(home, ".config")
	}

	return New(filepath.Join(cacheRoot, ServerName), filepath.Join(home, ".cargo", "bin"), filepath.Join(home, "."+ServerName), filepath.Join(configDir, ServerName, "config.yaml")), nil
}

// New assembles a layout from explicit directories.
func New(cacheDir, binDir, stateDir, configFile string) Layout {
	return Layout{
		CacheDir:   filepath.Clean(cacheDir),
		BinDir:     filepath.Clean(binDir),
		StateDir:   filepath.Clean(stateDir),
		LogsDir:    filepath.Join(stateDir, "logs"),
		ConfigFile: configFile,
	}
}

// WithOverrides returns a copy of the layout with non-empty overrides applied.
func (l Layout) WithOverrides(cacheDir, binDir string) (Layout, error) {
	if cacheDir != "" {
		abs, err := filepath.Abs(cacheDir)
		if err != nil {
			return Layout{}, fmt.Errorf("resolve cache dir: %w", err)
		}
		l.CacheDir = abs
	}
	if binDir != "" {
		abs, err := filepath.Abs(binDir)
		if err != nil {
			return Layout{}, fmt.Errorf("resolve bin dir: %w", err)
		}
		l.BinDir = abs
	}
	return l, nil
}

// ExecutableName appends the platform executable suffix.
func ExecutableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

// ReleaseBinary is the output of a release build inside the cached source tree.
func (l Layout) ReleaseBinary() string {
	return filepath.Join(l.CacheDir, "target", "release", ExecutableName(ServerName))
}

// SymlinkPath is where the release binary gets linked for PATH users.
func (l Layout) SymlinkPath() string {
	return filepath.Join(l.BinDir, ExecutableName(ServerName))
}

// GitDir marks a valid source checkout.
func (l Layout) GitDir() string {
	return filepath.Join(l.CacheDir, ".git")
}

func (l Layout) LockFile() string {
	return filepath.Join(l.StateDir, "install.lock")
}

func (l Layout) ManifestFile() string {
	return filepath.Join(l.StateDir, "manifest.json")
}

func (l Layout) DownloadsDir() string {
	return filepath.Join(l.StateDir, "downloads")
}

// ProjectRootFromExtension maps an extension install path to the repository
// root that contains it: two directories up.
func ProjectRootFromExtension(extensionPath string) string {
	return filepath.Dir(filepath.Dir(filepath.Clean(extensionPath)))
}

// DevBinary is the debug build output inside a development checkout.
func DevBinary(projectRoot string) string {
	return filepath.Join(projectRoot, "target", "debug", ExecutableName(ServerName))
}

// EnsureStateDirs creates the state and logs directories.
func (l Layout) EnsureStateDirs() error {
	for _, dir := range []string{l.StateDir, l.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
