package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ferrousowl/internal/paths"
)

// install acquires source, builds a release binary and verifies it. With
// force unset, a binary that became valid while waiting for the lock (another
// process finished the same install) is returned as is.
func (r *Resolver) install(ctx context.Context, force bool) (string, error) {
	if r.opts.SkipToolchainSetup {
		return "", &skippedError{instructions: RecoveryInstructions(r.layout, r.opts.RepoURL)}
	}
	if !r.opts.DownloadPrebuilt {
		if err := r.requireToolchain(ctx); err != nil {
			return "", err
		}
	}

	unlock, err := acquireInstallLock(ctx, r.layout.LockFile(), r.logger)
	if err != nil {
		return "", err
	}
	defer unlock()

	release := r.layout.ReleaseBinary()
	if !force {
		if _, err := r.probeFile(ctx, release); err == nil {
			r.logf("release binary became available while waiting: %s", release)
			return release, nil
		}
	}

	if r.opts.DownloadPrebuilt {
		path, err := r.installPrebuilt(ctx)
		if err == nil {
			return path, nil
		}
		r.logf("prebuilt download failed, building from source: %v", err)
		if err := r.requireToolchain(ctx); err != nil {
			return "", err
		}
	}

	if err := r.acquireSource(ctx); err != nil {
		return "", r.installFailed(err)
	}
	if err := r.buildRelease(ctx); err != nil {
		return "", r.installFailed(err)
	}
	ver, err := r.verify(ctx, release)
	if err != nil {
		return "", r.installFailed(err)
	}

	r.recordInstall(MethodSourceBuild, ver, release, "")
	r.linkInBackground(release)
	return release, nil
}

func (r *Resolver) installFailed(cause error) error {
	err := &InstallError{Cause: cause, Instructions: RecoveryInstructions(r.layout, r.opts.RepoURL)}
	r.logf("%v", err)
	return err
}

// requireToolchain fails before any network or filesystem work when cargo or
// git cannot run.
func (r *Resolver) requireToolchain(ctx context.Context) error {
	r.report(StageToolchain, EventStarted, "Checking cargo and git")
	var missing []string
	for _, tool := range []string{"cargo", "git"} {
		if _, err := r.runner.Run(ctx, tool, []string{"--version"}, RunOptions{}); err != nil {
			r.logf("%s --version failed: %v", tool, err)
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		r.report(StageToolchain, EventFailed, "missing "+strings.Join(missing, ", "))
		return fmt.Errorf("%w (missing: %s)", ErrToolchainMissing, strings.Join(missing, ", "))
	}
	r.report(StageToolchain, EventCompleted, "cargo and git available")
	return nil
}

// acquireSource fast-forwards an existing checkout, or replaces the cache
// directory with a fresh shallow clone when it is not a checkout or the pull
// fails.
func (r *Resolver) acquireSource(ctx context.Context) error {
	r.report(StageSource, EventStarted, "")
	dir := r.layout.CacheDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.report(StageSource, EventFailed, err.Error())
		return fmt.Errorf("prepare cache dir: %w", err)
	}

	isRepo, err := paths.DirExists(r.layout.GitDir())
	if err != nil {
		return fmt.Errorf("stat %s: %w", r.layout.GitDir(), err)
	}
	if isRepo {
		r.report(StageSource, EventProgress, "Pulling latest changes...")
		res, err := r.runner.Run(ctx, "git", []string{"pull", "--ff-only"}, RunOptions{Dir: dir})
		if err == nil {
			r.report(StageSource, EventCompleted, "Source up to date")
			return nil
		}
		r.logf("git pull failed, re-cloning: %v: %s", err, tail(res.Stderr))
		r.report(StageSource, EventProgress, "Pull failed, re-cloning...")
	} else {
		r.report(StageSource, EventProgress, "Cloning repository...")
	}

	if err := r.freshClone(ctx); err != nil {
		r.report(StageSource, EventFailed, err.Error())
		return err
	}
	r.report(StageSource, EventCompleted, "Repository cloned")
	return nil
}

func (r *Resolver) freshClone(ctx context.Context) error {
	dir := r.layout.CacheDir
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("recreate cache dir: %w", err)
	}
	res, err := r.runner.Run(ctx, "git", []string{"clone", "--depth", "1", r.opts.RepoURL, dir}, RunOptions{})
	if err != nil {
		return fmt.Errorf("git clone: %w: %s", err, tail(res.Stderr))
	}
	return nil
}

// buildRelease is not retried on failure.
func (r *Resolver) buildRelease(ctx context.Context) error {
	r.report(StageBuild, EventStarted, "Running cargo build --release (this may take a few minutes)...")
	progress := newProgressWriter(StageBuild, r.reporter)
	res, err := r.runner.Run(ctx, "cargo", []string{"build", "--release", "--locked"}, RunOptions{Dir: r.layout.CacheDir, Stderr: progress})
	progress.Flush()
	if err != nil {
		r.report(StageBuild, EventFailed, err.Error())
		return fmt.Errorf("cargo build: %w: %s", err, tail(res.Stderr))
	}
	r.report(StageBuild, EventCompleted, "Build complete")
	return nil
}

func (r *Resolver) verify(ctx context.Context, path string) (string, error) {
	r.report(StageVerify, EventStarted, path)
	ver, err := r.probeFile(ctx, path)
	if err != nil {
		r.report(StageVerify, EventFailed, err.Error())
		return "", fmt.Errorf("verify %s: %w", path, err)
	}
	r.report(StageVerify, EventCompleted, ver)
	return ver, nil
}

// linkInBackground links the release binary into BinDir without blocking the
// caller. The returned path never depends on this step.
func (r *Resolver) linkInBackground(target string) {
	link := r.layout.SymlinkPath()
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		r.report(StageSymlink, EventStarted, link)
		if err := createSymlink(target, link); err != nil {
			r.logf("could not create symlink: %v", err)
			r.report(StageSymlink, EventFailed, err.Error())
			return
		}
		r.logf("created symlink: %s -> %s", link, target)
		r.report(StageSymlink, EventCompleted, link)
	}()
}

func createSymlink(target, link string) error {
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink != 0 || info.Mode().IsRegular() {
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("remove existing %s: %w", link, err)
			}
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", link, target, err)
	}
	return nil
}

// CleanOptions selects what Clean removes.
type CleanOptions struct {
	Source bool
	Logs   bool
}

// Clean removes the cloned source tree and/or the log files while holding
// the install lock, and returns the paths it removed. Removing the source tree
// also removes a BinDir link to the release binary inside it.
func (r *Resolver) Clean(ctx context.Context, opts CleanOptions) ([]string, error) {
	unlock, err := acquireInstallLock(ctx, r.layout.LockFile(), r.logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		removed []string
		errs    []error
	)
	if opts.Source {
		if err := os.RemoveAll(r.layout.CacheDir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", r.layout.CacheDir, err))
		} else {
			r.logf("removed source tree %s", r.layout.CacheDir)
			removed = append(removed, r.layout.CacheDir)
		}
		link := r.layout.SymlinkPath()
		if target, err := os.Readlink(link); err == nil && filepath.Clean(target) == filepath.Clean(r.layout.ReleaseBinary()) {
			if err := os.Remove(link); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", link, err))
			} else {
				r.logf("removed dangling link %s", link)
				removed = append(removed, link)
			}
		}
	}
	if opts.Logs {
		entries, err := os.ReadDir(r.layout.LogsDir)
		if err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("read %s: %w", r.layout.LogsDir, err))
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
				continue
			}
			path := filepath.Join(r.layout.LogsDir, entry.Name())
			if err := os.Remove(path); err != nil {
				errs = append(errs, err)
				continue
			}
			removed = append(removed, path)
		}
	}
	return removed, errors.Join(errs...)
}

// ToolStatus is the outcome of one toolchain probe.
type ToolStatus struct {
	Tool    string `json:"tool"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Toolchain reports the cargo and git versions without reporting progress.
func (r *Resolver) Toolchain(ctx context.Context) []ToolStatus {
	var out []ToolStatus
	for _, tool := range []string{"cargo", "git"} {
		st := ToolStatus{Tool: tool}
		res, err := r.runner.Run(ctx, tool, []string{"--version"}, RunOptions{})
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Version = firstLine(strings.TrimSpace(string(res.Stdout)))
		}
		out = append(out, st)
	}
	return out
}

func computeChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// tail keeps the last few lines of command output for error messages.
func tail(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
