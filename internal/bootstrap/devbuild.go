package bootstrap

import (
	"context"

	"ferrousowl/internal/paths"
)

// findDevBinary looks for a debug build in the checkout that contains the
// extension, running `cargo build` once when it is missing. Any failure here
// falls through to the normal bootstrap.
func (r *Resolver) findDevBinary(ctx context.Context) (string, string, bool) {
	root := paths.ProjectRootFromExtension(r.opts.ExtensionPath)
	candidate := paths.DevBinary(root)

	if ver, err := r.probeFile(ctx, candidate); err == nil {
		r.logf("found local dev binary: %s", candidate)
		return candidate, ver, true
	}
	if r.opts.SkipToolchainSetup {
		return "", "", false
	}

	r.logf("debug binary not found at %s, building...", candidate)
	r.report(StageDevBuild, EventStarted, "Running cargo build...")
	progress := newProgressWriter(StageDevBuild, r.reporter)
	res, err := r.runner.Run(ctx, "cargo", []string{"build"}, RunOptions{Dir: root, Stderr: progress})
	progress.Flush()
	if err != nil {
		r.logf("debug build failed: %v: %s", err, tail(res.Stderr))
		r.report(StageDevBuild, EventFailed, err.Error())
		return "", "", false
	}
	r.report(StageDevBuild, EventCompleted, "Debug build complete")

	ver, err := r.probeFile(ctx, candidate)
	if err != nil {
		r.logf("debug build produced no usable binary: %v", err)
		return "", "", false
	}
	r.logf("built local dev binary: %s", candidate)
	return candidate, ver, true
}
