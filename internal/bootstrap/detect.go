package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"ferrousowl/internal/paths"
)

var versionArgs = []string{"--version", "--quiet"}

var errNotInstalled = errors.New("not installed")

// queryVersion runs the candidate's version query. Exit zero with non-empty
// output is the only validity check for a candidate.
func (r *Resolver) queryVersion(ctx context.Context, command string) (string, error) {
	res, err := r.runner.Run(ctx, command, versionArgs, RunOptions{})
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", command, err)
	}
	line := firstLine(strings.TrimSpace(string(res.Stdout)))
	if line == "" {
		return "", fmt.Errorf("%s --version: empty output", command)
	}
	return line, nil
}

// probeFile checks existence before running, so a missing file never reaches
// the runner.
func (r *Resolver) probeFile(ctx context.Context, path string) (string, error) {
	ok, err := paths.FileExists(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", path, errNotInstalled)
	}
	return r.queryVersion(ctx, path)
}

// Candidates lists the probe locations in priority order without running them.
func (r *Resolver) Candidates() []Candidate {
	return []Candidate{
		{Source: SourceBinDir, Path: r.layout.SymlinkPath()},
		{Source: SourceReleaseCache, Path: r.layout.ReleaseBinary()},
		{Source: SourcePath, Path: paths.ServerName},
	}
}

func (r *Resolver) check(ctx context.Context, c Candidate) Candidate {
	var (
		ver string
		err error
	)
	if c.Source == SourcePath || c.Source == SourceOverride {
		ver, err = r.queryVersion(ctx, c.Path)
	} else {
		ver, err = r.probeFile(ctx, c.Path)
	}
	if err != nil {
		c.Error = err.Error()
		c.Missing = errors.Is(err, errNotInstalled) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
		return c
	}
	c.Version = ver
	c.Valid = true
	return c
}

// probe returns the first valid candidate; later candidates are not run.
func (r *Resolver) probe(ctx context.Context) (Candidate, bool) {
	for _, c := range r.Candidates() {
		checked := r.check(ctx, c)
		if checked.Valid {
			r.logf("found ferrous-owl (%s): %s %s", checked.Source, checked.Path, checked.Version)
			return checked, true
		}
		r.logf("candidate %s unusable: %s", c.Path, checked.Error)
	}
	return Candidate{}, false
}

// Detect checks every candidate, including the override and development
// build when configured, for status reporting. Unlike Resolve it never
// builds or installs anything.
func (r *Resolver) Detect(ctx context.Context) []Candidate {
	var list []Candidate
	if r.opts.ServerPath != "" {
		list = append(list, Candidate{Source: SourceOverride, Path: r.opts.ServerPath})
	}
	if r.opts.Mode == ModeDevelopment && r.opts.ExtensionPath != "" {
		root := paths.ProjectRootFromExtension(r.opts.ExtensionPath)
		list = append(list, Candidate{Source: SourceDevelopment, Path: paths.DevBinary(root)})
	}
	list = append(list, r.Candidates()...)

	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		out = append(out, r.check(ctx, c))
	}
	return out
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
