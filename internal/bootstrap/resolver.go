// Package bootstrap resolves a runnable ferrous-owl server binary, building
// or installing one when nothing usable is on disk.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"ferrousowl/internal/paths"
	"ferrousowl/internal/version"
)

const (
	// DefaultRepoURL is the upstream source repository.
	DefaultRepoURL = "https://github.com/wvhulle/ferrous-owl.git"
	// DefaultReleaseAPI lists upstream releases.
	DefaultReleaseAPI = "https://api.github.com/repos/wvhulle/ferrous-owl/releases"
)

// Options configures a Resolver. The zero value of every field except
// Layout has a usable default.
type Options struct {
	Layout paths.Layout

	// ServerPath is an explicit override; empty means unset.
	ServerPath         string
	SkipToolchainSetup bool
	DownloadPrebuilt   bool

	Mode          Mode
	ExtensionPath string
	// ClientVersion is compared against the server's reported version.
	ClientVersion string

	RepoURL    string
	ReleaseAPI string
	HTTPClient *http.Client

	Runner   Runner
	Logger   Logger
	Reporter Reporter
	Notifier Notifier
}

// Resolver decides which server executable to launch.
type Resolver struct {
	layout paths.Layout
	opts   Options

	runner   Runner
	logger   Logger
	reporter Reporter
	notifier Notifier

	flight     singleflight.Group
	background sync.WaitGroup
}

// New builds a resolver, filling defaults for unset collaborators.
func New(opts Options) *Resolver {
	if opts.RepoURL == "" {
		opts.RepoURL = DefaultRepoURL
	}
	if opts.ReleaseAPI == "" {
		opts.ReleaseAPI = DefaultReleaseAPI
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	r := &Resolver{
		layout:   opts.Layout,
		opts:     opts,
		runner:   opts.Runner,
		logger:   opts.Logger,
		reporter: opts.Reporter,
		notifier: opts.Notifier,
	}
	if r.runner == nil {
		r.runner = CmdRunner{}
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.reporter == nil {
		r.reporter = noopReporter{}
	}
	if r.notifier == nil {
		r.notifier = noopNotifier{}
	}
	return r
}

func (r *Resolver) logf(format string, v ...any) {
	r.logger.Printf(format, v...)
}

func (r *Resolver) report(stage Stage, kind EventKind, msg string) {
	r.reporter.Report(Event{Stage: stage, Kind: kind, Message: msg})
}

// Layout returns the filesystem layout the resolver operates on.
func (r *Resolver) Layout() paths.Layout {
	return r.layout
}

// Resolve returns the executable to launch for the LSP session: an absolute
// path or the bare command name. Concurrent calls share a single attempt.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	v, err, _ := r.flight.Do("resolve", func() (any, error) {
		return r.resolve(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Update is the explicit update action: it refreshes the source tree and
// rebuilds even when a usable binary already exists.
func (r *Resolver) Update(ctx context.Context) (string, error) {
	v, err, _ := r.flight.Do("update", func() (any, error) {
		return r.install(ctx, true)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Wait blocks until background work such as symlink creation has finished.
// Short-lived processes call it before exiting.
func (r *Resolver) Wait() {
	r.background.Wait()
}

func (r *Resolver) resolve(ctx context.Context) (string, error) {
	if sp := r.opts.ServerPath; sp != "" {
		if _, err := r.queryVersion(ctx, sp); err != nil {
			return "", fmt.Errorf("configured serverPath %q is not a valid ferrous-owl executable: %w: %w", sp, ErrInvalidServerPath, err)
		}
		r.logf("using configured serverPath: %s", sp)
		return sp, nil
	}

	if r.opts.Mode == ModeDevelopment && r.opts.ExtensionPath != "" {
		if path, ver, ok := r.findDevBinary(ctx); ok {
			r.logf("development mode: using local binary %s", path)
			r.checkVersion(path, ver)
			return path, nil
		}
		r.logf("development mode: no local binary found, falling back to normal bootstrap")
	}

	if cand, ok := r.probe(ctx); ok {
		r.checkVersion(cand.Path, cand.Version)
		return cand.Path, nil
	}

	if r.opts.SkipToolchainSetup {
		return "", &skippedError{instructions: RecoveryInstructions(r.layout, r.opts.RepoURL)}
	}
	return r.install(ctx, false)
}

// checkVersion only notifies; replacing a binary another editor session may
// be running is left to the explicit Update action.
func (r *Resolver) checkVersion(path, current string) {
	r.logf("current ferrous-owl version: %s", current)
	r.logf("client version: v%s", r.opts.ClientVersion)
	if !version.NeedsUpdate(current, r.opts.ClientVersion) {
		return
	}
	r.logf("update available for %s (%s -> v%s)", path, current, r.opts.ClientVersion)
	r.notifier.UpdateAvailable(UpdateNotice{Path: path, Current: current, Expected: r.opts.ClientVersion})
}

type skippedError struct {
	instructions []string
}

func (e *skippedError) Error() string {
	msg := ErrToolchainSetupSkipped.Error()
	if len(e.instructions) > 0 {
		msg += "\nInstall manually:\n  " + strings.Join(e.instructions, "\n  ")
	}
	return msg
}

func (e *skippedError) Is(target error) bool { return target == ErrToolchainSetupSkipped }
