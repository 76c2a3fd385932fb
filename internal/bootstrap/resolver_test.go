package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ferrousowl/internal/paths"
)

// fakeRunner stands in for git, cargo and candidate server binaries. Server
// binaries are plain files whose content is the version line they print.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string

	pathVersion  string
	buildVersion string
	missing      map[string]bool
	failPull     bool
	failClone    bool
	failBuild    bool
	failDevBuild bool
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.TrimSpace(command+" "+strings.Join(args, " ")))
	f.mu.Unlock()

	switch command {
	case "git", "cargo":
		if f.missing[command] {
			return RunResult{}, exec.ErrNotFound
		}
		if len(args) == 1 && args[0] == "--version" {
			return RunResult{Stdout: []byte(command + " 1.80.0\n")}, nil
		}
		if command == "git" {
			return f.git(args)
		}
		return f.cargo(args, opts)
	case paths.ServerName:
		if f.pathVersion == "" {
			return RunResult{}, exec.ErrNotFound
		}
		return RunResult{Stdout: []byte(f.pathVersion + "\n")}, nil
	}

	data, err := os.ReadFile(command)
	if err != nil {
		return RunResult{}, err
	}
	if !strings.HasPrefix(string(data), "fake-owl") {
		return RunResult{}, fmt.Errorf("%s: exec format error", command)
	}
	return RunResult{Stdout: data}, nil
}

func (f *fakeRunner) git(args []string) (RunResult, error) {
	switch args[0] {
	case "pull":
		if f.failPull {
			return RunResult{Stderr: []byte("fatal: Not possible to fast-forward")}, errors.New("exit status 128")
		}
		return RunResult{Stdout: []byte("Already up to date.\n")}, nil
	case "clone":
		if f.failClone {
			return RunResult{Stderr: []byte("fatal: unable to access")}, errors.New("exit status 128")
		}
		dest := args[len(args)-1]
		if err := os.MkdirAll(filepath.Join(dest, ".git"), 0o755); err != nil {
			return RunResult{}, err
		}
		return RunResult{}, nil
	}
	return RunResult{}, fmt.Errorf("fake runner: unexpected git %v", args)
}

func (f *fakeRunner) cargo(args []string, opts RunOptions) (RunResult, error) {
	if args[0] != "build" {
		return RunResult{}, fmt.Errorf("fake runner: unexpected cargo %v", args)
	}
	profile := "debug"
	fail := f.failDevBuild
	if len(args) > 1 && args[1] == "--release" {
		profile = "release"
		fail = f.failBuild
	}
	if opts.Stderr != nil {
		_, _ = opts.Stderr.Write([]byte("   Compiling libc v0.2.155\n   Compiling ferrous-owl v0.3.1 (" + opts.Dir + ")\n"))
	}
	if fail {
		return RunResult{Stderr: []byte("error[E0425]: cannot find value")}, errors.New("exit status 101")
	}
	ver := f.buildVersion
	if ver == "" {
		ver = "0.3.1"
	}
	out := filepath.Join(opts.Dir, "target", profile, paths.ExecutableName(paths.ServerName))
	if err := writeFakeBinary(out, ver); err != nil {
		return RunResult{}, err
	}
	return RunResult{}, nil
}

func (f *fakeRunner) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func writeFakeBinary(path, ver string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("fake-owl "+ver+"\n"), 0o755)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Report(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) find(stage Stage, kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Stage == stage && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func testLayout(t *testing.T) paths.Layout {
	t.Helper()
	root := t.TempDir()
	return paths.New(filepath.Join(root, "cache", "ferrous-owl"), filepath.Join(root, "bin"), filepath.Join(root, "state"), filepath.Join(root, "config.yaml"))
}

func newTestResolver(t *testing.T, runner *fakeRunner, mutate func(*Options)) (*Resolver, paths.Layout) {
	t.Helper()
	opts := Options{
		Layout:        testLayout(t),
		ClientVersion: "0.3.1",
		RepoURL:       "https://example.com/ferrous-owl.git",
		Runner:        runner,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r := New(opts)
	t.Cleanup(r.Wait)
	return r, opts.Layout
}

func TestResolveInvalidServerPathDoesNotFallThrough(t *testing.T) {
	runner := &fakeRunner{pathVersion: "ferrous-owl 0.3.1"}
	var override string
	r, layout := newTestResolver(t, runner, func(o *Options) {
		override = filepath.Join(filepath.Dir(o.Layout.CacheDir), "nope", "ferrous-owl")
		o.ServerPath = override
	})
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrInvalidServerPath) {
		t.Fatalf("expected ErrInvalidServerPath, got %v", err)
	}
	if !strings.Contains(err.Error(), override) {
		t.Fatalf("expected error to name %s, got %v", override, err)
	}
	if n := runner.callCount("git") + runner.callCount("cargo"); n != 0 {
		t.Fatalf("expected no toolchain calls, got %v", runner.calls)
	}
	if runner.callCount(layout.ReleaseBinary()) != 0 {
		t.Fatalf("override failure must not fall through to probing: %v", runner.calls)
	}
}

func TestResolveValidServerPath(t *testing.T) {
	runner := &fakeRunner{}
	dir := t.TempDir()
	override := filepath.Join(dir, "custom-owl")
	if err := writeFakeBinary(override, "0.3.1"); err != nil {
		t.Fatal(err)
	}
	r, _ := newTestResolver(t, runner, func(o *Options) { o.ServerPath = override })

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != override {
		t.Fatalf("expected %s, got %s", override, got)
	}
}

func TestResolveUsesCachedReleaseWithoutInstall(t *testing.T) {
	runner := &fakeRunner{}
	var notices []UpdateNotice
	r, layout := newTestResolver(t, runner, func(o *Options) {
		o.Notifier = NotifierFunc(func(n UpdateNotice) { notices = append(notices, n) })
	})
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected release binary, got %s", got)
	}
	if runner.callCount("git clone") != 0 || runner.callCount("cargo build") != 0 {
		t.Fatalf("expected no clone or build, got %v", runner.calls)
	}
	if len(notices) != 0 {
		t.Fatalf("expected no update notice for matching versions, got %v", notices)
	}
}

func TestResolveProbeOrderPrefersBinDir(t *testing.T) {
	runner := &fakeRunner{pathVersion: "ferrous-owl 0.3.1"}
	r, layout := newTestResolver(t, runner, nil)
	if err := writeFakeBinary(layout.SymlinkPath(), "0.3.1"); err != nil {
		t.Fatal(err)
	}
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.SymlinkPath() {
		t.Fatalf("expected bin dir binary, got %s", got)
	}
	if runner.callCount(layout.ReleaseBinary()) != 0 || runner.callCount(paths.ServerName+" ") != 0 {
		t.Fatalf("later candidates must not run once one is valid: %v", runner.calls)
	}
}

func TestResolveFallsBackToPath(t *testing.T) {
	runner := &fakeRunner{pathVersion: "ferrous-owl 0.3.1"}
	r, _ := newTestResolver(t, runner, nil)

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != paths.ServerName {
		t.Fatalf("expected bare command name, got %s", got)
	}
}

func TestResolveDevModeUsesExistingDebugBinary(t *testing.T) {
	runner := &fakeRunner{}
	project := filepath.Join(t.TempDir(), "ferrous-owl")
	r, layout := newTestResolver(t, runner, func(o *Options) {
		o.Mode = ModeDevelopment
		o.ExtensionPath = filepath.Join(project, "editors", "vscode")
	})
	dev := paths.DevBinary(project)
	if err := writeFakeBinary(dev, "0.3.1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != dev {
		t.Fatalf("expected dev binary %s, got %s", dev, got)
	}
	for _, dir := range []string{layout.CacheDir, layout.BinDir} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("expected %s to stay absent, stat err=%v", dir, err)
		}
	}
}

func TestResolveDevModeBuildsDebugBinary(t *testing.T) {
	runner := &fakeRunner{}
	events := &eventLog{}
	project := filepath.Join(t.TempDir(), "ferrous-owl")
	r, _ := newTestResolver(t, runner, func(o *Options) {
		o.Mode = ModeDevelopment
		o.ExtensionPath = filepath.Join(project, "editors", "vscode")
		o.Reporter = events
	})

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != paths.DevBinary(project) {
		t.Fatalf("expected freshly built dev binary, got %s", got)
	}
	if runner.callCount("cargo build --release") != 0 {
		t.Fatalf("dev mode must not run a release build: %v", runner.calls)
	}
	progress := events.find(StageDevBuild, EventProgress)
	if len(progress) != 2 {
		t.Fatalf("expected 2 compile progress events, got %v", progress)
	}
	if !strings.Contains(progress[1].Message, "Compiling ferrous-owl") {
		t.Fatalf("unexpected progress message %q", progress[1].Message)
	}
}

func TestResolveDevBuildFailureFallsThrough(t *testing.T) {
	runner := &fakeRunner{failDevBuild: true}
	project := filepath.Join(t.TempDir(), "ferrous-owl")
	r, layout := newTestResolver(t, runner, func(o *Options) {
		o.Mode = ModeDevelopment
		o.ExtensionPath = filepath.Join(project, "editors", "vscode")
	})
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected fallback to release binary, got %s", got)
	}
}

func TestResolveInstallClonesAndBuilds(t *testing.T) {
	runner := &fakeRunner{}
	events := &eventLog{}
	r, layout := newTestResolver(t, runner, func(o *Options) { o.Reporter = events })
	if err := os.MkdirAll(layout.BinDir, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected release binary path, got %s", got)
	}
	if runner.callCount("git clone --depth 1 https://example.com/ferrous-owl.git "+layout.CacheDir) != 1 {
		t.Fatalf("expected one shallow clone, got %v", runner.calls)
	}
	if runner.callCount("cargo build --release --locked") != 1 {
		t.Fatalf("expected one release build, got %v", runner.calls)
	}

	r.Wait()
	target, err := os.Readlink(layout.SymlinkPath())
	if err != nil {
		t.Fatalf("expected symlink: %v", err)
	}
	if target != layout.ReleaseBinary() {
		t.Fatalf("symlink points to %s", target)
	}
	if len(events.find(StageBuild, EventProgress)) == 0 {
		t.Fatal("expected build progress events")
	}

	manifest, err := r.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if manifest.Current == nil || manifest.Current.Method != MethodSourceBuild {
		t.Fatalf("expected source-build record, got %+v", manifest.Current)
	}
	if manifest.Current.Checksum == "" {
		t.Fatal("expected checksum in record")
	}
	if _, err := os.Stat(layout.LockFile()); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, stat err=%v", err)
	}
}

func TestResolveReclonesNonGitCacheDir(t *testing.T) {
	runner := &fakeRunner{}
	r, layout := newTestResolver(t, runner, nil)
	junk := filepath.Join(layout.CacheDir, "leftover.txt")
	if err := os.MkdirAll(layout.CacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(junk, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if runner.callCount("git pull") != 0 {
		t.Fatalf("pull must not run outside a checkout: %v", runner.calls)
	}
	if runner.callCount("git clone") != 1 {
		t.Fatalf("expected clone, got %v", runner.calls)
	}
	if _, err := os.Stat(junk); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir to be replaced, stat err=%v", err)
	}
}

func TestResolveExistingCheckoutPulls(t *testing.T) {
	runner := &fakeRunner{}
	r, layout := newTestResolver(t, runner, nil)
	if err := os.MkdirAll(layout.GitDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if runner.callCount("git pull --ff-only") != 1 {
		t.Fatalf("expected fast-forward pull, got %v", runner.calls)
	}
	if runner.callCount("git clone") != 0 {
		t.Fatalf("expected no clone after a good pull, got %v", runner.calls)
	}
}

func TestResolvePullFailureReclones(t *testing.T) {
	runner := &fakeRunner{failPull: true}
	r, layout := newTestResolver(t, runner, nil)
	if err := os.MkdirAll(layout.GitDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("unexpected path %s", got)
	}
	if runner.callCount("git pull") != 1 || runner.callCount("git clone") != 1 {
		t.Fatalf("expected pull then clone, got %v", runner.calls)
	}
}

func TestResolveMissingToolchain(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"cargo": true}}
	r, layout := newTestResolver(t, runner, nil)

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrToolchainMissing) {
		t.Fatalf("expected ErrToolchainMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "cargo") {
		t.Fatalf("expected missing tool named, got %v", err)
	}
	if runner.callCount("git clone") != 0 {
		t.Fatalf("expected no clone, got %v", runner.calls)
	}
	if _, err := os.Stat(layout.CacheDir); !os.IsNotExist(err) {
		t.Fatalf("expected no cache dir, stat err=%v", err)
	}
}

func TestResolveBuildFailureReturnsInstallError(t *testing.T) {
	runner := &fakeRunner{failBuild: true}
	r, layout := newTestResolver(t, runner, nil)

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	var installErr *InstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("expected *InstallError, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{
		"git clone https://example.com/ferrous-owl.git " + layout.CacheDir,
		"cd " + layout.CacheDir + " && cargo build --release --locked",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error:\n%s", want, msg)
		}
	}
	if runner.callCount("cargo build --release") != 1 {
		t.Fatalf("build must not be retried: %v", runner.calls)
	}
}

func TestResolveSymlinkFailureKeepsReleasePath(t *testing.T) {
	runner := &fakeRunner{}
	events := &eventLog{}
	r, layout := newTestResolver(t, runner, func(o *Options) { o.Reporter = events })

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected release path, got %s", got)
	}
	r.Wait()
	if _, err := os.Lstat(layout.SymlinkPath()); !os.IsNotExist(err) {
		t.Fatalf("expected no symlink without a bin dir, err=%v", err)
	}
	if len(events.find(StageSymlink, EventFailed)) != 1 {
		t.Fatal("expected a failed symlink event")
	}
}

func TestResolveVersionMismatchNotifiesOnly(t *testing.T) {
	runner := &fakeRunner{}
	var notices []UpdateNotice
	r, layout := newTestResolver(t, runner, func(o *Options) {
		o.Notifier = NotifierFunc(func(n UpdateNotice) { notices = append(notices, n) })
	})
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.2.0"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected existing binary, got %s", got)
	}
	if len(notices) != 1 {
		t.Fatalf("expected one notice, got %v", notices)
	}
	if notices[0].Expected != "0.3.1" || !strings.Contains(notices[0].Current, "0.2.0") {
		t.Fatalf("unexpected notice %+v", notices[0])
	}
	if runner.callCount("cargo build") != 0 {
		t.Fatalf("mismatch must not trigger a rebuild: %v", runner.calls)
	}
}

func TestResolveSkipToolchainSetup(t *testing.T) {
	runner := &fakeRunner{}
	project := filepath.Join(t.TempDir(), "ferrous-owl")
	r, _ := newTestResolver(t, runner, func(o *Options) {
		o.SkipToolchainSetup = true
		o.Mode = ModeDevelopment
		o.ExtensionPath = filepath.Join(project, "editors", "vscode")
	})

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrToolchainSetupSkipped) {
		t.Fatalf("expected ErrToolchainSetupSkipped, got %v", err)
	}
	if !strings.Contains(err.Error(), "cargo build --release --locked") {
		t.Fatalf("expected manual instructions, got %v", err)
	}
	if n := runner.callCount("git") + runner.callCount("cargo"); n != 0 {
		t.Fatalf("expected no toolchain calls, got %v", runner.calls)
	}
}

func TestUpdateForcesRebuild(t *testing.T) {
	runner := &fakeRunner{buildVersion: "0.3.1"}
	r, layout := newTestResolver(t, runner, nil)
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.2.0"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.GitDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := r.Update(context.Background())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != layout.ReleaseBinary() {
		t.Fatalf("unexpected path %s", got)
	}
	if runner.callCount("cargo build --release --locked") != 1 {
		t.Fatalf("expected rebuild, got %v", runner.calls)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "0.3.1") {
		t.Fatalf("expected rebuilt binary, got %q", data)
	}
}

func TestResolveConcurrentCallsShareInstall(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := newTestResolver(t, runner, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Resolve: %v", err)
	}
	if n := runner.callCount("git clone"); n != 1 {
		t.Fatalf("expected a single clone, got %d", n)
	}
}

func TestInstallLockWaitsForRelease(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "install.lock")
	if err := os.WriteFile(lock, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := acquireInstallLock(ctx, lock, noopLogger{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation while lock is held, got %v", err)
	}

	if err := os.Remove(lock); err != nil {
		t.Fatal(err)
	}
	unlock, err := acquireInstallLock(context.Background(), lock, noopLogger{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	unlock()
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Fatalf("expected lock removed, err=%v", err)
	}
}

// exitedPID returns the PID of a process that has already been reaped.
func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run helper process: %v", err)
	}
	return cmd.ProcessState.Pid()
}

func TestStaleLock(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		content string
		age     time.Duration
		stale   bool
	}{
		{"live owner", strconv.Itoa(os.Getpid()), 0, false},
		{"dead owner", strconv.Itoa(exitedPID(t)), 0, true},
		{"live owner past max age", strconv.Itoa(os.Getpid()), lockMaxAge + time.Minute, true},
		{"owner not yet written", "", 0, false},
		{"owner never written", "", lockWriteGrace + time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := filepath.Join(t.TempDir(), "install.lock")
			if err := os.WriteFile(lock, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			mtime := now.Add(-tt.age)
			if err := os.Chtimes(lock, mtime, mtime); err != nil {
				t.Fatal(err)
			}
			reason := staleLock(lock, now)
			if (reason != "") != tt.stale {
				t.Fatalf("expected stale=%v, got reason %q", tt.stale, reason)
			}
		})
	}
}

func TestResolveTakesOverAbandonedLock(t *testing.T) {
	runner := &fakeRunner{}
	r, layout := newTestResolver(t, runner, nil)
	if err := os.MkdirAll(layout.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.LockFile(), []byte(strconv.Itoa(exitedPID(t))+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	r.Wait()
	if got != layout.ReleaseBinary() {
		t.Fatalf("expected %s, got %s", layout.ReleaseBinary(), got)
	}
	if n := runner.callCount("git clone"); n != 1 {
		t.Fatalf("expected one clone, got %d", n)
	}
	if _, err := os.Stat(layout.LockFile()); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, err=%v", err)
	}
}

func TestCleanTakesOverExpiredLock(t *testing.T) {
	r, layout := newTestResolver(t, &fakeRunner{}, nil)
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.LockFile(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-lockMaxAge - time.Hour)
	if err := os.Chtimes(layout.LockFile(), old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.Clean(ctx, CleanOptions{Source: true}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(layout.CacheDir); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir removed, err=%v", err)
	}
}

func TestDetectReportsEveryCandidate(t *testing.T) {
	runner := &fakeRunner{}
	r, layout := newTestResolver(t, runner, func(o *Options) { o.ServerPath = "/does/not/exist" })
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	got := r.Detect(context.Background())
	wantSources := []Source{SourceOverride, SourceBinDir, SourceReleaseCache, SourcePath}
	if len(got) != len(wantSources) {
		t.Fatalf("expected %d candidates, got %+v", len(wantSources), got)
	}
	for i, c := range got {
		if c.Source != wantSources[i] {
			t.Errorf("candidate %d: expected %s, got %s", i, wantSources[i], c.Source)
		}
		wantValid := c.Source == SourceReleaseCache
		if c.Valid != wantValid {
			t.Errorf("%s: expected valid=%v, got %+v", c.Source, wantValid, c)
		}
		if c.Missing == wantValid {
			t.Errorf("%s: expected missing=%v, got %+v", c.Source, !wantValid, c)
		}
	}
	if runner.callCount("cargo") != 0 {
		t.Fatalf("Detect must not build: %v", runner.calls)
	}
}

func TestCleanRemovesSourceTree(t *testing.T) {
	r, layout := newTestResolver(t, &fakeRunner{}, nil)
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.LogsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(layout.LogsDir, "20260101-000000-resolve.log")
	if err := os.WriteFile(logFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Clean(context.Background(), CleanOptions{Source: true}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(layout.CacheDir); !os.IsNotExist(err) {
		t.Fatalf("expected cache dir removed, err=%v", err)
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Fatalf("logs must survive a source clean: %v", err)
	}
	if _, err := os.Stat(layout.LockFile()); !os.IsNotExist(err) {
		t.Fatalf("expected lock released, err=%v", err)
	}
}

func TestCleanSourceRemovesLinkIntoTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r, layout := newTestResolver(t, &fakeRunner{}, nil)
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.BinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(layout.ReleaseBinary(), layout.SymlinkPath()); err != nil {
		t.Fatal(err)
	}

	removed, err := r.Clean(context.Background(), CleanOptions{Source: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if diff := cmp.Diff([]string{layout.CacheDir, layout.SymlinkPath()}, removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Lstat(layout.SymlinkPath()); !os.IsNotExist(err) {
		t.Fatalf("expected link removed, err=%v", err)
	}
}

func TestCleanSourceKeepsForeignLink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r, layout := newTestResolver(t, &fakeRunner{}, nil)
	other := filepath.Join(t.TempDir(), "ferrous-owl")
	if err := writeFakeBinary(other, "0.3.1"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.BinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(other, layout.SymlinkPath()); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Clean(context.Background(), CleanOptions{Source: true}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Lstat(layout.SymlinkPath()); err != nil {
		t.Fatalf("link to another binary must survive: %v", err)
	}
}

func TestCleanLogsKeepsOtherFiles(t *testing.T) {
	r, layout := newTestResolver(t, &fakeRunner{}, nil)
	if err := os.MkdirAll(layout.LogsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(layout.LogsDir, "20260101-000000-update.log")
	notes := filepath.Join(layout.LogsDir, "README")
	for _, p := range []string{logFile, notes} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFakeBinary(layout.ReleaseBinary(), "0.3.1"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Clean(context.Background(), CleanOptions{Logs: true}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Fatalf("expected log removed, err=%v", err)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Fatalf("non-log file removed: %v", err)
	}
	if _, err := os.Stat(layout.ReleaseBinary()); err != nil {
		t.Fatalf("source tree must survive a logs clean: %v", err)
	}
}

func TestToolchainReportsEachTool(t *testing.T) {
	runner := &fakeRunner{missing: map[string]bool{"git": true}}
	r, _ := newTestResolver(t, runner, nil)

	got := r.Toolchain(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected two tools, got %+v", got)
	}
	if got[0].Tool != "cargo" || got[0].Version != "cargo 1.80.0" || got[0].Error != "" {
		t.Fatalf("unexpected cargo status %+v", got[0])
	}
	if got[1].Tool != "git" || got[1].Error == "" {
		t.Fatalf("expected git failure, got %+v", got[1])
	}
}
