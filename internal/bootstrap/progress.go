package bootstrap

import (
	"bytes"
	"strings"
	"sync"
)

// Stage names one phase of resolution or install.
type Stage string

const (
	StageDevBuild  Stage = "dev-build"
	StageToolchain Stage = "toolchain"
	StageDownload  Stage = "download"
	StageSource    Stage = "source"
	StageBuild     Stage = "build"
	StageVerify    Stage = "verify"
	StageSymlink   Stage = "symlink"
)

// Stages lists every stage in the order an install walks through them.
func Stages() []Stage {
	return []Stage{StageDevBuild, StageToolchain, StageDownload, StageSource, StageBuild, StageVerify, StageSymlink}
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a discrete lifecycle notification for a UI layer.
type Event struct {
	Stage   Stage
	Kind    EventKind
	Message string
}

// Reporter receives lifecycle events. Reports are advisory and may arrive
// from the background symlink goroutine after Resolve has returned.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type noopReporter struct{}

func (noopReporter) Report(Event) {}

// progressWriter splits streamed build output into lines and forwards the
// ones that announce a crate compile as progress events.
type progressWriter struct {
	mu       sync.Mutex
	stage    Stage
	reporter Reporter
	buf      bytes.Buffer
}

func newProgressWriter(stage Stage, reporter Reporter) *progressWriter {
	return &progressWriter{stage: stage, reporter: reporter}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexAny(data, "\r\n")
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		w.buf.Next(idx + 1)
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits a trailing line that had no terminator.
func (w *progressWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *progressWriter) emit(line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.Contains(line, "Compiling") {
		return
	}
	w.reporter.Report(Event{Stage: w.stage, Kind: EventProgress, Message: line})
}
