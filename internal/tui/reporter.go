package tui

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"ferrousowl/internal/bootstrap"
)

// ProgramReporter forwards resolver events into a running program.
type ProgramReporter struct {
	send func(tea.Msg)
}

func NewProgramReporter(send func(tea.Msg)) *ProgramReporter {
	return &ProgramReporter{send: send}
}

func (r *ProgramReporter) Report(e bootstrap.Event) {
	r.send(EventMsg(e))
}

// PlainReporter writes one line per event for non-interactive output.
// Compile progress lines are only written when Verbose is set.
type PlainReporter struct {
	mu      sync.Mutex
	w       io.Writer
	Verbose bool
}

func NewPlainReporter(w io.Writer, verbose bool) *PlainReporter {
	return &PlainReporter{w: w, Verbose: verbose}
}

func (r *PlainReporter) Report(e bootstrap.Event) {
	if e.Kind == bootstrap.EventProgress && !r.Verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Message == "" {
		fmt.Fprintf(r.w, "[%s] %s\n", e.Stage, statusFor(e.Kind))
		return
	}
	fmt.Fprintf(r.w, "[%s] %s: %s\n", e.Stage, statusFor(e.Kind), e.Message)
}

var (
	_ bootstrap.Reporter = (*ProgramReporter)(nil)
	_ bootstrap.Reporter = (*PlainReporter)(nil)
)
