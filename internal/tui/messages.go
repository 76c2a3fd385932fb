package tui

import "ferrousowl/internal/bootstrap"

// EventMsg carries a resolver event into the program.
type EventMsg bootstrap.Event

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
