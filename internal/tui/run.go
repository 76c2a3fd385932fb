package tui

import (
	"context"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork runs the progress program while workFn executes in a goroutine.
// Quitting the program cancels the context handed to workFn, and RunWithWork
// returns only after workFn has returned.
func RunWithWork(ctx context.Context, out io.Writer, model ProgressModel, workFn func(ctx context.Context, send func(tea.Msg)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))
	workDone := make(chan error, 1)

	go func() {
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)

		err := workFn(ctx, p.Send)
		if err != nil {
			p.Send(ErrorMsg{Err: err})
		} else {
			p.Send(WorkDoneMsg{})
		}
		workDone <- err
	}()

	finalModel, runErr := p.Run()
	cancel()
	workErr := <-workDone

	if m, ok := finalModel.(ProgressModel); ok && m.Err() != nil {
		return m.Err()
	}
	if workErr != nil {
		return workErr
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
