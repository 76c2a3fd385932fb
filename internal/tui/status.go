package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// StatusLine redraws a single spinner line in place until stopped. It covers
// waits that have no stages of their own, such as server startup or analysis.
type StatusLine struct {
	w     io.Writer
	mu    sync.Mutex
	text  string
	since time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewStatusLine starts drawing text to w.
func NewStatusLine(w io.Writer, text string) *StatusLine {
	s := &StatusLine{w: w, text: text, since: time.Now(), stop: make(chan struct{})}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Set replaces the text and restarts the elapsed timer.
func (s *StatusLine) Set(text string) {
	s.mu.Lock()
	s.text = text
	s.since = time.Now()
	s.mu.Unlock()
}

// Stop clears the line. It is safe to call more than once.
func (s *StatusLine) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		fmt.Fprint(s.w, "\r\033[K")
	})
}

func (s *StatusLine) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(spinner.MiniDot.FPS)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			text, since := s.text, s.since
			s.mu.Unlock()
			fmt.Fprintf(s.w, "\r\033[K%s %s (%s)", spinnerFrames[frame%len(spinnerFrames)], text, formatElapsed(time.Since(since)))
			frame++
		}
	}
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
