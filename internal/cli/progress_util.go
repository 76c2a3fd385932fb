package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/tui"
)

// noticeLog collects update offers so they can be printed once the progress
// display is gone.
type noticeLog struct {
	mu      sync.Mutex
	notices []bootstrap.UpdateNotice
}

func (n *noticeLog) UpdateAvailable(u bootstrap.UpdateNotice) {
	n.mu.Lock()
	n.notices = append(n.notices, u)
	n.mu.Unlock()
}

func (n *noticeLog) list() []bootstrap.UpdateNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bootstrap.UpdateNotice(nil), n.notices...)
}

type resolution struct {
	Path    string                   `json:"path"`
	Notices []bootstrap.UpdateNotice `json:"updates,omitempty"`
}

type resolveFunc func(ctx context.Context, r *bootstrap.Resolver) (string, error)

// runResolution builds a resolver wired to the output mode of the command and
// runs fn with it. Background work is joined before returning.
func runResolution(ctx context.Context, cmd *cobra.Command, s *settings, title string, mutate func(*bootstrap.Options), fn resolveFunc) (resolution, error) {
	notices := &noticeLog{}
	opts := s.resolverOptions()
	opts.Notifier = notices
	if mutate != nil {
		mutate(&opts)
	}

	errOut := cmd.ErrOrStderr()
	var (
		path string
		err  error
	)
	switch tui.DetectMode(errOut, noProgress, outputJSON) {
	case tui.ModeTUI:
		model := tui.NewProgressModel(title, bootstrap.Stages())
		err = tui.RunWithWork(ctx, errOut, model, func(ctx context.Context, send func(tea.Msg)) error {
			opts.Reporter = tui.NewProgramReporter(send)
			r := bootstrap.New(opts)
			p, err := fn(ctx, r)
			r.Wait()
			path = p
			return err
		})
	case tui.ModePlain:
		opts.Reporter = tui.NewPlainReporter(errOut, verbose)
		r := bootstrap.New(opts)
		path, err = fn(ctx, r)
		r.Wait()
	default:
		r := bootstrap.New(opts)
		path, err = fn(ctx, r)
		r.Wait()
	}

	res := resolution{Path: path, Notices: notices.list()}
	if !outputJSON {
		for _, n := range res.Notices {
			fmt.Fprintln(errOut, tui.StatusStyle("outdated").Render("update available:")+" "+updateHint(n))
		}
	}
	return res, err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// interruptContext is cancelled on Ctrl-C or SIGTERM so deferred cleanup,
// such as releasing the install lock, runs before the process exits.
func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}
