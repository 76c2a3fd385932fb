package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 150 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "watch FILE LINE COL",
		Short: "Re-render decorations at a position every time FILE is saved",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseCursorArgs(args)
			if err != nil {
				return err
			}
			s, err := loadSettings(cmd, "watch", true)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := interruptContext(cmd)
			defer stop()

			ss, err := openSession(ctx, cmd, s, target, wait)
			if err != nil {
				return err
			}
			defer ss.Close()

			return ss.watch(ctx, cmd, s)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultAnalysisWait, "How long to re-query while the server is still analyzing")
	return cmd
}

// watch renders once, then again after every save of the target file until
// ctx is cancelled or the server exits. Editors that save by renaming a
// temp file over the original are covered by watching the directory.
func (ss *session) watch(ctx context.Context, cmd *cobra.Command, s *settings) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(ss.target.file)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(ss.target.file), err)
	}

	if err := ss.refresh(ctx, cmd); err != nil {
		return err
	}

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ss.srv.Client.DisconnectNotify():
			return ss.srv.Lost()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != ss.target.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Printf("watcher error: %v", err)
		case <-fire:
			fire = nil
			if err := ss.reload(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				continue
			}
			if err := ss.refresh(ctx, cmd); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// reload sends the saved contents to the server the way an editor does on
// save: a full-text change followed by didSave.
func (ss *session) reload(ctx context.Context) error {
	body, err := os.ReadFile(ss.target.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", ss.target.file, err)
	}
	ss.body = body
	if err := ss.srv.Client.DidChange(ctx, ss.target.file, body); err != nil {
		return err
	}
	return ss.srv.Client.DidSave(ctx, ss.target.file)
}

func (ss *session) refresh(ctx context.Context, cmd *cobra.Command) error {
	status := newStatus(cmd, "Querying decorations")
	resp, err := ss.query(ctx, status)
	status.Stop()
	if err != nil {
		return err
	}
	if !outputJSON {
		fmt.Fprintf(cmd.OutOrStdout(), "\n-- %s --\n", time.Now().Format("15:04:05"))
	}
	return ss.render(cmd.OutOrStdout(), resp)
}
