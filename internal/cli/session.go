package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	protocol "github.com/sourcegraph/go-lsp"
	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/lsp"
	"ferrousowl/internal/paths"
	"ferrousowl/internal/tui"
)

const pollInterval = 250 * time.Millisecond

// cursorTarget is a file position. The command line takes 1-based lines and
// columns as editors display them; line and col here are 0-based.
type cursorTarget struct {
	file string
	line int
	col  int
}

func parseCursorArgs(args []string) (cursorTarget, error) {
	file, err := filepath.Abs(args[0])
	if err != nil {
		return cursorTarget{}, fmt.Errorf("resolve %s: %w", args[0], err)
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return cursorTarget{}, fmt.Errorf("invalid line %q: must be a positive integer", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil || col < 1 {
		return cursorTarget{}, fmt.Errorf("invalid column %q: must be a positive integer", args[2])
	}
	return cursorTarget{file: file, line: line - 1, col: col - 1}, nil
}

// findProjectRoot returns the nearest directory above file holding a
// Cargo.toml, or the file's directory.
func findProjectRoot(file string) string {
	start := filepath.Dir(file)
	for dir := start; ; {
		if ok, _ := paths.FileExists(filepath.Join(dir, "Cargo.toml")); ok {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// session is a running server with one open document.
type session struct {
	srv    *lsp.Server
	target cursorTarget
	body   []byte
	styles tui.DecorationStyles
	wait   time.Duration
}

func openSession(ctx context.Context, cmd *cobra.Command, s *settings, target cursorTarget, wait time.Duration) (*session, error) {
	body, err := os.ReadFile(target.file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target.file, err)
	}

	res, err := runResolution(ctx, cmd, s, "Resolving ferrous-owl", nil, func(ctx context.Context, r *bootstrap.Resolver) (string, error) {
		return r.Resolve(ctx)
	})
	if err != nil {
		return nil, err
	}

	status := newStatus(cmd, "Starting "+filepath.Base(res.Path))
	defer status.Stop()

	root := findProjectRoot(target.file)
	s.logger.Printf("starting %s %v in %s", res.Path, s.cfg.Server.Args, root)
	srv, err := lsp.Start(ctx, res.Path, s.cfg.Server.Args, root, s.logger.Writer(), lsp.Options{
		CursorMethod: s.cfg.Server.CursorMethod,
		LanguageID:   s.cfg.Server.LanguageID,
		Logger:       s.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := srv.Client.DidOpen(ctx, target.file, body); err != nil {
		_ = srv.Close(context.Background())
		return nil, err
	}

	return &session{
		srv:    srv,
		target: target,
		body:   body,
		styles: tui.NewDecorationStyles(s.cfg.Decorations),
		wait:   wait,
	}, nil
}

// query asks for decorations until the server stops reporting analyzing or
// the wait budget runs out. The last response is returned either way.
func (ss *session) query(ctx context.Context, status *tui.StatusLine) (lsp.CursorResponse, error) {
	deadline := time.Now().Add(ss.wait)
	for {
		resp, err := ss.srv.Client.Cursor(ctx, ss.target.file, ss.target.line, ss.target.col)
		if err != nil {
			if lost := ss.srv.Lost(); lost != nil {
				return lsp.CursorResponse{}, lost
			}
			return lsp.CursorResponse{}, err
		}
		if resp.Status != lsp.StatusAnalyzing || !time.Now().Before(deadline) {
			return resp, nil
		}
		status.Set(fmt.Sprintf("Analyzing %s", filepath.Base(ss.target.file)))

		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-ss.srv.Client.DisconnectNotify():
			return resp, ss.srv.Lost()
		case <-time.After(pollInterval):
		}
	}
}

type cursorOutput struct {
	File        string                `json:"file"`
	Line        int                   `json:"line"`
	Character   int                   `json:"character"`
	Status      lsp.Status            `json:"status"`
	IsAnalyzed  bool                  `json:"is_analyzed"`
	Decorations lsp.Decorations       `json:"decorations"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics,omitempty"`
}

func (ss *session) render(w io.Writer, resp lsp.CursorResponse) error {
	decs := lsp.Decorate(resp)
	diags := ss.srv.Client.Diagnostics(lsp.ToURI(ss.target.file))
	if outputJSON {
		data, err := json.MarshalIndent(cursorOutput{
			File:        ss.target.file,
			Line:        ss.target.line + 1,
			Character:   ss.target.col + 1,
			Status:      resp.Status,
			IsAnalyzed:  resp.IsAnalyzed,
			Decorations: decs,
			Diagnostics: diags,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode cursor json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	header := fmt.Sprintf("%s:%d:%d", ss.target.file, ss.target.line+1, ss.target.col+1)
	fmt.Fprintln(w, tui.HeaderStyle.Render(header)+"  "+tui.StatusStyle(string(resp.Status)).Render(string(resp.Status)))
	if err := tui.RenderDecorations(w, ss.body, decs, ss.styles); err != nil {
		return err
	}
	if err := tui.RenderDiagnostics(w, diags); err != nil {
		return err
	}
	if legend := tui.Legend(decs, ss.styles); legend != "" {
		fmt.Fprintln(w, legend)
	}
	return nil
}

func (ss *session) Close() error {
	ctx := context.Background()
	_ = ss.srv.Client.DidClose(ctx, ss.target.file)
	return ss.srv.Close(ctx)
}

// newStatus draws a spinner line only when the progress display would.
func newStatus(cmd *cobra.Command, text string) *tui.StatusLine {
	if tui.DetectMode(cmd.ErrOrStderr(), noProgress, outputJSON) != tui.ModeTUI {
		return tui.NewStatusLine(io.Discard, text)
	}
	return tui.NewStatusLine(cmd.ErrOrStderr(), text)
}
