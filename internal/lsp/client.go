// Package lsp drives a ferrous-owl server over the Language Server Protocol
// and turns its cursor responses into decorations.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	protocol "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
)

// DefaultCursorMethod is the custom request answered with decorations.
const DefaultCursorMethod = "ferrous-owl/cursor"

type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Options configures a client session.
type Options struct {
	CursorMethod string
	LanguageID   string
	Logger       Logger
	// OnDiagnostics is called from the connection's read loop for every
	// publishDiagnostics notification and must not block.
	OnDiagnostics func(protocol.DocumentURI, []protocol.Diagnostic)
}

// ToURI converts a filename to a file URI.
func ToURI(filename string) protocol.DocumentURI {
	p := filepath.ToSlash(filename)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return protocol.DocumentURI("file://" + p)
}

// ToPath converts a file URI back to a filename.
func ToPath(uri protocol.DocumentURI) string {
	p := strings.TrimPrefix(string(uri), "file://")
	if filepath.Separator != '/' {
		p = strings.TrimPrefix(p, "/")
	}
	return filepath.FromSlash(p)
}

// Client is an initialized LSP session.
type Client struct {
	rpc  *jsonrpc2.Conn
	opts Options

	mu          sync.Mutex
	diagnostics map[protocol.DocumentURI][]protocol.Diagnostic
	versions    map[protocol.DocumentURI]int
}

// NewClient speaks LSP over conn and runs the initialize handshake.
func NewClient(ctx context.Context, conn io.ReadWriteCloser, rootDir string, opts Options) (*Client, error) {
	if opts.CursorMethod == "" {
		opts.CursorMethod = DefaultCursorMethod
	}
	if opts.LanguageID == "" {
		opts.LanguageID = "rust"
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:        opts,
		diagnostics: make(map[protocol.DocumentURI][]protocol.Diagnostic),
		versions:    make(map[protocol.DocumentURI]int),
	}
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	c.rpc = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(c.handle))

	initp := &protocol.InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   ToURI(root),
	}
	var initr protocol.InitializeResult
	if err := c.rpc.Call(ctx, "initialize", initp, &initr); err != nil {
		c.rpc.Close()
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	if err := c.rpc.Notify(ctx, "initialized", struct{}{}); err != nil {
		c.rpc.Close()
		return nil, fmt.Errorf("initialized notification: %w", err)
	}
	return c, nil
}

func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "textDocument/publishDiagnostics":
		var params protocol.PublishDiagnosticsParams
		if err := unmarshalParams(req, &params); err != nil {
			c.opts.Logger.Printf("diagnostics unmarshal failed: %v", err)
			return nil, nil
		}
		c.mu.Lock()
		c.diagnostics[params.URI] = params.Diagnostics
		c.mu.Unlock()
		if c.opts.OnDiagnostics != nil {
			c.opts.OnDiagnostics(params.URI, params.Diagnostics)
		}
		return nil, nil
	case "window/showMessage":
		var params protocol.ShowMessageParams
		if err := unmarshalParams(req, &params); err != nil {
			c.opts.Logger.Printf("window/showMessage unmarshal failed: %v", err)
			return nil, nil
		}
		c.opts.Logger.Printf("server %s: %s", messageLevel(int(params.Type)), params.Message)
		return nil, nil
	case "window/logMessage":
		var params protocol.LogMessageParams
		if err := unmarshalParams(req, &params); err != nil {
			c.opts.Logger.Printf("window/logMessage unmarshal failed: %v", err)
			return nil, nil
		}
		c.opts.Logger.Printf("server %s: %s", messageLevel(int(params.Type)), params.Message)
		return nil, nil
	case "window/workDoneProgress/create", "client/registerCapability":
		return nil, nil
	}
	if strings.HasPrefix(req.Method, "$/") || req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return fmt.Errorf("%s: missing params", req.Method)
	}
	return json.Unmarshal(*req.Params, v)
}

func messageLevel(t int) string {
	switch t {
	case 1:
		return "error"
	case 2:
		return "warning"
	case 3:
		return "info"
	default:
		return "log"
	}
}

func (c *Client) nextVersion(uri protocol.DocumentURI) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[uri]++
	return c.versions[uri]
}

// DidOpen announces a document and its contents.
func (c *Client) DidOpen(ctx context.Context, filename string, body []byte) error {
	uri := ToURI(filename)
	params := &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: c.opts.LanguageID,
			Version:    c.nextVersion(uri),
			Text:       string(body),
		},
	}
	return c.rpc.Notify(ctx, "textDocument/didOpen", params)
}

// DidChange replaces the full document contents.
func (c *Client) DidChange(ctx context.Context, filename string, body []byte) error {
	uri := ToURI(filename)
	params := &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                c.nextVersion(uri),
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: string(body)}},
	}
	return c.rpc.Notify(ctx, "textDocument/didChange", params)
}

// DidSave tells the server the file on disk changed; analysis runs on save.
func (c *Client) DidSave(ctx context.Context, filename string) error {
	params := &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: ToURI(filename)},
	}
	return c.rpc.Notify(ctx, "textDocument/didSave", params)
}

func (c *Client) DidClose(ctx context.Context, filename string) error {
	uri := ToURI(filename)
	c.mu.Lock()
	delete(c.versions, uri)
	c.mu.Unlock()
	params := &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}
	return c.rpc.Notify(ctx, "textDocument/didClose", params)
}

// Cursor asks for the decorations at a zero-based position. A response that
// fails validation returns ErrInvalidResponse.
func (c *Client) Cursor(ctx context.Context, filename string, line, character int) (CursorResponse, error) {
	params := &CursorParams{
		Position: protocol.Position{Line: line, Character: character},
		Document: protocol.TextDocumentIdentifier{URI: ToURI(filename)},
	}
	var raw json.RawMessage
	if err := c.rpc.Call(ctx, c.opts.CursorMethod, params, &raw); err != nil {
		return CursorResponse{}, fmt.Errorf("%s: %w", c.opts.CursorMethod, err)
	}
	return ParseCursorResponse(raw)
}

// Diagnostics returns the last diagnostics published for uri.
func (c *Client) Diagnostics(uri protocol.DocumentURI) []protocol.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Diagnostic(nil), c.diagnostics[uri]...)
}

// Shutdown runs the shutdown request and the exit notification.
func (c *Client) Shutdown(ctx context.Context) error {
	var res json.RawMessage
	if err := c.rpc.Call(ctx, "shutdown", nil, &res); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := c.rpc.Notify(ctx, "exit", nil); err != nil {
		return fmt.Errorf("exit: %w", err)
	}
	return nil
}

// DisconnectNotify is closed when the connection goes away.
func (c *Client) DisconnectNotify() <-chan struct{} {
	return c.rpc.DisconnectNotify()
}

func (c *Client) Close() error {
	return c.rpc.Close()
}
