package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

const exitTimeout = 3 * time.Second

// Server is a running server process with a connected client.
type Server struct {
	cmd     *exec.Cmd
	conn    io.ReadWriteCloser
	exited  chan struct{}
	waitErr error

	Client *Client
}

// stdioConn joins the parent ends of the server's stdin and stdout.
type stdioConn struct {
	r *os.File
	w *os.File
}

func (c stdioConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c stdioConn) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c stdioConn) Close() error {
	return errors.Join(c.w.Close(), c.r.Close())
}

// Start launches command with its stdin and stdout connected to the client
// and initializes an LSP session rooted at rootDir. Server stderr goes to
// stderr when non-nil. Once the process exits, reads see EOF and the
// connection drops.
func Start(ctx context.Context, command string, args []string, rootDir string, stderr io.Writer, opts Options) (*Server, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = rootDir
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = stderr
	cmd.WaitDelay = exitTimeout
	err = cmd.Start()
	// The child holds its own copies of these.
	inR.Close()
	outW.Close()
	conn := stdioConn{r: outR, w: inW}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to execute language server: %w", err)
	}

	s := &Server{cmd: cmd, conn: conn, exited: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	client, err := NewClient(ctx, conn, rootDir, opts)
	if err != nil {
		_ = cmd.Process.Kill()
		conn.Close()
		<-s.exited
		return nil, fmt.Errorf("failed to connect to language server %q: %w", command, err)
	}
	s.Client = client
	return s, nil
}

// Exited is closed once the process has been reaped.
func (s *Server) Exited() <-chan struct{} {
	return s.exited
}

// Err is the process exit error. It is only meaningful after Exited closes.
func (s *Server) Err() error {
	<-s.exited
	return s.waitErr
}

// Lost reports why the session is gone, or nil while the server is still
// connected. A dropped connection is followed by the exit status when the
// process has already been reaped.
func (s *Server) Lost() error {
	select {
	case <-s.Exited():
		return fmt.Errorf("ferrous-owl exited: %v", s.Err())
	case <-s.Client.DisconnectNotify():
	default:
		return nil
	}
	select {
	case <-s.Exited():
		return fmt.Errorf("ferrous-owl exited: %v", s.Err())
	case <-time.After(exitTimeout):
		return errors.New("ferrous-owl closed the connection")
	}
}

// Close shuts the session down and waits for the process, killing it when it
// does not exit on its own.
func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var err error
	select {
	case <-s.Client.DisconnectNotify():
	default:
		shutdownCtx, cancel := context.WithTimeout(ctx, exitTimeout)
		err = s.Client.Shutdown(shutdownCtx)
		cancel()
	}
	_ = s.Client.Close()
	_ = s.conn.Close()

	select {
	case <-s.exited:
	case <-time.After(exitTimeout):
		_ = s.cmd.Process.Kill()
		<-s.exited
	}
	return err
}
