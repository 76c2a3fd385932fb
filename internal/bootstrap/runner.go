package bootstrap

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

type RunOptions struct {
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes external commands. The resolver only talks to git, cargo and
// candidate server binaries through it.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// toolEnv keeps git from blocking on a credential prompt and keeps cargo's
// stderr free of color codes so progress lines can be matched.
var toolEnv = []string{"GIT_TERMINAL_PROMPT=0", "CARGO_TERM_COLOR=never"}

// CmdRunner runs commands on the host. Stdout and stderr are always captured;
// the optional writers in RunOptions see the same bytes as they arrive.
type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(append(os.Environ(), toolEnv...), opts.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, opts.Stdout)
	cmd.Stderr = tee(&stderr, opts.Stderr)

	err := cmd.Run()
	return RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

var _ Runner = CmdRunner{}
