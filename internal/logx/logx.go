package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"ferrousowl/internal/paths"
)

// New creates a logger that writes to a timestamped file inside the layout's
// logs directory. When echo is non-nil every line is also written there. The
// returned closer should be closed when logging is no longer needed.
func New(l paths.Layout, name string, echo io.Writer) (*log.Logger, io.Closer, error) {
	if err := l.EnsureStateDirs(); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + "-" + name + ".log"
	filePath := filepath.Join(l.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if echo != nil {
		out = io.MultiWriter(file, echo)
	}
	logger := log.New(out, "", log.LstdFlags|log.Lmicroseconds)
	return logger, file, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
