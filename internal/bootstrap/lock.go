package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockPollInterval = 100 * time.Millisecond
	// A lock without a readable owner is given this long to have its PID
	// written before it counts as abandoned.
	lockWriteGrace = 10 * time.Second
	// No clone and build holds the lock longer than this.
	lockMaxAge = 2 * time.Hour
)

// acquireInstallLock creates lockPath exclusively and records the owner's PID.
// A lock whose owner is no longer running, or which has outlived lockMaxAge,
// is taken over.
func acquireInstallLock(ctx context.Context, lockPath string, logger Logger) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}

		if reason := staleLock(lockPath, time.Now()); reason != "" {
			logger.Printf("removing stale install lock %s: %s", lockPath, reason)
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove stale lock: %w", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// staleLock returns why the lock at path is abandoned, or "" while it is held.
func staleLock(path string, now time.Time) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	age := now.Sub(info.ModTime())
	if age > lockMaxAge {
		return fmt.Sprintf("older than %s", lockMaxAge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		if age > lockWriteGrace {
			return "no owner recorded"
		}
		return ""
	}
	if pid != os.Getpid() && !processAlive(pid) {
		return fmt.Sprintf("owner %d is not running", pid)
	}
	return ""
}
