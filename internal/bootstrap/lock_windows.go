//go:build windows

package bootstrap

import "os"

// FindProcess opens a handle and fails when no such process exists.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
