package config

import (
	"fmt"
	"os"
	"regexp"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Validate reports problems with the configuration. Findings never stop the
// resolver; an unusable serverPath is reported again, as a hard error, when
// resolution validates it.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateServerPath()...)
	results = append(results, c.validateDecorations()...)
	return results
}

func (c Config) validateServerPath() []ValidationResult {
	if c.ServerPath == "" {
		return nil
	}
	info, err := os.Stat(c.ServerPath)
	if err != nil {
		// A bare command name is allowed; only flag paths that look like paths.
		if os.IsNotExist(err) && !containsSeparator(c.ServerPath) {
			return nil
		}
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("serverPath %q: %v", c.ServerPath, err),
		}}
	}
	if info.IsDir() {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("serverPath %q is a directory", c.ServerPath),
		}}
	}
	return nil
}

func (c Config) validateDecorations() []ValidationResult {
	var results []ValidationResult
	d := c.Decorations
	if d.UnderlineThickness < 0 || d.UnderlineThickness > 10 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("underlineThickness %d outside 0-10", d.UnderlineThickness),
		})
	}
	colors := []struct {
		key   string
		value string
	}{
		{"lifetimeColor", d.LifetimeColor},
		{"moveCallColor", d.MoveCallColor},
		{"immutableBorrowColor", d.ImmutableBorrowColor},
		{"mutableBorrowColor", d.MutableBorrowColor},
		{"outliveColor", d.OutliveColor},
	}
	for _, col := range colors {
		if col.value == "" || hexColorPattern.MatchString(col.value) {
			continue
		}
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("%s %q is not a hex color; terminal rendering falls back to no color", col.key, col.value),
		})
	}
	return results
}

func containsSeparator(p string) bool {
	for _, r := range p {
		if r == '/' || r == os.PathSeparator {
			return true
		}
	}
	return false
}
