package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolchainMissing means cargo or git is not runnable.
	ErrToolchainMissing = errors.New("ferrous-owl requires cargo and git; install Rust via rustup.rs and ensure git is available")
	// ErrInvalidServerPath means the configured serverPath failed its version query.
	ErrInvalidServerPath = errors.New("invalid serverPath")
	// ErrInstallFailed marks the terminal failure after clone and build were exhausted.
	ErrInstallFailed = errors.New("failed to install ferrous-owl")
	// ErrToolchainSetupSkipped means no binary was found and skipToolchainSetup forbids building one.
	ErrToolchainSetupSkipped = errors.New("no ferrous-owl binary found and toolchain setup is skipped")
)

// InstallError carries the manual recovery commands for a failed install.
type InstallError struct {
	Cause        error
	Instructions []string
}

func (e *InstallError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInstallFailed.Error())
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Instructions) > 0 {
		b.WriteString("\nPlease install manually:")
		for _, line := range e.Instructions {
			b.WriteString("\n  ")
			b.WriteString(line)
		}
	}
	return b.String()
}

func (e *InstallError) Unwrap() error { return e.Cause }

func (e *InstallError) Is(target error) bool { return target == ErrInstallFailed }
