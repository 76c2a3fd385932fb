package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ferrousowl/internal/bootstrap"
	"ferrousowl/internal/config"
	"ferrousowl/internal/logx"
	"ferrousowl/internal/paths"
)

const configEnv = "OWLCTL_CONFIG"

// settings bundles what every command derives from flags, environment and
// the config file.
type settings struct {
	layout    paths.Layout
	cfg       config.Config
	cfgErr    error
	logger    *log.Logger
	logCloser io.Closer
}

// loadSettings resolves the layout and config. A non-empty logName opens a
// log file in the logs directory; verbose runs echo it to stderr. A broken
// config file is kept in cfgErr for commands that can report it, and
// returned as an error only when strict is set.
func loadSettings(cmd *cobra.Command, logName string, strict bool) (*settings, error) {
	base, err := paths.Default()
	if err != nil {
		return nil, err
	}
	layout, err := base.WithOverrides(cacheDir, binDir)
	if err != nil {
		return nil, err
	}
	layout.ConfigFile = resolveConfigPath(layout.ConfigFile)

	s := &settings{layout: layout}
	s.cfg, s.cfgErr = config.Load(layout.ConfigFile)
	if s.cfgErr != nil {
		if strict {
			return nil, s.cfgErr
		}
		s.cfg = config.Default()
	}

	if logName == "" {
		s.logger = logx.Discard()
		return s, nil
	}
	var echo io.Writer
	if verbose {
		echo = cmd.ErrOrStderr()
	}
	logger, closer, err := logx.New(layout, logName, echo)
	if err != nil {
		return nil, err
	}
	s.logger = logger
	s.logCloser = closer
	return s, nil
}

func resolveConfigPath(fallback string) string {
	if strings.TrimSpace(configPath) != "" {
		return configPath
	}
	if env := strings.TrimSpace(os.Getenv(configEnv)); env != "" {
		return env
	}
	return fallback
}

func (s *settings) Close() {
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}

// resolverOptions maps the config onto resolver options. Reporter and
// Notifier are left for the caller.
func (s *settings) resolverOptions() bootstrap.Options {
	return bootstrap.Options{
		Layout:             s.layout,
		ServerPath:         s.cfg.ServerPath,
		SkipToolchainSetup: s.cfg.SkipToolchainSetup,
		DownloadPrebuilt:   s.cfg.DownloadPrebuilt,
		ClientVersion:      clientVersion,
		Logger:             s.logger,
	}
}

func (s *settings) newResolver() *bootstrap.Resolver {
	return bootstrap.New(s.resolverOptions())
}

func updateHint(n bootstrap.UpdateNotice) string {
	return fmt.Sprintf("ferrous-owl %s at %s does not match owlctl v%s; run `owlctl update` to rebuild", n.Current, n.Path, n.Expected)
}
