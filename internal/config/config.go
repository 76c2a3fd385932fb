package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCursorMethod is the custom request the analysis server answers with
// decorations for a cursor position.
const DefaultCursorMethod = "ferrous-owl/cursor"

// Config captures user settings for the bootstrapper and the LSP client. The
// serverPath and skipToolchainSetup keys mirror the editor extension settings.
type Config struct {
	ServerPath         string            `yaml:"serverPath"`
	SkipToolchainSetup bool              `yaml:"skipToolchainSetup"`
	DownloadPrebuilt   bool              `yaml:"downloadPrebuilt"`
	Server             ServerConfig      `yaml:"server"`
	Decorations        DecorationsConfig `yaml:"decorations"`
}

// ServerConfig controls how the LSP session is launched.
type ServerConfig struct {
	Args         []string `yaml:"args,omitempty"`
	CursorMethod string   `yaml:"cursorMethod"`
	LanguageID   string   `yaml:"languageId"`
}

// DecorationsConfig holds the underline styling per decoration kind.
type DecorationsConfig struct {
	UnderlineThickness   int    `yaml:"underlineThickness"`
	LifetimeColor        string `yaml:"lifetimeColor"`
	MoveCallColor        string `yaml:"moveCallColor"`
	ImmutableBorrowColor string `yaml:"immutableBorrowColor"`
	MutableBorrowColor   string `yaml:"mutableBorrowColor"`
	OutliveColor         string `yaml:"outliveColor"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			CursorMethod: DefaultCursorMethod,
			LanguageID:   "rust",
		},
		Decorations: DecorationsConfig{
			UnderlineThickness:   2,
			LifetimeColor:        "#47eb55",
			MoveCallColor:        "#eba747",
			ImmutableBorrowColor: "#4763eb",
			MutableBorrowColor:   "#eb47eb",
			OutliveColor:         "#eb4747",
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills fields the YAML left empty. UnderlineThickness is
// seeded by Default before decoding since zero is a valid setting.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	c.ServerPath = strings.TrimSpace(c.ServerPath)
	if c.Server.CursorMethod == "" {
		c.Server.CursorMethod = defaults.Server.CursorMethod
	}
	if c.Server.LanguageID == "" {
		c.Server.LanguageID = defaults.Server.LanguageID
	}
	if c.Decorations.LifetimeColor == "" {
		c.Decorations.LifetimeColor = defaults.Decorations.LifetimeColor
	}
	if c.Decorations.MoveCallColor == "" {
		c.Decorations.MoveCallColor = defaults.Decorations.MoveCallColor
	}
	if c.Decorations.ImmutableBorrowColor == "" {
		c.Decorations.ImmutableBorrowColor = defaults.Decorations.ImmutableBorrowColor
	}
	if c.Decorations.MutableBorrowColor == "" {
		c.Decorations.MutableBorrowColor = defaults.Decorations.MutableBorrowColor
	}
	if c.Decorations.OutliveColor == "" {
		c.Decorations.OutliveColor = defaults.Decorations.OutliveColor
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
