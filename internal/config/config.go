// Package config provides configuration loading for docmirror.
//
// The config file is optional. When it is missing every value falls back to
// its default, which mirrors the public documentation repository into
// ~/.claude-code-docs and registers the integration in ~/.claude.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidValue is returned when a config value is out of range.
	ErrInvalidValue = errors.New("invalid config value")
	// ErrNoHome is returned when the home directory cannot be determined.
	ErrNoHome = errors.New("cannot determine home directory")
)

// Defaults.
const (
	DefaultRepoURL          = "https://github.com/ericbuess/claude-code-docs.git"
	DefaultBranch           = "main"
	DefaultCommandName      = "docs"
	DefaultHookEvent        = "PreToolUse"
	DefaultHookMatcher      = "Read"
	DefaultMarker           = "docmirror"
	DefaultCheckInterval    = 3 * time.Hour
	DefaultFreshnessTimeout = 5 * time.Second
	DefaultChangelogURL     = "https://raw.githubusercontent.com/anthropics/claude-code/main/CHANGELOG.md"
	DefaultOfficialDocsURL  = "https://docs.anthropic.com/en/docs/claude-code"
)

// DefaultLegacyMarkers identifies hooks written by earlier script-based installers.
var DefaultLegacyMarkers = []string{"claude-code-docs"}

// Config holds user-tunable settings. Zero values are replaced by defaults
// in Load.
type Config struct {
	RepoURL          string        `yaml:"repo_url,omitempty"`
	Branch           string        `yaml:"branch,omitempty"`
	InstallDir       string        `yaml:"install_dir,omitempty"`
	HostDir          string        `yaml:"host_dir,omitempty"`
	StateDir         string        `yaml:"state_dir,omitempty"`
	CommandName      string        `yaml:"command_name,omitempty"`
	HookEvent        string        `yaml:"hook_event,omitempty"`
	HookMatcher      string        `yaml:"hook_matcher,omitempty"`
	Marker           string        `yaml:"marker,omitempty"`
	LegacyMarkers    []string      `yaml:"legacy_markers,omitempty"`
	CheckInterval    time.Duration `yaml:"check_interval,omitempty"`
	FreshnessTimeout time.Duration `yaml:"freshness_timeout,omitempty"`
	ChangelogURL     string        `yaml:"changelog_url,omitempty"`
	OfficialDocsURL  string        `yaml:"official_docs_url,omitempty"`

	// path is the file this config was loaded from, empty for defaults.
	path string
}

// Dir returns the docmirror config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/docmirror if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoHome, err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "docmirror"), nil
}

// DefaultPath returns the config file location: $DOCMIRROR_CONFIG if set,
// otherwise {Dir}/config.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv("DOCMIRROR_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns a config populated with defaults for the current user.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the YAML config at path (DefaultPath when empty). A missing
// file yields the defaults without error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.path = path
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was loaded from, or "" for defaults.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) applyDefaults() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoHome, err)
	}

	setDefault(&c.RepoURL, DefaultRepoURL)
	setDefault(&c.Branch, DefaultBranch)
	setDefault(&c.InstallDir, filepath.Join(home, ".claude-code-docs"))
	setDefault(&c.HostDir, filepath.Join(home, ".claude"))
	setDefault(&c.StateDir, filepath.Join(home, ".docmirror"))
	setDefault(&c.CommandName, DefaultCommandName)
	setDefault(&c.HookEvent, DefaultHookEvent)
	setDefault(&c.HookMatcher, DefaultHookMatcher)
	setDefault(&c.Marker, DefaultMarker)
	setDefault(&c.ChangelogURL, DefaultChangelogURL)
	setDefault(&c.OfficialDocsURL, DefaultOfficialDocsURL)
	if c.LegacyMarkers == nil {
		c.LegacyMarkers = append([]string(nil), DefaultLegacyMarkers...)
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.FreshnessTimeout == 0 {
		c.FreshnessTimeout = DefaultFreshnessTimeout
	}

	c.InstallDir = expandHome(c.InstallDir, home)
	c.HostDir = expandHome(c.HostDir, home)
	c.StateDir = expandHome(c.StateDir, home)
	return nil
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.CheckInterval < 0 {
		return fmt.Errorf("%w: check_interval must not be negative, got %s", ErrInvalidValue, c.CheckInterval)
	}
	if c.FreshnessTimeout < 0 || c.FreshnessTimeout > 2*time.Minute {
		return fmt.Errorf("%w: freshness_timeout must be between 0 and 2m, got %s", ErrInvalidValue, c.FreshnessTimeout)
	}
	if strings.ContainsAny(c.CommandName, `/\`) {
		return fmt.Errorf("%w: command_name must be a bare name, got %q", ErrInvalidValue, c.CommandName)
	}
	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("%w: marker must not be blank", ErrInvalidValue)
	}
	if !filepath.IsAbs(c.InstallDir) {
		return fmt.Errorf("%w: install_dir must be absolute, got %q", ErrInvalidValue, c.InstallDir)
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		return filepath.Join(home, p[2:])
	}
	return p
}
