// Package config loads the agentctl settings file and writes starter
// settings and fleet documents.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/render"
)

const (
	EnvBaseURL = "LETTA_BASE_URL"
	EnvAPIKey  = "LETTA_API_KEY"

	DefaultBaseURL = "http://localhost:8283"
	DefaultTimeout = 60 * time.Second
)

var ErrInvalidSettings = errors.New("config: invalid settings")

// Settings is the resolved CLI configuration.
type Settings struct {
	BaseURL  string
	APIKey   string
	Output   render.Format
	Timeout  time.Duration
	RootPath string
	LogLevel string
	CAFile   string
}

// fileSettings is the config.toml key mapping.
type fileSettings struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Output    string `toml:"output"`
	TimeoutMS int    `toml:"timeout_ms"`
	RootPath  string `toml:"root_path"`
	LogLevel  string `toml:"log_level"`
	CAFile    string `toml:"ca_file"`
}

func DefaultSettings() Settings {
	return Settings{
		BaseURL: DefaultBaseURL,
		Output:  render.FormatTable,
		Timeout: DefaultTimeout,
	}
}

// DefaultPath is ~/.agentctl/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agentctl", "config.toml")
	}
	return filepath.Join(home, ".agentctl", "config.toml")
}

// Load resolves settings: defaults, then keys present in the file at path,
// then the environment. A missing file is not an error unless required.
func Load(path string, required bool) (Settings, error) {
	cfg := DefaultSettings()
	if strings.TrimSpace(path) != "" {
		if err := overlayFile(&cfg, path); err != nil {
			if !errors.Is(err, os.ErrNotExist) || required {
				return Settings{}, err
			}
			logging.Debugf("config.Load path=%q missing, using defaults", path)
		}
	}
	overlayEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Settings, path string) error {
	var raw fileSettings
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load settings (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logging.Warnf("config.Load path=%q unknown_keys=%v", path, undecoded)
	}

	if meta.IsDefined("base_url") {
		cfg.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("api_key") {
		cfg.APIKey = strings.TrimSpace(raw.APIKey)
	}
	if meta.IsDefined("output") {
		cfg.Output = render.Format(strings.TrimSpace(raw.Output))
	}
	if meta.IsDefined("timeout_ms") {
		cfg.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("root_path") {
		cfg.RootPath = relativeTo(path, raw.RootPath)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("ca_file") {
		cfg.CAFile = relativeTo(path, raw.CAFile)
	}
	return nil
}

// relativeTo resolves a path from the settings file against its directory.
func relativeTo(settingsPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(settingsPath), p)
}

func overlayEnv(cfg *Settings, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		cfg.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAPIKey); ok && strings.TrimSpace(v) != "" {
		cfg.APIKey = strings.TrimSpace(v)
	}
}

func (s Settings) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base_url %q must be an absolute http(s) url", ErrInvalidSettings, s.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base_url scheme %q unsupported", ErrInvalidSettings, u.Scheme)
	}
	if _, err := render.ParseFormat(string(s.Output)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout_ms must be positive", ErrInvalidSettings)
	}
	if s.LogLevel != "" {
		if _, ok := logging.ParseLevel(s.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalidSettings, s.LogLevel)
		}
	}
	return nil
}
