package fleet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/agentctl/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig classifies every fleet document problem detected before
// remote calls are issued.
var ErrInvalidConfig = errors.New("fleet: invalid config")

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatForPath picks the decoder from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported fleet file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
}

// Decode parses data without validating it. Unknown keys are rejected.
func Decode(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidConfig, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: parse json: %v", ErrInvalidConfig, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: parse toml: %v", ErrInvalidConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	return &cfg, nil
}

// Load reads, validates and resolves the fleet document at path. File
// references resolve against root_path, itself relative to the document's
// directory, or the document's directory when root_path is unset.
func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot is Load with a fallback root used when the document sets no
// root_path. An empty fallback means the document's directory.
func LoadWithRoot(path, fallbackRoot string) (*Config, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fleet load failed (%s): %w", path, err)
	}
	cfg, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("fleet load failed (%s): %w", path, err)
	}
	if strings.TrimSpace(cfg.RootPath) == "" && fallbackRoot != "" {
		if dir, err = filepath.Abs(fallbackRoot); err != nil {
			return nil, fmt.Errorf("fleet load failed (%s): %w", path, err)
		}
	}
	cfg.SetRoot(dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveContent(); err != nil {
		return nil, err
	}
	logging.Debugf("fleet.Load path=%q agents=%d shared_blocks=%d shared_folders=%d root=%q",
		path, len(cfg.Agents), len(cfg.SharedBlocks), len(cfg.SharedFolders), cfg.Root())
	return cfg, nil
}

// SetRoot sets the base directory for file references. root_path, when
// relative, is joined onto docDir.
func (c *Config) SetRoot(docDir string) {
	root := docDir
	if rp := strings.TrimSpace(c.RootPath); rp != "" {
		if filepath.IsAbs(rp) {
			root = rp
		} else {
			root = filepath.Join(docDir, rp)
		}
	}
	c.root = filepath.Clean(root)
}

// Root is the directory file references resolve against.
func (c *Config) Root() string {
	if c.root == "" {
		return "."
	}
	return c.root
}

// Path resolves a document-relative reference.
func (c *Config) Path(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(c.Root(), ref)
}
