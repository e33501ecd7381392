// Package config loads the dicomdoc command's YAML configuration.
//
// Configuration comes from exactly one file: the path given with --config,
// or else the DICOMDOC_CONFIG environment variable. Nothing is discovered
// implicitly; without either, built-in defaults apply. Command-line flags
// override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/bulk"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "DICOMDOC_CONFIG"

// Config holds defaults for the dump, load and info commands.
type Config struct {
	// Format is the document format: json, yaml or cbor.
	Format string `yaml:"format"`

	// SkipBinary omits inline bulk data from documents.
	SkipBinary bool `yaml:"skip_binary"`

	// SkipNonStandard drops elements without a dictionary keyword.
	SkipNonStandard bool `yaml:"skip_nonstandard"`

	// DropPixelData skips pixel data while parsing DICOM files.
	DropPixelData bool `yaml:"drop_pixel_data"`

	// Glob selects files when dumping a directory.
	Glob string `yaml:"glob"`

	Bulk BulkConfig `yaml:"bulk"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// BulkConfig configures the external bulk data store.
type BulkConfig struct {
	// Dir is the store directory. Empty keeps bulk data inline.
	Dir string `yaml:"dir"`

	// Compression is none, lz4 or zstd.
	Compression string `yaml:"compression"`

	// MinSize is the smallest payload, in bytes, moved to the store.
	MinSize int `yaml:"min_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Format:   "json",
		Glob:     "**.dcm",
		LogLevel: "info",
		Bulk: BulkConfig{
			Compression: "zstd",
			MinSize:     1024,
		},
	}
}

// Load reads the file at path, or the file named by DICOMDOC_CONFIG when
// path is empty. With neither, it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a configuration file over the defaults. Unknown keys are
// errors.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Bulk.Dir = expandVars(cfg.Bulk.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := dicomdoc.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if _, err := bulk.ParseCompression(c.Bulk.Compression); err != nil {
		errs = append(errs, fmt.Errorf("bulk.compression: %w", err))
	}
	if c.Bulk.MinSize < 0 {
		errs = append(errs, fmt.Errorf("bulk.min_size must not be negative, got %d", c.Bulk.MinSize))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Policy returns the codec policy the configuration selects.
func (c *Config) Policy() dicomdoc.Policy {
	return dicomdoc.Policy{SkipBinary: c.SkipBinary, SkipNonStandard: c.SkipNonStandard}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
