// Package config loads the benchmark settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cwbudde/grayscalebench/internal/bench"
)

// Config holds the settings shared by the CLI commands.
type Config struct {
	KernelPath  string `json:"kernelPath"`
	EntryPoint  string `json:"entryPoint"`
	DataDir     string `json:"dataDir"`
	DeviceIndex int    `json:"deviceIndex"`
	ListenAddr  string `json:"listenAddr"`
	// ImageDir is the only directory serve loads images from by path.
	// Empty disables loading by path.
	ImageDir string `json:"imageDir,omitempty"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		KernelPath:  bench.DefaultKernelPath,
		EntryPoint:  bench.DefaultEntryPoint,
		DataDir:     "./data",
		DeviceIndex: 0,
		ListenAddr:  ":8080",
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating the directory if needed.
func (cfg *Config) Save(path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename config: %w", err)
	}
	return nil
}

// Validate reports the first unusable field.
func (cfg *Config) Validate() error {
	switch {
	case cfg.KernelPath == "":
		return errors.New("kernelPath cannot be empty")
	case !identifier.MatchString(cfg.EntryPoint):
		return fmt.Errorf("entryPoint %q is not a valid kernel name", cfg.EntryPoint)
	case cfg.DataDir == "":
		return errors.New("dataDir cannot be empty")
	case cfg.DeviceIndex < 0:
		return fmt.Errorf("deviceIndex %d cannot be negative", cfg.DeviceIndex)
	case cfg.ListenAddr == "":
		return errors.New("listenAddr cannot be empty")
	}
	return nil
}
