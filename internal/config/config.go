// Package config loads client-side settings from a YAML file, with
// environment variables taking precedence. The file lives at
// $TRACKLAB_CONFIG or ~/.tracklab/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tracklab-io/tracklab/internal/platform/env"
)

const defaultTrackingURI = "mem://"

type Config struct {
	// TrackingURI selects the backend: mem://, postgres://, http://, https://.
	TrackingURI string `yaml:"tracking_uri"`
	// ArtifactRoot is the base location for experiments created without an
	// explicit artifact location.
	ArtifactRoot string `yaml:"artifact_root"`
}

// Load reads the config file when present and applies environment
// overrides. A missing file is not an error; the zero config falls back to
// the in-memory backend.
func Load() (Config, error) {
	var cfg Config

	path := env.String("TRACKLAB_CONFIG", "")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".tracklab", "config.yaml")
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fine, env and defaults apply
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if uri := env.String("TRACKLAB_TRACKING_URI", ""); uri != "" {
		cfg.TrackingURI = uri
	}
	if root := env.String("TRACKLAB_ARTIFACT_ROOT", ""); root != "" {
		cfg.ArtifactRoot = root
	}
	if cfg.TrackingURI == "" {
		cfg.TrackingURI = defaultTrackingURI
	}
	return cfg, nil
}
