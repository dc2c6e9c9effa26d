package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"video-converter/internal/domain"
)

// EnvPrefix scopes environment overrides, e.g. VIDEOCONV_FFMPEG_PATH.
const EnvPrefix = "VIDEOCONV"

const (
	keySourceDir  = "source_dir"
	keyOutputDir  = "output_dir"
	keyFFmpegPath = "ffmpeg_path"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// ViperStore persists settings in a single JSON file and layers
// VIDEOCONV_* environment overrides on top of it.
type ViperStore struct {
	path string
}

// NewViperStore creates a viper-backed settings store.
func NewViperStore(path string) *ViperStore {
	return &ViperStore{path: path}
}

// Path returns the settings file location.
func (s *ViperStore) Path() string {
	return s.path
}

// Load reads settings from disk, falling back to defaults when the file is
// missing. VIDEOCONV_* variables override the stored values.
func (s *ViperStore) Load() (domain.Settings, error) {
	return s.read(true)
}

// read decodes the settings file, optionally layering environment overrides.
func (s *ViperStore) read(withEnv bool) (domain.Settings, error) {
	v := s.newViper(withEnv)

	if _, err := os.Stat(s.path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return domain.Settings{}, err
		}
	} else if err := v.ReadInConfig(); err != nil {
		return domain.Settings{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var cfg domain.Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	return cfg, nil
}

// Save writes settings as JSON and creates parent directories. Fields that
// still carry their environment override keep the value stored on disk.
func (s *ViperStore) Save(cfg domain.Settings) error {
	stored, err := s.read(false)
	if err != nil {
		stored = DefaultSettings()
	}
	cfg = stripEnvOverrides(cfg, stored)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set(keySourceDir, cfg.SourceDir)
	v.Set(keyOutputDir, cfg.OutputDir)
	v.Set(keyFFmpegPath, cfg.FFmpegPath)

	return v.WriteConfigAs(s.path)
}

// newViper builds an isolated viper instance with defaults and, when
// withEnv is set, environment bindings.
func (s *ViperStore) newViper(withEnv bool) *viper.Viper {
	defaults := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")

	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	v.SetDefault(keySourceDir, defaults.SourceDir)
	v.SetDefault(keyOutputDir, defaults.OutputDir)
	v.SetDefault(keyFFmpegPath, defaults.FFmpegPath)
	return v
}

// stripEnvOverrides swaps any field equal to its active override back to
// the stored value.
func stripEnvOverrides(cfg, stored domain.Settings) domain.Settings {
	fields := []struct {
		key    string
		value  *string
		stored string
	}{
		{keySourceDir, &cfg.SourceDir, stored.SourceDir},
		{keyOutputDir, &cfg.OutputDir, stored.OutputDir},
		{keyFFmpegPath, &cfg.FFmpegPath, stored.FFmpegPath},
	}
	for _, field := range fields {
		if env, ok := os.LookupEnv(envVar(field.key)); ok && env != "" && *field.value == env {
			*field.value = field.stored
		}
	}
	return cfg
}

// envVar returns the environment variable that overrides key.
func envVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}
