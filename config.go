package magni

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/kraytos17/magni/internal/storage"
)

// Config controls how a Database opens its backing file (spec.md
// §3.4, §4.2). It is decoded from YAML the same way the teacher's
// cmd/tinydb/listen.go decodes its ListenConfig.
type Config struct {
	PageSize        int          `yaml:"page_size"`
	MaxCachePages   int          `yaml:"max_cache_pages"`
	LogLevel        logrus.Level `yaml:"log_level"`
	CheckDuplicates bool         `yaml:"check_duplicates"`
}

// DefaultConfig returns the configuration a Database uses when none
// is supplied to Open.
func DefaultConfig() Config {
	return Config{
		PageSize:        storage.DefaultPageSize,
		MaxCachePages:   256,
		LogLevel:        logrus.InfoLevel,
		CheckDuplicates: true,
	}
}

// LoadConfig reads and decodes a YAML config file at path, filling in
// DefaultConfig's values for anything left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("magni: opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("magni: parsing config file: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if cfg.MaxCachePages <= 0 {
		cfg.MaxCachePages = 256
	}
	return cfg, nil
}
