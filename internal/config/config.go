// Package config resolves knoldeck settings from flags, an optional YAML
// file and KNOLDECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	appName   = "knoldeck"
	envPrefix = "KNOLDECK_"
)

// Config keys. They double as flag names.
const (
	KeyConfig    = "config"
	KeyDB        = "db"
	KeyReposDir  = "repos-dir"
	KeyListen    = "listen"
	KeyWorkers   = "workers"
	KeyLanguage  = "language"
	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
)

type Config struct {
	DB        string `koanf:"db" validate:"required"`
	ReposDir  string `koanf:"repos-dir" validate:"required"`
	Listen    string `koanf:"listen" validate:"required,hostname_port"`
	Workers   int    `koanf:"workers" validate:"min=1,max=64"`
	Language  string `koanf:"language" validate:"oneof=es fr pt"`
	LogLevel  string `koanf:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log-format" validate:"oneof=text json"`
}

// DataDir is where the database and git checkouts live by default.
func DataDir() string {
	xdg.Reload()
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultFile is the config file read when --config is not given.
func DefaultFile() string {
	xdg.Reload()
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// RegisterFlags adds the settings to flags with their defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	dataDir := DataDir()
	flags.String(KeyConfig, "", "config file (default "+DefaultFile()+")")
	flags.String(KeyDB, filepath.Join(dataDir, "knoldeck.db"), "path to the SQLite database")
	flags.String(KeyReposDir, filepath.Join(dataDir, "repos"), "directory for git source checkouts")
	flags.String(KeyListen, "localhost:8080", "address the HTTP server listens on")
	flags.Int(KeyWorkers, 4, "notes normalized in parallel during import")
	flags.String(KeyLanguage, "pt", "learner's native language used to pick the back of a card")
	flags.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
	flags.String(KeyLogFormat, "text", "log format: text or json")
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
}

// Load merges the layers in increasing precedence: flag defaults, the
// config file, the environment, then flags set on the command line.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit := DefaultFile(), false
	if f := flags.Lookup(KeyConfig); f != nil && f.Value.String() != "" {
		path, explicit = f.Value.String(), true
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no earlier layer set.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Language = strings.ToLower(cfg.Language)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (%v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the process logger.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	// LogLevel is one of the names UnmarshalText accepts.
	_ = level.UnmarshalText([]byte(c.LogLevel))
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
