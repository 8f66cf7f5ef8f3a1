package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver handles finding config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles finds config and env files for an application.
// Explicit paths win; otherwise the first existing candidate is used.
func (cr *Resolver) ResolveFiles(name string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.first(candidates(name, "config.yml"))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.first(candidates(name, ".env"))
	}
	return resolved
}

func (cr *Resolver) first(paths []string) string {
	for _, path := range paths {
		if cr.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

func candidates(name, file string) []string {
	paths := make([]string, 0, 6)
	if name != "" {
		paths = append(paths,
			fmt.Sprintf("./cmd/%s/%s", name, file),
			fmt.Sprintf("./config/%s/%s", name, file),
		)
	}
	return append(paths,
		fmt.Sprintf("./config/%s", file),
		fmt.Sprintf("../config/%s", file),
		fmt.Sprintf("./%s", file),
		fmt.Sprintf("../%s", file),
	)
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
	EnvPrefix  string // Prefix for environment overrides (optional)
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix namespaces environment overrides (STREAMKIT_STREAM_OBJECT_MODE).
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = prefix }
}

// knownKeys are registered with viper so AutomaticEnv overrides reach Unmarshal.
var knownKeys = map[string]any{
	"name":                          "",
	"stream.high_water_mark":        DefaultHighWaterMark,
	"stream.object_high_water_mark": DefaultObjectHighWaterMark,
	"stream.object_mode":            false,
	"stream.auto_destroy":           false,
	"logging.level":                 "info",
	"logging.format":                "console",
	"logging.output":                "stderr",
	"logging.no_color":              false,
	"logging.timestamp":             true,
	"logging.caller":                false,
}

// LoadConfig loads configuration into cfg. Missing files are not an error;
// cfg then carries the defaults and any environment overrides.
func LoadConfig(name string, cfg *Config, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(name, lc)

	v := viper.New()
	for key, def := range knownKeys {
		v.SetDefault(key, def)
	}

	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", files.ConfigFile, err)
		}
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", files.EnvFile, err)
		}
	}

	if lc.EnvPrefix != "" {
		v.SetEnvPrefix(lc.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for %s: %w", name, err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return nil
}
