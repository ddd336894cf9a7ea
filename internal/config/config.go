// Package config provides configuration management for weave using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration is read from .weave.yml (or the file named by --config
// or WEAVE_CONFIG_FILE), overridden by WEAVE_ prefixed environment variables
// and finally by flags bound to the same keys.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/weave/internal/logging"
)

// Config is the complete weave configuration.
type Config struct {
	Source     string           `mapstructure:"source"     yaml:"source"`
	Output     string           `mapstructure:"output"     yaml:"output"`
	Components ComponentsConfig `mapstructure:"components" yaml:"components"`
	Build      BuildConfig      `mapstructure:"build"      yaml:"build"`
	Server     ServerConfig     `mapstructure:"server"     yaml:"server"`
	Log        LogConfig        `mapstructure:"log"        yaml:"log"`
}

type ComponentsConfig struct {
	// Dir is the components directory, relative to Source unless absolute.
	Dir        string   `mapstructure:"dir"        yaml:"dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

type BuildConfig struct {
	// Depth limits how many directories below the source root documents
	// are processed. -1 means unlimited.
	Depth      int      `mapstructure:"depth"      yaml:"depth"`
	Filter     []string `mapstructure:"filter"     yaml:"filter"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	// Workers bounds parallel document processing; 0 uses runtime.NumCPU.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type ServerConfig struct {
	Host     string        `mapstructure:"host"     yaml:"host"`
	Port     int           `mapstructure:"port"     yaml:"port"`
	Watch    bool          `mapstructure:"watch"    yaml:"watch"`
	Serve    bool          `mapstructure:"serve"    yaml:"serve"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EnvPrefix prefixes environment variable overrides, e.g. WEAVE_SERVER_PORT.
const EnvPrefix = "WEAVE"

// Defaults.
const (
	DefaultOutput        = "dist"
	DefaultComponentsDir = "components"
	DefaultHost          = "localhost"
	DefaultPort          = 8080
	DefaultDebounce      = 100 * time.Millisecond
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("components.dir", DefaultComponentsDir)
	v.SetDefault("components.extensions", []string{".html", ".htm"})
	v.SetDefault("build.depth", -1)
	v.SetDefault("build.filter", []string{})
	v.SetDefault("build.extensions", []string{".html", ".htm"})
	v.SetDefault("build.workers", 0)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.watch", false)
	v.SetDefault("server.serve", false)
	v.SetDefault("server.debounce", DefaultDebounce)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv makes v read WEAVE_ prefixed environment variables, mapping
// "server.port" to WEAVE_SERVER_PORT.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer())
	v.AutomaticEnv()
}

func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Serving implies watching.
	if config.Server.Serve {
		config.Server.Watch = true
	}
	if config.Output == "" {
		config.Output = DefaultOutput
	}
	if config.Components.Dir == "" {
		config.Components.Dir = DefaultComponentsDir
	}
	config.Components.Extensions = normalizeExtensions(config.Components.Extensions)
	config.Build.Extensions = normalizeExtensions(config.Build.Extensions)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ComponentsRoot returns the components directory resolved against Source.
func (c *Config) ComponentsRoot() string {
	if filepath.IsAbs(c.Components.Dir) {
		return filepath.Clean(c.Components.Dir)
	}

	return filepath.Join(c.Source, c.Components.Dir)
}

// Address returns the dev server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig maps the log section onto a logger configuration.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Log.Format

	return cfg
}

func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return []string{".html", ".htm"}
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			out = append(out, ext)
		}
	}

	return out
}

// validateConfig validates configuration values
func validateConfig(config *Config) error {
	if config.Source == "" {
		return fmt.Errorf("source directory is required")
	}
	if err := validatePaths(config); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := validateComponentsConfig(&config.Components); err != nil {
		return fmt.Errorf("components config: %w", err)
	}
	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validatePaths(config *Config) error {
	source, err := filepath.Abs(config.Source)
	if err != nil {
		return err
	}
	output, err := filepath.Abs(config.Output)
	if err != nil {
		return err
	}
	if source == output {
		return fmt.Errorf("output directory %s must differ from source directory", config.Output)
	}
	if strings.ContainsRune(config.Components.Dir, 0) {
		return fmt.Errorf("components dir contains a NUL byte")
	}

	return nil
}

func validateComponentsConfig(config *ComponentsConfig) error {
	return validateExtensions(config.Extensions)
}

func validateBuildConfig(config *BuildConfig) error {
	if config.Depth < -1 {
		return fmt.Errorf("depth %d must be -1 (unlimited) or greater", config.Depth)
	}
	if config.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative", config.Workers)
	}

	return validateExtensions(config.Extensions)
}

func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if strings.ContainsAny(config.Host, " /\\\"'<>") {
		return fmt.Errorf("host %q is not a valid host name", config.Host)
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce %s must not be negative", config.Debounce)
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	switch config.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", config.Format)
	}
}

func validateExtensions(exts []string) error {
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}

	return nil
}
