// Package config provides configuration management for devloop.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (DEVLOOP_ prefix)
//  3. Config file (devloop.yaml)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devloop-dev/devloop/internal/errors"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults for the timing knobs. These are policy choices, overridable from
// every config source.
const (
	DefaultPort           = 8000
	DefaultHost           = "localhost"
	DefaultDebounce       = 300 * time.Millisecond
	DefaultMaxWindow      = 5 * time.Second
	DefaultGracePeriod    = 5 * time.Second
	DefaultStartupTimeout = 10 * time.Second
)

// DefaultExclude contains path patterns never worth watching.
var DefaultExclude = []string{
	".git",
	".hg",
	"node_modules",
	"__pycache__",
	".pytest_cache",
	"dist",
	"tmp",
	"*.tmp",
	"*.swp",
	"*~",
	"*.pyc",
}

// DefaultCodePatterns match application source files whose change requires a
// full process restart.
var DefaultCodePatterns = []string{
	"*.go",
	"*.py",
	"*.rb",
	"*.toml",
	"*.yaml",
	"*.yml",
	"*.env",
}

// DefaultAssetPatterns match static files a browser can re-fetch without a
// process restart.
var DefaultAssetPatterns = []string{
	"*.html",
	"*.css",
	"*.scss",
	"*.js",
	"*.map",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.svg",
	"*.ico",
	"*.webp",
	"*.woff",
	"*.woff2",
}

// Config represents the global configuration for devloop.
type Config struct {
	// AppCommand is the command line used to launch the user application.
	AppCommand []string `mapstructure:"app-command"`

	// AppDir is the working directory for the application process.
	AppDir string `mapstructure:"app-dir"`

	// Host is the host the frontend binds to.
	Host string `mapstructure:"host"`

	// Port is the frontend port. The application is served on Port+1 unless
	// AppPort is set explicitly.
	Port int `mapstructure:"port"`

	// AppPort is the port the supervised application listens on.
	AppPort int `mapstructure:"app-port"`

	// StaticDir is the directory of static files, if any.
	StaticDir string `mapstructure:"static-dir"`

	// StaticURL is the URL prefix static files are served under.
	StaticURL string `mapstructure:"static-url"`

	// WatchRoots are the directories observed for changes.
	WatchRoots []string `mapstructure:"watch"`

	// Exclude are glob patterns filtered out before debouncing.
	Exclude []string `mapstructure:"exclude"`

	// CodePatterns classify paths whose change forces a full restart.
	CodePatterns []string `mapstructure:"code-patterns"`

	// AssetPatterns classify paths whose change only needs a browser re-fetch.
	AssetPatterns []string `mapstructure:"asset-patterns"`

	// Debounce is the quiet period before a change set is emitted.
	Debounce time.Duration `mapstructure:"debounce"`

	// MaxWindow caps an open debounce window so a never-idle event stream
	// still makes progress.
	MaxWindow time.Duration `mapstructure:"max-window"`

	// GracePeriod is how long a stopping application may take to exit before
	// it is killed.
	GracePeriod time.Duration `mapstructure:"grace-period"`

	// StartupTimeout bounds the wait for the application to become ready.
	StartupTimeout time.Duration `mapstructure:"startup-timeout"`

	// LiveReload toggles browser notification entirely.
	LiveReload bool `mapstructure:"livereload"`

	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load() — not read from config itself.
	ConfigFile string `mapstructure:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		StaticURL:      "/static/",
		WatchRoots:     []string{"."},
		Exclude:        DefaultExclude,
		CodePatterns:   DefaultCodePatterns,
		AssetPatterns:  DefaultAssetPatterns,
		Debounce:       DefaultDebounce,
		MaxWindow:      DefaultMaxWindow,
		GracePeriod:    DefaultGracePeriod,
		StartupTimeout: DefaultStartupTimeout,
		LiveReload:     true,
		LogLevel:       LogLevelInfo,
		LogFormat:      LogFormatText,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return errors.New(errors.CodeConfig).
			WithDetail("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return errors.New(errors.CodeConfig).
			WithDetail("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return errors.New(errors.CodeConfig).WithDetail("invalid port %d", c.Port)
	}

	if c.Debounce <= 0 {
		return errors.New(errors.CodeConfig).WithDetail("debounce must be positive, got %s", c.Debounce)
	}

	if c.MaxWindow < c.Debounce {
		return errors.New(errors.CodeConfig).
			WithDetail("max-window %s must not be shorter than debounce %s", c.MaxWindow, c.Debounce)
	}

	return nil
}

// EffectiveAppPort returns the port the application should listen on.
func (c *Config) EffectiveAppPort() int {
	if c.AppPort > 0 {
		return c.AppPort
	}
	return c.Port + 1
}

// Addr returns the frontend listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AppAddr returns the address the supervised application is expected on.
func (c *Config) AppAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.EffectiveAppPort())
}

// URL returns the externally reachable frontend URL.
func (c *Config) URL() string {
	return fmt.Sprintf("http://%s", c.Addr())
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}
	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("static-url", d.StaticURL)
	v.SetDefault("watch", d.WatchRoots)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("code-patterns", d.CodePatterns)
	v.SetDefault("asset-patterns", d.AssetPatterns)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("max-window", d.MaxWindow)
	v.SetDefault("grace-period", d.GracePeriod)
	v.SetDefault("startup-timeout", d.StartupTimeout)
	v.SetDefault("livereload", d.LiveReload)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("quiet", false)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("DEVLOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName("devloop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "devloop"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}
