package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mmcdole/hoard/internal/source"
	"github.com/mmcdole/hoard/internal/transfer"
)

// ProgressMode selects the progress renderer
type ProgressMode string

const (
	ProgressAuto  ProgressMode = "auto"
	ProgressTUI   ProgressMode = "tui"
	ProgressPlain ProgressMode = "plain"
	ProgressNone  ProgressMode = "none"
)

// Config holds all application configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Download DownloadConfig `mapstructure:"download"`
	UI       UIConfig       `mapstructure:"ui"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig describes how the remote API is reached
type SourceConfig struct {
	Variant   string        `mapstructure:"variant"` // "legacy" or "detail"
	Hosts     []string      `mapstructure:"hosts"`   // Allowed host fragments, empty = any
	UserAgent string        `mapstructure:"user_agent"`
	Proxy     string        `mapstructure:"proxy"` // e.g. socks5://192.168.2.1:7890
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DownloadConfig holds transfer settings
type DownloadConfig struct {
	Output            string        `mapstructure:"output"`
	Concurrency       int           `mapstructure:"concurrency"`
	DetailConcurrency int           `mapstructure:"detail_concurrency"` // 0 shares the transfer budget
	Retries           int           `mapstructure:"retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"` // Abort a body that stalls this long
	ErrorLog          bool          `mapstructure:"error_log"`
	Match             string        `mapstructure:"match"`
	Exclude           string        `mapstructure:"exclude"`
}

// UIConfig holds UI configuration
type UIConfig struct {
	Progress ProgressMode `mapstructure:"progress"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Variant:   "legacy",
			Hosts:     []string{"kemono", "coomer"},
			UserAgent: source.DefaultUserAgent,
			Timeout:   60 * time.Second,
		},
		Download: DownloadConfig{
			Output:      "./download",
			Concurrency: 5,
			Retries:     3,
			RetryDelay:  500 * time.Millisecond,
			IdleTimeout: transfer.DefaultIdleTimeout,
			ErrorLog:    true,
		},
		UI: UIConfig{
			Progress: ProgressAuto,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "hoard", "hoard.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "hoard", "hoard.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "hoard")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "hoard")
	}
}

// flagKeys maps flag names to config keys
var flagKeys = map[string]string{
	"output":             "download.output",
	"concurrency":        "download.concurrency",
	"detail-concurrency": "download.detail_concurrency",
	"retries":            "download.retries",
	"retry-delay":        "download.retry_delay",
	"idle-timeout":       "download.idle_timeout",
	"error-log":          "download.error_log",
	"match":              "download.match",
	"exclude":            "download.exclude",
	"variant":            "source.variant",
	"hosts":              "source.hosts",
	"user-agent":         "source.user_agent",
	"proxy":              "source.proxy",
	"timeout":            "source.timeout",
	"progress":           "ui.progress",
	"log-file":           "logging.file",
	"log-level":          "logging.level",
}

// NewFlagSet declares the command line flags. Defaults shown in help come
// from DefaultConfig; unset flags never override file or env values.
func NewFlagSet(name string) *pflag.FlagSet {
	d := DefaultConfig()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP("output", "o", d.Download.Output, "folder to save downloads")
	fs.IntP("concurrency", "j", d.Download.Concurrency, "maximum concurrent transfers")
	fs.Int("detail-concurrency", d.Download.DetailConcurrency, "maximum concurrent post lookups (0 shares the transfer limit)")
	fs.IntP("retries", "r", d.Download.Retries, "retries for network errors and 5xx responses")
	fs.Duration("retry-delay", d.Download.RetryDelay, "first retry backoff, doubled on each attempt")
	fs.Duration("idle-timeout", d.Download.IdleTimeout, "abort a transfer that receives no data for this long")
	fs.Bool("error-log", d.Download.ErrorLog, "record failed URLs in "+transfer.FailureLogName+" under the output folder")
	fs.String("match", "", "only download files whose name fuzzily matches")
	fs.String("exclude", "", "skip files whose name fuzzily matches")
	fs.String("variant", d.Source.Variant, "listing variant: legacy or detail")
	fs.StringSlice("hosts", d.Source.Hosts, "allowed host fragments (empty allows any)")
	fs.String("user-agent", d.Source.UserAgent, "User-Agent header")
	fs.StringP("proxy", "p", "", "proxy URL, e.g. socks5://192.168.2.1:7890")
	fs.Duration("timeout", d.Source.Timeout, "time to wait for response headers")
	fs.String("progress", string(d.UI.Progress), "progress display: auto, tui, plain or none")
	fs.String("log-file", d.Logging.File, "log file path")
	fs.String("log-level", d.Logging.Level, "log level: DEBUG, INFO, WARN or ERROR")
	fs.BoolP("version", "v", false, "print version")

	return fs
}

// LoadConfig loads configuration from defaults, config file, HOARD_*
// environment variables and flags, in increasing precedence. fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultConfigPath())
	v.AddConfigPath(".")

	// Environment variable overrides
	v.SetEnvPrefix("HOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", flagName, err)
				}
			}
		}
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("source.variant", d.Source.Variant)
	v.SetDefault("source.hosts", d.Source.Hosts)
	v.SetDefault("source.user_agent", d.Source.UserAgent)
	v.SetDefault("source.proxy", d.Source.Proxy)
	v.SetDefault("source.timeout", d.Source.Timeout)

	v.SetDefault("download.output", d.Download.Output)
	v.SetDefault("download.concurrency", d.Download.Concurrency)
	v.SetDefault("download.detail_concurrency", d.Download.DetailConcurrency)
	v.SetDefault("download.retries", d.Download.Retries)
	v.SetDefault("download.retry_delay", d.Download.RetryDelay)
	v.SetDefault("download.idle_timeout", d.Download.IdleTimeout)
	v.SetDefault("download.error_log", d.Download.ErrorLog)
	v.SetDefault("download.match", d.Download.Match)
	v.SetDefault("download.exclude", d.Download.Exclude)

	v.SetDefault("ui.progress", string(d.UI.Progress))

	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.level", d.Logging.Level)
}

// Validate rejects settings the downloader cannot run with
func (c *Config) Validate() error {
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Download.DetailConcurrency < 0 {
		return fmt.Errorf("detail concurrency must not be negative, got %d", c.Download.DetailConcurrency)
	}
	if c.Download.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %s", c.Download.IdleTimeout)
	}
	if c.Download.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Download.Retries)
	}
	if strings.TrimSpace(c.Download.Output) == "" {
		return errors.New("output folder must not be empty")
	}

	switch strings.ToLower(c.Source.Variant) {
	case "", "legacy", "detail":
	default:
		return fmt.Errorf("unknown variant %q (want legacy or detail)", c.Source.Variant)
	}

	switch c.UI.Progress {
	case "", ProgressAuto, ProgressTUI, ProgressPlain, ProgressNone:
	default:
		return fmt.Errorf("unknown progress mode %q", c.UI.Progress)
	}

	if c.Source.Proxy != "" {
		u, err := url.Parse(c.Source.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy url %q", c.Source.Proxy)
		}
	}
	return nil
}

// ErrorLogPath returns the failure log location, or "" when disabled
func (c *Config) ErrorLogPath() string {
	if !c.Download.ErrorLog {
		return ""
	}
	return filepath.Join(c.Download.Output, transfer.FailureLogName)
}
