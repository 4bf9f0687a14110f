package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the worker service
type Config struct {
	// Server configuration
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	// WorkerURL is the advertised base URL of this worker. It doubles as the
	// worker id echoed to clients so a front end can route status polls back
	// to the machine that ran the job.
	WorkerURL string `mapstructure:"worker_url"`

	// Database configuration
	DatabasePath string `mapstructure:"database_path"`

	// Filesystem layout
	ProjectsPath string `mapstructure:"projects_path"`
	RuntimesPath string `mapstructure:"runtimes_path"`
	ResultsPath  string `mapstructure:"results_path"`
	SdkPath      string `mapstructure:"sdk_path"`
	LockPath     string `mapstructure:"lock_path"`

	// Result retention
	ResultsTTLSeconds int `mapstructure:"results_ttl_seconds"`

	// Journal retention, in days, applied by the clean command
	JournalRetentionDays int `mapstructure:"journal_retention_days"`

	// Runtime readiness probing
	ReadyPollIntervalMsec int `mapstructure:"ready_poll_interval_msec"`
	ReadyTimeoutSeconds   int `mapstructure:"ready_timeout_seconds"`

	// Emulator display; headless unless set
	ShowEmulator bool `mapstructure:"show_emulator"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig loads configuration from environment and config file
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("WORKER")

	// Try to read config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/android-worker/")
	v.AddConfigPath("$HOME/.android-worker")
	v.AddConfigPath(".")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand paths
	if err := config.expandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}

	if config.WorkerURL == "" {
		hostname, _ := os.Hostname()
		config.WorkerURL = fmt.Sprintf("http://%s:%d", hostname, config.ServerPort)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("worker_url", "")

	// Database defaults
	v.SetDefault("database_path", "./data/worker.db")

	// Filesystem defaults
	v.SetDefault("projects_path", "./projects")
	v.SetDefault("runtimes_path", "./runtimes")
	v.SetDefault("results_path", "./results")
	v.SetDefault("sdk_path", "./resources/sdk")
	v.SetDefault("lock_path", "./.lock")

	// Result retention defaults
	v.SetDefault("results_ttl_seconds", 1800) // 30 minutes
	v.SetDefault("journal_retention_days", 90)

	// Readiness defaults
	v.SetDefault("ready_poll_interval_msec", 1000)
	v.SetDefault("ready_timeout_seconds", 600) // 10 minutes

	// Emulator defaults
	v.SetDefault("show_emulator", false)

	// Logging
	v.SetDefault("log_level", "info")
}

func (c *Config) expandPaths() error {
	for _, field := range []*string{
		&c.DatabasePath,
		&c.ProjectsPath,
		&c.RuntimesPath,
		&c.ResultsPath,
		&c.SdkPath,
		&c.LockPath,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *field, err)
		}
		*field = expanded
	}

	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand home directory
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}

	// Get absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return absPath, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerPort)
	}

	if c.ResultsTTLSeconds < 1 {
		return fmt.Errorf("results_ttl_seconds must be at least 1")
	}

	if c.JournalRetentionDays < 1 {
		return fmt.Errorf("journal_retention_days must be at least 1")
	}

	if c.ReadyPollIntervalMsec < 1 {
		return fmt.Errorf("ready_poll_interval_msec must be at least 1")
	}

	if c.ReadyTimeoutSeconds < 1 {
		return fmt.Errorf("ready_timeout_seconds must be at least 1")
	}

	return nil
}

// ResultsTTL returns the result directory time-to-live
func (c *Config) ResultsTTL() time.Duration {
	return time.Duration(c.ResultsTTLSeconds) * time.Second
}

// ReadyPollInterval returns the delay between runtime readiness probes
func (c *Config) ReadyPollInterval() time.Duration {
	return time.Duration(c.ReadyPollIntervalMsec) * time.Millisecond
}

// ReadyTimeout returns the cumulative readiness wait limit
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}
