package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for a converge run.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	// CheckMode makes the engine probe only and never apply.
	CheckMode bool `mapstructure:"check_mode"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SSHConfig holds SSH transport configuration
type SSHConfig struct {
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	HostKeyChecking bool          `mapstructure:"host_key_checking"`
	Auth            SSHAuthConfig `mapstructure:"auth"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	MaxConnections  int           `mapstructure:"max_connections"`
}

// SSHAuthConfig controls which SSH authentication methods are attempted
type SSHAuthConfig struct {
	Methods      []string `mapstructure:"methods"`
	PrivateKeys  []string `mapstructure:"private_keys"`
	PasswordAuth bool     `mapstructure:"password_auth"`
}

// RetryConfig bounds how transient step failures are retried
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// MetricsConfig holds the Prometheus listener configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load loads configuration from files and environment variables
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("CONVERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "plain")
	v.SetDefault("logging.file", "")

	// SSH defaults
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.connect_timeout", 30*time.Second)
	v.SetDefault("ssh.connect_retries", 3)
	v.SetDefault("ssh.host_key_checking", false)
	v.SetDefault("ssh.auth.methods", []string{"publickey"})
	v.SetDefault("ssh.auth.password_auth", false)
	v.SetDefault("ssh.max_sessions", 10)
	v.SetDefault("ssh.max_connections", 5)

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 10*time.Second)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("check_mode", false)
}
