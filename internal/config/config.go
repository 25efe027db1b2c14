package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Log         LogConfig      `mapstructure:"log"`
	Downloads   DownloadConfig `mapstructure:"downloads"`
	Formats     FormatConfig   `mapstructure:"formats"`
	Search      SearchConfig   `mapstructure:"search"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port                int    `mapstructure:"port"`
	Host                string `mapstructure:"host"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds"`
}

// DatabaseConfig contains history database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DownloadConfig contains download engine configuration
type DownloadConfig struct {
	Directory           string `mapstructure:"directory"`
	MaxConcurrent       int    `mapstructure:"max_concurrent"`
	MaxRetries          int    `mapstructure:"max_retries"`
	StallTimeoutSeconds int    `mapstructure:"stall_timeout_seconds"`
	KeepPartial         bool   `mapstructure:"keep_partial"`
	UserAgent           string `mapstructure:"user_agent"`
	AcceleratorEnabled  bool   `mapstructure:"accelerator_enabled"`
	AcceleratorConns    int    `mapstructure:"accelerator_connections"`
}

// FormatConfig contains default format and quality selection
type FormatConfig struct {
	DefaultFormat    string `mapstructure:"default_format"`
	AudioBitrateKbps int    `mapstructure:"audio_bitrate_kbps"`
	VideoQuality     string `mapstructure:"video_quality"`
}

// SearchConfig carries credentials for the external search
// collaborator. The key is injected here rather than embedded anywhere
// in code.
type SearchConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.read_timeout_seconds", 30)
	viper.SetDefault("server.write_timeout_seconds", 30)
	viper.SetDefault("server.idle_timeout_seconds", 120)

	viper.SetDefault("database.path", "./data/tunegrab.db")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("downloads.directory", "./downloads")
	viper.SetDefault("downloads.max_concurrent", 6)
	viper.SetDefault("downloads.max_retries", 3)
	viper.SetDefault("downloads.stall_timeout_seconds", 30)
	viper.SetDefault("downloads.keep_partial", false)
	viper.SetDefault("downloads.user_agent", "TuneGrab/1.0")
	viper.SetDefault("downloads.accelerator_enabled", true)
	viper.SetDefault("downloads.accelerator_connections", 4)

	viper.SetDefault("formats.default_format", "audio")
	viper.SetDefault("formats.audio_bitrate_kbps", 320)
	viper.SetDefault("formats.video_quality", "best")

	viper.SetDefault("search.api_key", "")

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tunegrab")

	// Environment variable settings
	viper.SetEnvPrefix("TUNEGRAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
