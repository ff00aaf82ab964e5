// Package config handles configuration loading for the ReminEx client.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete client configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Rates   RatesConfig   `mapstructure:"rates"   yaml:"rates"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Scan    ScanConfig    `mapstructure:"scan"    yaml:"scan"`
	Speech  SpeechConfig  `mapstructure:"speech"  yaml:"speech"`
	OCR     OCRConfig     `mapstructure:"ocr"     yaml:"ocr"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// BackendConfig points at the ReminEx REST backend.
type BackendConfig struct {
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the per-request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

// RatesConfig configures the exchange-rate provider.
type RatesConfig struct {
	URL         string `mapstructure:"url"          yaml:"url"`
	RefreshCron string `mapstructure:"refresh_cron" yaml:"refresh_cron"` // serve mode only; empty disables
}

// StorageConfig locates the durable client store.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ScanConfig holds camera constraints for barcode scanning.
type ScanConfig struct {
	Width           int    `mapstructure:"width"             yaml:"width"`
	Height          int    `mapstructure:"height"            yaml:"height"`
	Facing          string `mapstructure:"facing"            yaml:"facing"` // "environment" (rear) or "user"
	FrameIntervalMs int    `mapstructure:"frame_interval_ms" yaml:"frame_interval_ms"`
}

// SpeechConfig configures the transcription service used for dictation.
type SpeechConfig struct {
	Endpoint  string `mapstructure:"endpoint"   yaml:"endpoint"` // empty = dictation unsupported
	APIKey    string `mapstructure:"api_key"    yaml:"api_key"`
	Model     string `mapstructure:"model"      yaml:"model"`
	Language  string `mapstructure:"language"   yaml:"language"`
	TimeoutMs int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// OCRConfig configures the hOCR text-recognition service.
type OCRConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"` // empty = OCR unsupported
}

// APIConfig holds the local companion HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
	File   string `mapstructure:"file"   yaml:"file"`   // optional rotating log file
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.reminex/config.yaml (home directory)
//  3. /etc/reminex/config.yaml (system)
//
// Environment variables override config file values.
// Format: REMINEX_<SECTION>_<KEY>, e.g., REMINEX_BACKEND_BASE_URL
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".reminex"))
	v.AddConfigPath("/etc/reminex")

	v.SetEnvPrefix("REMINEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("REMINEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout_sec", 30)

	v.SetDefault("rates.url", "https://api.exchangerate-api.com/v4/latest/USD")
	v.SetDefault("rates.refresh_cron", "@every 6h")

	v.SetDefault("storage.path", "~/.reminex/client.db")

	// Rear camera at 720p, ten decode attempts per second.
	v.SetDefault("scan.width", 1280)
	v.SetDefault("scan.height", 720)
	v.SetDefault("scan.facing", "environment")
	v.SetDefault("scan.frame_interval_ms", 100)

	v.SetDefault("speech.endpoint", "")
	v.SetDefault("speech.model", "whisper-1")
	v.SetDefault("speech.language", "en-US")
	v.SetDefault("speech.timeout_ms", 12000)

	v.SetDefault("ocr.endpoint", "")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8787)
	v.SetDefault("api.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("REMINEX_SPEECH_API_KEY"); key != "" {
		cfg.Speech.APIKey = key
	}
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
