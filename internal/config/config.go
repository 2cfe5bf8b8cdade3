// ABOUTME: Application configuration from a YAML file, .env files and the environment
// ABOUTME: Environment values override the file; the result is checked with struct tags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini"`
	Audio   AudioConfig   `yaml:"audio"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GeminiConfig selects the endpoint, key and models
type GeminiConfig struct {
	APIKey     string `yaml:"api_key" validate:"required"`
	Endpoint   string `yaml:"endpoint" validate:"omitempty,url"`
	LiveModel  string `yaml:"live_model" validate:"required"`
	ChatModel  string `yaml:"chat_model" validate:"required"`
	ImageModel string `yaml:"image_model" validate:"required"`
	QuizModel  string `yaml:"quiz_model" validate:"required"`
	TTSModel   string `yaml:"tts_model" validate:"required"`
	VideoModel string `yaml:"video_model" validate:"required"`
	Voice      string `yaml:"voice"`
}

// AudioConfig holds device rates and voice activity settings
type AudioConfig struct {
	CaptureRate  int     `yaml:"capture_rate" validate:"required,gt=0"`
	PlaybackRate int     `yaml:"playback_rate" validate:"required,gt=0"`
	FrameSize    int     `yaml:"frame_size" validate:"required,gt=0"`
	Threshold    float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	FlushOnClose bool    `yaml:"flush_on_close"`
}

// StoreConfig picks the key-value backend
type StoreConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=file redis memory"`
	Path          string `yaml:"path" validate:"required_if=Backend file"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	Namespace     string `yaml:"namespace"`
}

// CacheConfig holds the response cache settings
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" validate:"gt=0"`
}

// LoggingConfig controls the log file
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file" validate:"required"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// MetricsConfig enables the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Dir is the per-user data directory
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ashama")
	}
	return ".ashama"
}

// DefaultPath is where Load looks when no path is given
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	dir := Dir()
	return &Config{
		Gemini: GeminiConfig{
			LiveModel:  "gemini-2.5-flash-native-audio-preview-12-2025",
			ChatModel:  "gemini-2.5-flash",
			ImageModel: "gemini-2.5-flash-image",
			QuizModel:  "gemini-3-flash-preview",
			TTSModel:   "gemini-2.5-flash-preview-tts",
			VideoModel: "veo-3.1-fast-generate-preview",
			Voice:      "Zephyr",
		},
		Audio: AudioConfig{
			CaptureRate:  16000,
			PlaybackRate: 24000,
			FrameSize:    4096,
			Threshold:    1.2 / 4096,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    filepath.Join(dir, "store.json"),
		},
		Cache: CacheConfig{TTL: 30 * time.Minute},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(dir, "ashama.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration. path may be empty, in which case the
// default path is read if it exists. .env.local and .env in the working
// directory are loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(".env.local", ".env"); err != nil {
		return nil, err
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads the files that exist. Variables already set win.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, key := range []string{"GEMINI_API_KEY", "VITE_GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v, ok := lookup(key); ok && v != "" {
			c.Gemini.APIKey = v
			break
		}
	}

	strs := map[string]*string{
		"ASHAMA_GEMINI_ENDPOINT": &c.Gemini.Endpoint,
		"ASHAMA_LIVE_MODEL":      &c.Gemini.LiveModel,
		"ASHAMA_CHAT_MODEL":      &c.Gemini.ChatModel,
		"ASHAMA_VOICE":           &c.Gemini.Voice,
		"ASHAMA_STORE":           &c.Store.Backend,
		"ASHAMA_STORE_PATH":      &c.Store.Path,
		"ASHAMA_REDIS_ADDR":      &c.Store.RedisAddr,
		"ASHAMA_REDIS_PASSWORD":  &c.Store.RedisPassword,
		"ASHAMA_LOG_LEVEL":       &c.Logging.Level,
		"ASHAMA_LOG_FILE":        &c.Logging.File,
		"ASHAMA_METRICS_ADDR":    &c.Metrics.Addr,
	}
	for key, field := range strs {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	if v, ok := lookup("ASHAMA_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASHAMA_REDIS_DB: %w", err)
		}
		c.Store.RedisDB = db
	}
	if v, ok := lookup("ASHAMA_CACHE_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ASHAMA_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = ttl
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s: failed %q check (value %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return err
	}
	return nil
}
