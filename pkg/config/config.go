package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the relay bot
type Config struct {
	// Telegram transport settings
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`

	// Instagram client settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behaviour for Instagram requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Rotation account pool settings
	Accounts AccountsConfig `yaml:"accounts" json:"accounts"`

	// Media download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Keep-alive web server settings
	Web WebConfig `yaml:"web" json:"web"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token       string  `yaml:"token" json:"token"`
	PollTimeout int     `yaml:"poll_timeout" json:"poll_timeout"`
	AdminIDs    []int64 `yaml:"admin_ids" json:"admin_ids"`
	MaxFileSize int64   `yaml:"max_file_size" json:"max_file_size"`
}

// InstagramConfig holds Instagram client configuration
type InstagramConfig struct {
	UserAgent        string        `yaml:"user_agent" json:"user_agent"`
	AppID            string        `yaml:"app_id" json:"app_id"`
	SessionDir       string        `yaml:"session_dir" json:"session_dir"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
	VerificationWait time.Duration `yaml:"verification_wait" json:"verification_wait"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	PerChatPerHour    int `yaml:"per_chat_per_hour" json:"per_chat_per_hour"`
	PerChatPerDay     int `yaml:"per_chat_per_day" json:"per_chat_per_day"`
}

// RetryConfig holds retry behaviour configuration
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// AccountsConfig holds rotation account pool configuration
type AccountsConfig struct {
	StateFile     string        `yaml:"state_file" json:"state_file"`
	DailyLimit    int           `yaml:"daily_limit" json:"daily_limit"`
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown"`
	RotateCheck   time.Duration `yaml:"rotate_check" json:"rotate_check"`
	RotateAtUsage float64       `yaml:"rotate_at_usage" json:"rotate_at_usage"`
}

// DownloadConfig holds media download configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	TempDir             string        `yaml:"temp_dir" json:"temp_dir"`
}

// WebConfig holds keep-alive web server configuration
type WebConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	ListenAddr   string        `yaml:"listen_addr" json:"listen_addr"`
	ExternalURL  string        `yaml:"external_url" json:"external_url"`
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
			MaxFileSize: 50 * 1024 * 1024, // Telegram bot upload cap
		},
		Instagram: InstagramConfig{
			UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			AppID:            "936619743392459",
			SessionDir:       filepath.Join(os.TempDir(), "igrelay-sessions"),
			RequestTimeout:   30 * time.Second,
			VerificationWait: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			PerChatPerHour:    20,
			PerChatPerDay:     100,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
			Multiplier:  2.0,
		},
		Accounts: AccountsConfig{
			StateFile:     "instagram_accounts.json",
			DailyLimit:    20,
			Cooldown:      24 * time.Hour,
			RotateCheck:   30 * time.Minute,
			RotateAtUsage: 0.7,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
			TempDir:             filepath.Join(os.TempDir(), "igrelay-media"),
		},
		Web: WebConfig{
			Enabled:      true,
			ListenAddr:   ":8080",
			PingInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// TELEGRAM_TOKEN keeps its historical name; everything else uses IGRELAY_
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.Telegram.Token = token
	}
	if admins := os.Getenv("IGRELAY_ADMIN_IDS"); admins != "" {
		c.Telegram.AdminIDs = c.Telegram.AdminIDs[:0]
		for _, field := range strings.Split(admins, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid admin id %q: %w", field, err)
			}
			c.Telegram.AdminIDs = append(c.Telegram.AdminIDs, id)
		}
	}
	if userAgent := os.Getenv("IGRELAY_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}
	if sessionDir := os.Getenv("IGRELAY_SESSION_DIR"); sessionDir != "" {
		c.Instagram.SessionDir = sessionDir
	}
	if rpm := os.Getenv("IGRELAY_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if concurrent := os.Getenv("IGRELAY_CONCURRENT_DOWNLOADS"); concurrent != "" {
		if val, err := strconv.Atoi(concurrent); err == nil && val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}
	if tempDir := os.Getenv("IGRELAY_TEMP_DIR"); tempDir != "" {
		c.Download.TempDir = tempDir
	}
	if addr := os.Getenv("IGRELAY_LISTEN_ADDR"); addr != "" {
		c.Web.ListenAddr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		// Hosting platforms hand out a bare port number
		c.Web.ListenAddr = ":" + port
	}
	if url := os.Getenv("IGRELAY_EXTERNAL_URL"); url != "" {
		c.Web.ExternalURL = url
	}
	if logLevel := os.Getenv("IGRELAY_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".igrelay.yaml",
		".igrelay.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igrelay", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "igrelay", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".igrelay.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required (TELEGRAM_TOKEN)"))
	}
	if c.Telegram.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	if c.Telegram.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max file size must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.PerChatPerHour <= 0 {
		errs = append(errs, errors.New("per-chat hourly limit must be positive"))
	}
	if c.RateLimit.PerChatPerDay < c.RateLimit.PerChatPerHour {
		errs = append(errs, errors.New("per-chat daily limit cannot be below the hourly limit"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retry attempts cannot be negative"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.TempDir == "" {
		errs = append(errs, errors.New("temp directory is required"))
	}

	if c.Web.Enabled {
		if c.Web.ListenAddr == "" {
			errs = append(errs, errors.New("web listen address is required"))
		}
		if c.Web.PingInterval <= 0 {
			errs = append(errs, errors.New("ping interval must be positive"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igrelay.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// IsAdmin reports whether the given Telegram user ID is configured as an admin
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
