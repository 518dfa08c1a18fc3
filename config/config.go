package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Storage drivers
const (
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

// Auth modes
const (
	AuthFirebase = "firebase"
	AuthStatic   = "static"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Firebase FirebaseConfig `json:"firebase"`
	Auth     AuthConfig     `json:"auth"`
	Prayer   PrayerConfig   `json:"prayer"`
	YouTube  YouTubeConfig  `json:"youtube"`
	Telegram TelegramConfig `json:"telegram"`
	Tracking TrackingConfig `json:"tracking"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Timezone string         `json:"timezone"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	SecureCookies       bool   `json:"secure_cookies"`
	UnlockRatePerMinute int    `json:"unlock_rate_per_minute"`
}

// StorageConfig selects the document store
type StorageConfig struct {
	Driver     string `json:"driver"` // "sqlite" or "firestore"
	SQLitePath string `json:"sqlite_path"`
}

// FirebaseConfig contains Firebase project settings
type FirebaseConfig struct {
	CredentialsFile string `json:"credentials_file"`
	ProjectID       string `json:"project_id"`
}

// AuthConfig contains request authentication settings
type AuthConfig struct {
	Mode            string            `json:"mode"` // "firebase" or "static"
	StaticTokens    map[string]string `json:"static_tokens"`
	SessionTTLHours int               `json:"session_ttl_hours"`
}

// PrayerConfig contains prayer-time and geolocation API settings
type PrayerConfig struct {
	APIBaseURL string `json:"api_base_url"`
	GeoBaseURL string `json:"geo_base_url"`
}

// YouTubeConfig contains YouTube Data API settings
type YouTubeConfig struct {
	APIKey string `json:"api_key"`
}

// TelegramConfig contains parent alert settings; empty token disables alerts
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

// TrackingConfig contains watch tracking settings
type TrackingConfig struct {
	FlushIntervalSeconds int `json:"flush_interval_seconds"`
	IdleTimeoutSeconds   int `json:"idle_timeout_seconds"`
	TickSeconds          int `json:"tick_seconds"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// applyDefaults fills in zero values
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.UnlockRatePerMinute == 0 {
		c.Server.UnlockRatePerMinute = 5
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./choicetube.db"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthFirebase
	}
	if c.Auth.SessionTTLHours == 0 {
		c.Auth.SessionTTLHours = 5 * 24
	}
	if c.Prayer.APIBaseURL == "" {
		c.Prayer.APIBaseURL = "https://api.aladhan.com"
	}
	if c.Prayer.GeoBaseURL == "" {
		c.Prayer.GeoBaseURL = "http://ip-api.com"
	}
	if c.Tracking.FlushIntervalSeconds == 0 {
		c.Tracking.FlushIntervalSeconds = 30
	}
	if c.Tracking.IdleTimeoutSeconds == 0 {
		c.Tracking.IdleTimeoutSeconds = 120
	}
	if c.Tracking.TickSeconds == 0 {
		c.Tracking.TickSeconds = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
	case DriverFirestore:
		if c.Firebase.ProjectID == "" && c.Firebase.CredentialsFile == "" {
			return fmt.Errorf("%w: firestore requires a project id or credentials file", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	switch c.Auth.Mode {
	case AuthFirebase:
	case AuthStatic:
		if len(c.Auth.StaticTokens) == 0 {
			return fmt.Errorf("%w: static auth requires at least one token", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown auth mode %q", ErrInvalidConfig, c.Auth.Mode)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram chat id is required with a bot token", ErrInvalidConfig)
	}

	if c.Tracking.FlushIntervalSeconds < 0 || c.Tracking.IdleTimeoutSeconds < 0 || c.Tracking.TickSeconds < 0 {
		return fmt.Errorf("%w: tracking intervals cannot be negative", ErrInvalidConfig)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: invalid timezone %q", ErrInvalidConfig, c.Timezone)
	}

	return nil
}

// Location returns the configured timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:                getEnv("CHOICETUBE_HOST", "0.0.0.0"),
			Port:                getEnvInt("CHOICETUBE_PORT", 8080),
			SecureCookies:       getEnvBool("CHOICETUBE_SECURE_COOKIES", false),
			UnlockRatePerMinute: getEnvInt("CHOICETUBE_UNLOCK_RATE_PER_MINUTE", 5),
		},
		Storage: StorageConfig{
			Driver:     getEnv("CHOICETUBE_STORAGE_DRIVER", DriverSQLite),
			SQLitePath: getEnv("CHOICETUBE_DB_PATH", "./choicetube.db"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Auth: AuthConfig{
			Mode:            getEnv("CHOICETUBE_AUTH_MODE", AuthFirebase),
			StaticTokens:    parseTokens(getEnv("CHOICETUBE_STATIC_TOKENS", "")),
			SessionTTLHours: getEnvInt("CHOICETUBE_SESSION_TTL_HOURS", 5*24),
		},
		Prayer: PrayerConfig{
			APIBaseURL: getEnv("CHOICETUBE_PRAYER_API_URL", "https://api.aladhan.com"),
			GeoBaseURL: getEnv("CHOICETUBE_GEO_API_URL", "http://ip-api.com"),
		},
		YouTube: YouTubeConfig{
			APIKey: getEnv("YOUTUBE_API_KEY", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("CHOICETUBE_TELEGRAM_TOKEN", ""),
			ChatID:   int64(getEnvInt("CHOICETUBE_TELEGRAM_CHAT_ID", 0)),
		},
		Tracking: TrackingConfig{
			FlushIntervalSeconds: getEnvInt("CHOICETUBE_FLUSH_INTERVAL_SECONDS", 30),
			IdleTimeoutSeconds:   getEnvInt("CHOICETUBE_IDLE_TIMEOUT_SECONDS", 120),
			TickSeconds:          getEnvInt("CHOICETUBE_TICK_SECONDS", 1),
		},
		Logging: LoggingConfig{
			Level:  getEnv("CHOICETUBE_LOG_LEVEL", "info"),
			Format: getEnv("CHOICETUBE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("CHOICETUBE_METRICS_ENABLED", false),
		},
		Timezone: getEnv("CHOICETUBE_TIMEZONE", "UTC"),
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// parseTokens reads "token:uid,token2:uid2"
func parseTokens(value string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		token, uid, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || uid == "" {
			continue
		}
		tokens[token] = uid
	}
	return tokens
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
