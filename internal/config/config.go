package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loaders.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvAdminSecret  = "ADMIN_SECRET"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadAdminSecret loads the static admin secret from the config file or env.
func LoadAdminSecret(configPath string) string {
	// fileConfig maps the YAML fields needed for the admin secret.
	type fileConfig struct {
		Admin struct {
			Secret string `yaml:"secret"`
		} `yaml:"admin"`
	}

	secret := ""
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			secret = strings.TrimSpace(cfg.Admin.Secret)
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvAdminSecret)); env != "" {
		secret = env
	}
	return secret
}

// GeneratorConfig holds settings for the upstream text generator.
type GeneratorConfig struct {
	APIKey  string        `yaml:"api-key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base-url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Generator defaults applied when the config omits values.
const (
	DefaultGeneratorModel   = "gemini-1.5-flash-latest"
	DefaultGeneratorTimeout = 60 * time.Second
)

// LoadGeneratorConfig loads generator settings from the YAML config file.
func LoadGeneratorConfig(configPath string) (GeneratorConfig, error) {
	// fileConfig maps the YAML fields needed for generator settings.
	type fileConfig struct {
		Generator GeneratorConfig `yaml:"generator"`
	}

	result := GeneratorConfig{}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Generator
		}
	}

	if key := strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)); key != "" {
		result.APIKey = key
	}
	if strings.TrimSpace(result.Model) == "" {
		result.Model = DefaultGeneratorModel
	}
	if result.Timeout <= 0 {
		result.Timeout = DefaultGeneratorTimeout
	}
	return result, nil
}

// MailConfig holds SMTP settings for the verification mailer.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// VerifyURL is the base URL the emailed confirmation link points at.
	VerifyURL string `yaml:"verify-url"`
}

// Enabled reports whether the mailer is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != "" && strings.TrimSpace(m.From) != ""
}

// LoadMailConfig loads SMTP settings from the YAML config file.
func LoadMailConfig(configPath string) (MailConfig, error) {
	// fileConfig maps the YAML fields needed for mail settings.
	type fileConfig struct {
		Mail MailConfig `yaml:"mail"`
	}

	result := MailConfig{}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Mail
		}
	}
	if result.Port <= 0 {
		result.Port = 587
	}
	return result, nil
}

// RateLimitConfig holds per-address request ceilings and the optional
// shared Redis counter store.
type RateLimitConfig struct {
	PerDay         int `yaml:"per-day"`
	PerHour        int `yaml:"per-hour"`
	GeneratePerDay int `yaml:"generate-per-day"`

	RedisEnabled  bool   `yaml:"redis-enabled"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// Rate limit defaults applied when the config omits values.
const (
	DefaultRateLimitPerDay         = 200
	DefaultRateLimitPerHour        = 50
	DefaultRateLimitGeneratePerDay = 3
	DefaultRateLimitRedisPrefix    = "plotark:rl"
)

// LoadRateLimitConfig loads rate limit settings from the YAML config file.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	// fileConfig maps the YAML fields needed for rate limit settings.
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}

	result := RateLimitConfig{
		PerDay:         DefaultRateLimitPerDay,
		PerHour:        DefaultRateLimitPerHour,
		GeneratePerDay: DefaultRateLimitGeneratePerDay,
		RedisPrefix:    DefaultRateLimitRedisPrefix,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return result, nil
	}
	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return result, nil
	}
	if cfg.RateLimit.PerDay > 0 {
		result.PerDay = cfg.RateLimit.PerDay
	}
	if cfg.RateLimit.PerHour > 0 {
		result.PerHour = cfg.RateLimit.PerHour
	}
	if cfg.RateLimit.GeneratePerDay > 0 {
		result.GeneratePerDay = cfg.RateLimit.GeneratePerDay
	}
	result.RedisEnabled = cfg.RateLimit.RedisEnabled
	result.RedisAddr = strings.TrimSpace(cfg.RateLimit.RedisAddr)
	result.RedisPassword = strings.TrimSpace(cfg.RateLimit.RedisPassword)
	if cfg.RateLimit.RedisDB > 0 {
		result.RedisDB = cfg.RateLimit.RedisDB
	}
	if prefix := strings.TrimSpace(cfg.RateLimit.RedisPrefix); prefix != "" {
		result.RedisPrefix = prefix
	}
	return result, nil
}
