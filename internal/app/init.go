package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plotark/plotark/internal/db"
	"github.com/plotark/plotark/internal/models"
	"github.com/plotark/plotark/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// InitOptions contains parameters for first-run setup.
type InitOptions struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	GeneratorAPIKey  string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "plotark.db"

// BuildDSN builds a database DSN from the init options.
func BuildDSN(opts InitOptions) (string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.DatabaseType)) {
	case "postgres":
		sslMode := opts.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			opts.DatabaseUser,
			opts.DatabasePassword,
			opts.DatabaseHost,
			opts.DatabasePort,
			opts.DatabaseName,
			sslMode,
		), nil
	case "", "sqlite":
		path := strings.TrimSpace(opts.DatabasePath)
		if path == "" {
			path = defaultSQLitePath
		}
		return buildSQLiteDSN(path), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		err = sqlDB.Close()
		if err != nil {
			log.Errorf("sql db close error: %v", err)
		}
	}()
	return sqlDB.Ping()
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	DatabaseDSN string       `yaml:"database-dsn"`
	JWT         jwtCfg       `yaml:"jwt"`
	Admin       adminCfg     `yaml:"admin"`
	Generator   generatorCfg `yaml:"generator"`
	Mail        mailCfg      `yaml:"mail"`
	RateLimit   rateLimitCfg `yaml:"rate-limit"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
}

// adminCfg holds the static admin gate secret for the generated config file.
type adminCfg struct {
	Secret string `yaml:"secret"`
}

// generatorCfg holds upstream generator settings for the generated config file.
type generatorCfg struct {
	APIKey string `yaml:"api-key"`
	Model  string `yaml:"model"`
}

// mailCfg holds SMTP settings for the generated config file.
type mailCfg struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	VerifyURL string `yaml:"verify-url"`
}

// rateLimitCfg holds per-address ceilings for the generated config file.
type rateLimitCfg struct {
	PerDay         int `yaml:"per-day"`
	PerHour        int `yaml:"per-hour"`
	GeneratePerDay int `yaml:"generate-per-day"`
}

// generateSecret creates a random secret string.
func generateSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, generatorAPIKey string) error {
	cfg := configFile{
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: generateSecret(),
		},
		Admin: adminCfg{
			Secret: generateSecret(),
		},
		Generator: generatorCfg{
			APIKey: generatorAPIKey,
			Model:  "gemini-1.5-flash-latest",
		},
		Mail: mailCfg{
			Port: 587,
		},
		RateLimit: rateLimitCfg{
			PerDay:         200,
			PerHour:        50,
			GeneratePerDay: 3,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// SeedAccount creates a verified account with the given credit balance so a
// fresh install has a usable login. Existing accounts are left untouched.
func SeedAccount(conn *gorm.DB, email, password string, credits int) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("seed account: missing email or password")
	}

	var existing models.User
	errFind := conn.Where("email = ?", email).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("seed account: lookup: %w", errFind)
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}
	if credits < 0 {
		credits = 0
	}

	user := models.User{
		Email:      email,
		Password:   hashedPassword,
		IsVerified: true,
		Credits:    credits,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return fmt.Errorf("seed account: create: %w", errCreate)
	}
	log.Infof("seeded account %s with %d credits", email, credits)
	return nil
}
