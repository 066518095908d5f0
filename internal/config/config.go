// Package config loads settings from configs/.env and the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"erpcore/internal/backup"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Backup   BackupConfig
}

type ServerConfig struct {
	Port         string
	Mode         string // gin mode: debug, release or test
	AllowOrigins []string
}

// Dev reports whether the server runs outside release mode.
func (s ServerConfig) Dev() bool {
	return s.Mode != "release"
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

// StorageConfig points at the S3 compatible bucket backups are kept in. An empty
// Bucket disables stored backups.
type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

type BackupConfig struct {
	Format        backup.Format
	AtomicRestore bool
	FetchTries    uint
	RetryInterval time.Duration
}

const devJWTSecret = "default_super_secret_key"

// Load reads envFile (missing files are ignored) and then the process environment,
// which takes precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("STORAGE_PATH_STYLE", true)
	v.SetDefault("BACKUP_FORMAT", "zip")
	v.SetDefault("BACKUP_ATOMIC_RESTORE", false)
	v.SetDefault("BACKUP_FETCH_TRIES", 3)
	v.SetDefault("BACKUP_RETRY_INTERVAL", "200ms")

	mode := v.GetString("GIN_MODE")
	secret := v.GetString("JWT_SECRET")
	if secret == "" {
		if mode == "release" {
			return nil, fmt.Errorf("JWT_SECRET is required in release mode")
		}
		secret = devJWTSecret
	}

	format, err := backup.ParseFormat(v.GetString("BACKUP_FORMAT"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKUP_FORMAT: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			Mode:         mode,
			AllowOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Auth: AuthConfig{
			JWTSecret: []byte(secret),
			TokenTTL:  v.GetDuration("JWT_TTL"),
		},
		Storage: StorageConfig{
			Bucket:        v.GetString("STORAGE_BUCKET"),
			Region:        v.GetString("STORAGE_REGION"),
			Endpoint:      v.GetString("STORAGE_ENDPOINT"),
			AccessKey:     v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:     v.GetString("STORAGE_SECRET_KEY"),
			PublicBaseURL: v.GetString("STORAGE_PUBLIC_URL"),
			UsePathStyle:  v.GetBool("STORAGE_PATH_STYLE"),
		},
		Backup: BackupConfig{
			Format:        format,
			AtomicRestore: v.GetBool("BACKUP_ATOMIC_RESTORE"),
			FetchTries:    v.GetUint("BACKUP_FETCH_TRIES"),
			RetryInterval: v.GetDuration("BACKUP_RETRY_INTERVAL"),
		},
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
