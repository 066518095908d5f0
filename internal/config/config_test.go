package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"erpcore/internal/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Server.Dev())
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.AllowOrigins)
	assert.Equal(t, []byte(devJWTSecret), cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, backup.FormatZip, cfg.Backup.Format)
	assert.False(t, cfg.Backup.AtomicRestore)
	assert.Equal(t, uint(3), cfg.Backup.FetchTries)
	assert.Equal(t, 200*time.Millisecond, cfg.Backup.RetryInterval)
}

func TestLoadFromEnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORAGE_BUCKET=erp-backups\nBACKUP_FORMAT=zstd\n"), 0o600))

	t.Setenv("STORAGE_BUCKET", "")
	os.Unsetenv("STORAGE_BUCKET")
	t.Setenv("BACKUP_FORMAT", "")
	os.Unsetenv("BACKUP_FORMAT")
	t.Setenv("BACKUP_ATOMIC_RESTORE", "true")
	t.Setenv("CORS_ORIGINS", "https://erp.example.com, ,https://admin.example.com")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "erp-backups", cfg.Storage.Bucket)
	assert.Equal(t, backup.FormatZstd, cfg.Backup.Format)
	assert.True(t, cfg.Backup.AtomicRestore)
	assert.Equal(t, []string{"https://erp.example.com", "https://admin.example.com"}, cfg.Server.AllowOrigins)
}

func TestLoadRequiresSecretInRelease(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Server.Dev())
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	t.Setenv("BACKUP_FORMAT", "rar")
	_, err := Load("")
	require.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "erp", Password: "p@ss word", Name: "erp", SSLMode: "require"}
	assert.Equal(t, "postgres://erp:p%40ss%20word@db:5433/erp?sslmode=require", d.DSN())
}
