// Package app wires the stores and services shared by the API server and erpctl.
package app

import (
	"context"
	"fmt"

	"erpcore/internal/backup"
	"erpcore/internal/config"
	"erpcore/internal/database"
	"erpcore/internal/repository"
	"erpcore/internal/service"
	"erpcore/internal/storage"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// App holds the long lived dependencies built from a Config.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Store   repository.RecordStore
	Tx      repository.TransactionManager
	Objects storage.ObjectStore // nil when storage is disabled

	Audit service.AuditService
	Roles service.RoleService
}

// Open connects to the database, migrates the schema and builds the shared services.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := database.NewConnection(cfg.Database.DSN(), logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	logger.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("connected to PostgreSQL")

	a := &App{
		Config: cfg,
		DB:     db,
		Store:  repository.NewRecordStore(db),
		Tx:     repository.NewTransactionManager(db),
	}
	a.Audit = service.NewAuditService(repository.NewAuditRepository(db))
	a.Roles = service.NewRoleService(repository.NewRoleRepository(a.Store), a.Tx, a.Audit)

	if cfg.Storage.Enabled() {
		objects, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:        cfg.Storage.Region,
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			UsePathStyle:  cfg.Storage.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up backup storage: %w", err)
		}
		a.Objects = objects
		logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("backup storage enabled")
	}

	return a, nil
}

// Backups builds the backup service. notifier may be nil.
func (a *App) Backups(notifier backup.Notifier) *backup.Service {
	cfg := backup.Config{
		Format:        a.Config.Backup.Format,
		Atomic:        a.Config.Backup.AtomicRestore,
		TxManager:     a.Tx,
		FetchTries:    a.Config.Backup.FetchTries,
		RetryInterval: a.Config.Backup.RetryInterval,
		Notifier:      notifier,
	}
	if a.Objects != nil {
		cfg.Objects = a.Objects
		cfg.Bucket = a.Config.Storage.Bucket
	}
	return backup.NewService(a.Store, cfg)
}

// Close releases the connection pool.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
