// Package backup exports a tenant's data to a compressed archive and replays an
// archive back into the record store.
package backup

import (
	"time"

	"erpcore/internal/repository"
	"erpcore/internal/storage"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Event is a progress notification for a running backup or restore.
type Event struct {
	Operation string `json:"operation"` // "backup" or "restore"
	Stage     string `json:"stage"`     // "started", "table", "completed", "failed"
	Table     string `json:"table,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier receives progress events for a tenant.
type Notifier interface {
	Notify(tenantID uuid.UUID, ev Event)
}

// Config tunes a Service. The zero value stores nothing, retries nothing and restores
// with partial progress.
type Config struct {
	// Objects and Bucket enable uploading archives and restoring stored ones.
	Objects storage.ObjectStore
	Bucket  string

	Format Format

	// Atomic wraps the whole restore replay in one transaction from TxManager, which
	// must then be set.
	Atomic    bool
	TxManager repository.TransactionManager

	// FetchTries bounds attempts per table read or write on transient store errors.
	// 0 means 1.
	FetchTries    uint
	RetryInterval time.Duration

	Locks    *TenantLocks
	Notifier Notifier
	Now      func() time.Time
}

// Service creates and restores tenant backups.
type Service struct {
	store repository.RecordStore
	cfg   Config
}

func NewService(store repository.RecordStore, cfg Config) *Service {
	if cfg.Format == "" {
		cfg.Format = FormatZip
	}
	if cfg.FetchTries == 0 {
		cfg.FetchTries = 1
	}
	if cfg.Locks == nil {
		cfg.Locks = NewTenantLocks()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: store, cfg: cfg}
}

func (s *Service) notify(tenantID uuid.UUID, ev Event) {
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(tenantID, ev)
	}
}

func (s *Service) lock(tenantID uuid.UUID) (func(), error) {
	release, ok := s.cfg.Locks.TryLock(tenantID)
	if !ok {
		return nil, ErrOperationInProgress
	}
	return release, nil
}

func (s *Service) retryOptions() []backoff.RetryOption {
	opts := []backoff.RetryOption{backoff.WithMaxTries(s.cfg.FetchTries)}
	if s.cfg.RetryInterval > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.RetryInterval
		opts = append(opts, backoff.WithBackOff(b))
	}
	return opts
}
