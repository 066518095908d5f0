package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"erpcore/internal/model"
	"erpcore/internal/repository"
	"erpcore/internal/storage"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result describes a created archive.
type Result struct {
	Filename    string         `json:"filename"`
	Size        int            `json:"size"`
	ContentType string         `json:"content_type"`
	GeneratedAt time.Time      `json:"generated_at"`
	Counts      map[string]int `json:"counts"`
	Path        string         `json:"path,omitempty"`
	URL         string         `json:"url,omitempty"`
	Data        []byte         `json:"-"`
}

// StoredBackup is an archive kept in object storage.
type StoredBackup struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// CreateBackup reads every table of the tenant and packs it into an archive. Nothing
// is returned or stored unless every table was read.
func (s *Service) CreateBackup(ctx context.Context, tenantID uuid.UUID) (*Result, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	release, err := s.lock(tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := zerolog.Ctx(ctx).With().Str("tenant_id", tenantID.String()).Logger()
	s.notify(tenantID, Event{Operation: "backup", Stage: "started"})

	res, err := s.createBackup(ctx, tenantID)
	if err != nil {
		logger.Error().Err(err).Msg("backup failed")
		s.notify(tenantID, Event{Operation: "backup", Stage: "failed", Error: err.Error()})
		return nil, err
	}

	logger.Info().Str("filename", res.Filename).Int("size", res.Size).Msg("backup created")
	s.notify(tenantID, Event{Operation: "backup", Stage: "completed", Filename: res.Filename})
	return res, nil
}

func (s *Service) createBackup(ctx context.Context, tenantID uuid.UUID) (*Result, error) {
	a, err := s.collect(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	a.GeneratedAt = s.cfg.Now().UTC()
	a.Version = ArchiveVersion

	entry := EntryName(a.Company.Name, a.GeneratedAt)
	data, err := Encode(a, entry, s.cfg.Format)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Filename:    Filename(entry, s.cfg.Format),
		Size:        len(data),
		ContentType: s.cfg.Format.ContentType(),
		GeneratedAt: a.GeneratedAt,
		Counts:      a.Counts(),
		Data:        data,
	}

	if s.cfg.Objects != nil {
		res.Path = storage.JoinPath(tenantID.String(), res.Filename)
		if err := s.cfg.Objects.Upload(ctx, s.cfg.Bucket, res.Path, bytes.NewReader(data), int64(len(data)), s.cfg.Format.ContentType()); err != nil {
			return nil, fmt.Errorf("failed to store backup: %w", err)
		}
		res.URL = s.cfg.Objects.PublicURL(s.cfg.Bucket, res.Path)
	}
	return res, nil
}

// collect fetches all tables concurrently. The first failure cancels the rest.
func (s *Service) collect(ctx context.Context, tenantID uuid.UUID) (*Archive, error) {
	byTenant := repository.Query{
		Filters: []repository.Filter{repository.Eq("company_id", tenantID)},
		Order:   []repository.Order{{Column: "id"}},
	}
	a := &Archive{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		companies, err := fetchRows[model.Company](gctx, s, model.TableCompanies,
			repository.Query{Filters: []repository.Filter{repository.Eq("id", tenantID)}, Limit: 1})
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			return &TableError{Table: model.TableCompanies, Op: "fetch", Err: repository.ErrNotFound}
		}
		a.Company = &companies[0]
		return nil
	})
	g.Go(func() (err error) {
		a.Employees, err = fetchRows[model.Employee](gctx, s, model.TableEmployees, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Customers, err = fetchRows[model.Customer](gctx, s, model.TableCustomers, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Suppliers, err = fetchRows[model.Supplier](gctx, s, model.TableSuppliers, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Categories, err = fetchRows[model.Category](gctx, s, model.TableCategories, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Products, err = fetchRows[model.Product](gctx, s, model.TableProducts, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Services, err = fetchRows[model.Service](gctx, s, model.TableServices, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.Sales, err = fetchRows[model.Sale](gctx, s, model.TableSales, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.ServiceOrders, err = fetchRows[model.ServiceOrder](gctx, s, model.TableServiceOrders, byTenant)
		return err
	})
	g.Go(func() (err error) {
		a.ShippingOrders, err = fetchRows[model.ShippingOrder](gctx, s, model.TableShippingOrders, byTenant)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}

// fetchRows selects table, retrying transient store errors. The result is never nil.
func fetchRows[T any](ctx context.Context, s *Service, table string, q repository.Query) ([]T, error) {
	logger := zerolog.Ctx(ctx)
	rows, err := backoff.Retry(ctx, func() ([]T, error) {
		var out []T
		if err := s.store.Select(ctx, table, q, &out); err != nil {
			if repository.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out, nil
	}, append(s.retryOptions(), backoff.WithNotify(func(err error, next time.Duration) {
		logger.Warn().Err(err).Str("table", table).Dur("retry_in", next).Msg("retrying backup fetch")
	}))...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, &TableError{Table: table, Op: "fetch", Err: err}
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

var storedName = regexp.MustCompile(`^backup_[^/\\]+(\.zip|\.json\.zst)$`)

func validFilename(name string) error {
	if !storedName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// List returns the tenant's stored archives, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]StoredBackup, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	if s.cfg.Objects == nil {
		return nil, ErrStorageDisabled
	}

	objects, err := s.cfg.Objects.List(ctx, s.cfg.Bucket, tenantID.String()+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	out := make([]StoredBackup, 0, len(objects))
	for _, obj := range objects {
		name := obj.Path[strings.LastIndex(obj.Path, "/")+1:]
		if validFilename(name) != nil {
			continue
		}
		out = append(out, StoredBackup{
			Filename:  name,
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
			URL:       s.cfg.Objects.PublicURL(s.cfg.Bucket, obj.Path),
		})
	}
	slices.SortFunc(out, func(a, b StoredBackup) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Filename, a.Filename)
	})
	return out, nil
}

// Download returns the bytes of a stored archive.
func (s *Service) Download(ctx context.Context, tenantID uuid.UUID, filename string) ([]byte, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	if err := validFilename(filename); err != nil {
		return nil, err
	}
	if s.cfg.Objects == nil {
		return nil, ErrStorageDisabled
	}
	data, err := s.cfg.Objects.Download(ctx, s.cfg.Bucket, storage.JoinPath(tenantID.String(), filename))
	if err != nil {
		return nil, fmt.Errorf("failed to download backup: %w", err)
	}
	return data, nil
}

// Delete removes a stored archive.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, filename string) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if err := validFilename(filename); err != nil {
		return err
	}
	if s.cfg.Objects == nil {
		return ErrStorageDisabled
	}
	if err := s.cfg.Objects.Remove(ctx, s.cfg.Bucket, storage.JoinPath(tenantID.String(), filename)); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	return nil
}
