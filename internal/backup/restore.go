package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erpcore/internal/model"
	"erpcore/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type step struct {
	table string
	rows  any
	count int
}

// replayOrder is the order tables are written in. Later tables reference earlier ones.
func (a *Archive) replayOrder() []step {
	return []step{
		{model.TableEmployees, a.Employees, len(a.Employees)},
		{model.TableCustomers, a.Customers, len(a.Customers)},
		{model.TableSuppliers, a.Suppliers, len(a.Suppliers)},
		{model.TableCategories, a.Categories, len(a.Categories)},
		{model.TableProducts, a.Products, len(a.Products)},
		{model.TableServices, a.Services, len(a.Services)},
		{model.TableSales, a.Sales, len(a.Sales)},
		{model.TableServiceOrders, a.ServiceOrders, len(a.ServiceOrders)},
		{model.TableShippingOrders, a.ShippingOrders, len(a.ShippingOrders)},
	}
}

// ReplayOrder lists the restored tables in write order.
func ReplayOrder() []string {
	steps := (&Archive{}).replayOrder()
	tables := make([]string, len(steps))
	for i, st := range steps {
		tables[i] = st.table
	}
	return tables
}

// Restore validates data and upserts its rows into tenantID. Corrupt archives and
// archives of another tenant are rejected before any write.
//
// Without atomic mode a failing table stops the restore with a *PartialRestoreError;
// tables written before it stay written. In atomic mode the failure rolls everything
// back and the table error is returned. Atomic mode without a TransactionManager
// fails with ErrNoTransactions and writes nothing.
func (s *Service) Restore(ctx context.Context, data []byte, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	release, err := s.lock(tenantID)
	if err != nil {
		return err
	}
	defer release()

	return s.restore(ctx, data, tenantID)
}

// RestoreFromStorage restores a stored archive of the tenant.
func (s *Service) RestoreFromStorage(ctx context.Context, filename string, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	release, err := s.lock(tenantID)
	if err != nil {
		return err
	}
	defer release()

	data, err := s.Download(ctx, tenantID, filename)
	if err != nil {
		return err
	}
	return s.restore(ctx, data, tenantID)
}

func (s *Service) restore(ctx context.Context, data []byte, tenantID uuid.UUID) error {
	logger := zerolog.Ctx(ctx).With().Str("tenant_id", tenantID.String()).Logger()
	s.notify(tenantID, Event{Operation: "restore", Stage: "started"})

	err := s.validateAndReplay(ctx, data, tenantID)
	if err != nil {
		logger.Error().Err(err).Msg("restore failed")
		s.notify(tenantID, Event{Operation: "restore", Stage: "failed", Error: err.Error()})
		return err
	}

	logger.Info().Msg("restore completed")
	s.notify(tenantID, Event{Operation: "restore", Stage: "completed"})
	return nil
}

func (s *Service) validateAndReplay(ctx context.Context, data []byte, tenantID uuid.UUID) error {
	if s.cfg.Atomic && s.cfg.TxManager == nil {
		return ErrNoTransactions
	}
	a, err := Decode(data)
	if err != nil {
		return err
	}
	if a.Company.ID != tenantID {
		return fmt.Errorf("%w: archive company %s, current tenant %s", ErrTenantMismatch, a.Company.ID, tenantID)
	}

	if s.cfg.Atomic {
		err := s.cfg.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := s.replay(txCtx, tenantID, a, false)
			return err
		})
		if err != nil {
			return fmt.Errorf("restore rolled back: %w", err)
		}
		return nil
	}

	completed, err := s.replay(ctx, tenantID, a, true)
	if err != nil {
		partial := &PartialRestoreError{Completed: completed, Err: err}
		var te *TableError
		if errors.As(err, &te) {
			partial.Failed = te.Table
		}
		return partial
	}
	return nil
}

// replay upserts each table in order and stops at the first failure. It returns the
// tables fully written so far.
func (s *Service) replay(ctx context.Context, tenantID uuid.UUID, a *Archive, retry bool) ([]string, error) {
	logger := zerolog.Ctx(ctx)
	completed := make([]string, 0, 9)

	for _, st := range a.replayOrder() {
		if err := ctx.Err(); err != nil {
			return completed, &TableError{Table: st.table, Op: "upsert", Err: err}
		}
		if st.count > 0 {
			if err := s.upsert(ctx, st, retry); err != nil {
				return completed, &TableError{Table: st.table, Op: "upsert", Err: err}
			}
		}
		completed = append(completed, st.table)
		logger.Debug().Str("table", st.table).Int("rows", st.count).Msg("table restored")
		s.notify(tenantID, Event{Operation: "restore", Stage: "table", Table: st.table, Rows: st.count})
	}
	return completed, nil
}

// upsert writes one table. Upserts are idempotent so transient failures are retried,
// except inside a transaction where the failed statement has already aborted it.
func (s *Service) upsert(ctx context.Context, st step, retry bool) error {
	if !retry {
		return s.store.Upsert(ctx, st.table, st.rows, "id")
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.store.Upsert(ctx, st.table, st.rows, "id")
		if err != nil && !repository.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, append(s.retryOptions(), backoff.WithNotify(func(err error, next time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("table", st.table).Dur("retry_in", next).Msg("retrying restore upsert")
	}))...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
