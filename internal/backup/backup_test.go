package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"erpcore/internal/model"
	"erpcore/internal/repository"
	"erpcore/internal/repository/memory"
	"erpcore/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 123000000, time.UTC)

type fixture struct {
	tenant    uuid.UUID
	customers []model.Customer
	products  []model.Product
	sale      model.Sale
}

func newStore() *memory.RecordStore {
	store := memory.NewRecordStore()
	store.References(model.TableSales, "customer_id", model.TableCustomers)
	store.References(model.TableSales, "product_id", model.TableProducts)
	store.References(model.TableProducts, "category_id", model.TableCategories)
	return store
}

// seedTenant creates a tenant with 3 customers, 2 products and 1 sale, plus one
// customer of another tenant.
func seedTenant(t *testing.T, store *memory.RecordStore) fixture {
	t.Helper()
	f := fixture{tenant: uuid.New()}
	other := uuid.New()

	require.NoError(t, store.Seed(model.TableCompanies, []model.Company{
		{ID: f.tenant, Name: "Acme Tools Ltda"},
		{ID: other, Name: "Other"},
	}))

	for i, name := range []string{"Ana", "Bruno", "Carla"} {
		f.customers = append(f.customers, model.Customer{
			ID: uuid.New(), CompanyID: f.tenant, Name: name, Email: name + "@example.com",
			Phone: string(rune('1' + i)),
		})
	}
	require.NoError(t, store.Seed(model.TableCustomers, f.customers))
	require.NoError(t, store.Seed(model.TableCustomers, model.Customer{ID: uuid.New(), CompanyID: other, Name: "Zed"}))

	category := model.Category{ID: uuid.New(), CompanyID: f.tenant, Name: "Hardware", Kind: "product"}
	require.NoError(t, store.Seed(model.TableCategories, category))

	f.products = []model.Product{
		{ID: uuid.New(), CompanyID: f.tenant, CategoryID: &category.ID, SKU: "HM-1", Name: "Hammer", Price: decimal.RequireFromString("19.90"), Stock: 4},
		{ID: uuid.New(), CompanyID: f.tenant, SKU: "SC-2", Name: "Screwdriver", Price: decimal.NewFromInt(7), Stock: 12},
	}
	require.NoError(t, store.Seed(model.TableProducts, f.products))

	f.sale = model.Sale{
		ID: uuid.New(), CompanyID: f.tenant, CustomerID: f.customers[1].ID, ProductID: f.products[0].ID,
		Quantity: 2, UnitPrice: decimal.RequireFromString("19.90"), Total: decimal.RequireFromString("39.80"),
		Status: model.StatusCompleted, SoldAt: fixedNow,
	}
	require.NoError(t, store.Seed(model.TableSales, f.sale))
	return f
}

func newService(store repository.RecordStore, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	return NewService(store, cfg)
}

func tenantRows(t *testing.T, store repository.RecordStore, table string, tenant uuid.UUID) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, store.Select(context.Background(), table, repository.Where(repository.Eq("company_id", tenant)), &rows))
	return rows
}

func wipeTenant(t *testing.T, store *memory.RecordStore, tenant uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tables := ReplayOrder()
	for i := len(tables) - 1; i >= 0; i-- {
		require.NoError(t, store.Delete(ctx, tables[i], repository.Eq("company_id", tenant)))
	}
}

func TestCreateBackupMissingTenant(t *testing.T) {
	store := newStore()
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, ErrMissingTenant)
	assert.Nil(t, res)
	assert.Empty(t, store.Calls())
}

func TestCreateBackupContents(t *testing.T) {
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(context.Background(), f.tenant)
	require.NoError(t, err)

	assert.Equal(t, "backup_acme_tools_ltda_2024-03-05T14-07-09-123Z.zip", res.Filename)
	assert.Equal(t, len(res.Data), res.Size)
	assert.Equal(t, 3, res.Counts[model.TableCustomers])
	assert.Equal(t, 2, res.Counts[model.TableProducts])
	assert.Equal(t, 1, res.Counts[model.TableSales])
	assert.Empty(t, res.URL)

	a, err := Decode(res.Data)
	require.NoError(t, err)
	assert.Equal(t, f.tenant, a.Company.ID)
	assert.Equal(t, ArchiveVersion, a.Version)
	assert.Len(t, a.Customers, 3)
	assert.Len(t, a.Products, 2)
	require.Len(t, a.Sales, 1)
	assert.Equal(t, f.sale.ID, a.Sales[0].ID)
	assert.Equal(t, f.sale.CustomerID, a.Sales[0].CustomerID)
	assert.Equal(t, f.sale.ProductID, a.Sales[0].ProductID)
	assert.NotNil(t, a.Employees)
	assert.Empty(t, a.Employees)

	for _, c := range a.Customers {
		assert.Equal(t, f.tenant, c.CompanyID)
	}
	assert.Equal(t, 0, len(store.WriteCalls()))
}

func TestRoundTripRestoresSameRows(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	before := make(map[string][]map[string]any)
	for _, table := range ReplayOrder() {
		before[table] = tenantRows(t, store, table, f.tenant)
	}

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)

	wipeTenant(t, store, f.tenant)
	assert.Empty(t, tenantRows(t, store, model.TableCustomers, f.tenant))
	assert.Equal(t, 1, store.Count(model.TableCustomers), "other tenant is untouched")

	require.NoError(t, svc.Restore(ctx, res.Data, f.tenant))

	for _, table := range ReplayOrder() {
		assert.ElementsMatch(t, before[table], tenantRows(t, store, table, f.tenant), table)
	}

	var sales []model.Sale
	require.NoError(t, store.Select(ctx, model.TableSales, repository.Where(repository.Eq("company_id", f.tenant)), &sales))
	require.Len(t, sales, 1)
	assert.Equal(t, f.customers[1].ID, sales[0].CustomerID)
	assert.Equal(t, f.products[0].ID, sales[0].ProductID)
	assert.True(t, f.sale.Total.Equal(sales[0].Total))
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)

	require.NoError(t, svc.Restore(ctx, res.Data, f.tenant))
	require.NoError(t, svc.Restore(ctx, res.Data, f.tenant))
	assert.Len(t, tenantRows(t, store, model.TableCustomers, f.tenant), 3)
	assert.Len(t, tenantRows(t, store, model.TableSales, f.tenant), 1)
}

func TestRestoreUpsertsInDependencyOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	store.ResetCalls()

	require.NoError(t, svc.Restore(ctx, res.Data, f.tenant))

	var tables []string
	for _, c := range store.WriteCalls() {
		assert.Equal(t, "upsert", c.Op)
		tables = append(tables, c.Table)
	}
	assert.Equal(t, []string{
		model.TableCustomers, model.TableCategories, model.TableProducts, model.TableSales,
	}, tables)
}

func TestRestoreTenantMismatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	store.ResetCalls()

	err = svc.Restore(ctx, res.Data, uuid.New())
	require.ErrorIs(t, err, ErrTenantMismatch)
	assert.Empty(t, store.Calls())
}

func TestRestoreCorruptArchiveWritesNothing(t *testing.T) {
	store := newStore()
	svc := newService(store, Config{})
	tenant := uuid.New()

	for name, data := range map[string][]byte{
		"not json":  []byte("this is not a backup"),
		"empty":     nil,
		"bad zip":   []byte("PK\x03\x04garbage"),
		"bad zstd":  {0x28, 0xb5, 0x2f, 0xfd, 0x00, 0x01},
		"truncated": []byte(`{"company": {"id": "` + tenant.String() + `"`),
	} {
		t.Run(name, func(t *testing.T) {
			err := svc.Restore(context.Background(), data, tenant)
			require.ErrorIs(t, err, ErrCorruptArchive)
			assert.Empty(t, store.Calls())
		})
	}
}

func TestRestoreMissingTenant(t *testing.T) {
	store := newStore()
	svc := newService(store, Config{})
	err := svc.Restore(context.Background(), []byte("{}"), uuid.Nil)
	require.ErrorIs(t, err, ErrMissingTenant)
	assert.Empty(t, store.Calls())
}

func TestRestoreStopsAtFailingTable(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	category := uuid.New()
	a := &Archive{
		Company:        &model.Company{ID: tenant, Name: "Acme"},
		Employees:      []model.Employee{{ID: uuid.New(), CompanyID: tenant, Name: "Eva"}},
		Customers:      []model.Customer{{ID: uuid.New(), CompanyID: tenant, Name: "Ana"}},
		Suppliers:      []model.Supplier{{ID: uuid.New(), CompanyID: tenant, Name: "Parts Co"}},
		Categories:     []model.Category{{ID: category, CompanyID: tenant, Name: "Tools"}},
		Products:       []model.Product{{ID: uuid.New(), CompanyID: tenant, Name: "Hammer", CategoryID: &category}},
		Services:       []model.Service{{ID: uuid.New(), CompanyID: tenant, Name: "Repair"}},
		Sales:          []model.Sale{{ID: uuid.New(), CompanyID: tenant, CustomerID: uuid.New(), ProductID: uuid.New()}},
		ServiceOrders:  []model.ServiceOrder{{ID: uuid.New(), CompanyID: tenant, CustomerID: uuid.New(), ServiceID: uuid.New()}},
		ShippingOrders: []model.ShippingOrder{{ID: uuid.New(), CompanyID: tenant, CustomerID: uuid.New(), Address: "Rua 1"}},
	}
	data, err := Encode(a, "backup_acme.json", FormatZip)
	require.NoError(t, err)

	store := memory.NewRecordStore()
	store.FailOn(model.TableProducts, "upsert", errors.New("connection reset"))
	svc := newService(store, Config{})

	err = svc.Restore(ctx, data, tenant)
	require.Error(t, err)

	var partial *PartialRestoreError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, model.TableProducts, partial.Failed)
	assert.Equal(t, []string{
		model.TableEmployees, model.TableCustomers, model.TableSuppliers, model.TableCategories,
	}, partial.Completed)

	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, "upsert", tableErr.Op)

	for _, table := range []string{model.TableEmployees, model.TableCustomers, model.TableSuppliers, model.TableCategories} {
		assert.Equal(t, 1, store.Count(table), table)
	}
	for _, table := range []string{model.TableProducts, model.TableServices, model.TableSales, model.TableServiceOrders, model.TableShippingOrders} {
		assert.Equal(t, 0, store.Count(table), table)
	}
}

func TestRestoreAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	wipeTenant(t, store, f.tenant)

	store.FailOn(model.TableSales, "upsert", errors.New("constraint violated"))
	atomic := newService(store, Config{Atomic: true, TxManager: memory.NewTransactionManager(store)})

	err = atomic.Restore(ctx, res.Data, f.tenant)
	require.Error(t, err)
	var partial *PartialRestoreError
	assert.False(t, errors.As(err, &partial))
	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, model.TableSales, tableErr.Table)

	assert.Empty(t, tenantRows(t, store, model.TableCustomers, f.tenant))
	assert.Empty(t, tenantRows(t, store, model.TableProducts, f.tenant))
}

func TestAtomicRestoreWithoutTransactionsWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)

	res, err := newService(store, Config{}).CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	wipeTenant(t, store, f.tenant)
	store.ResetCalls()

	svc := newService(store, Config{Atomic: true})
	err = svc.Restore(ctx, res.Data, f.tenant)
	require.ErrorIs(t, err, ErrNoTransactions)
	var partial *PartialRestoreError
	assert.False(t, errors.As(err, &partial))
	assert.Empty(t, store.WriteCalls())
	assert.Empty(t, tenantRows(t, store, model.TableCustomers, f.tenant))
}

func TestCreateBackupFetchFailureReturnsNoArchive(t *testing.T) {
	store := newStore()
	f := seedTenant(t, store)
	objects := storage.NewMemoryStore("http://files")
	store.FailOn(model.TableSuppliers, "select", errors.New("permission denied for table suppliers"))
	svc := newService(store, Config{Objects: objects, Bucket: "backups"})

	res, err := svc.CreateBackup(context.Background(), f.tenant)
	require.Error(t, err)
	assert.Nil(t, res)

	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, model.TableSuppliers, tableErr.Table)
	assert.Equal(t, "fetch", tableErr.Op)

	stored, err := objects.List(context.Background(), "backups", "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateBackupUnknownCompany(t *testing.T) {
	svc := newService(newStore(), Config{})
	_, err := svc.CreateBackup(context.Background(), uuid.New())
	require.ErrorIs(t, err, repository.ErrNotFound)
	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, model.TableCompanies, tableErr.Table)
}

// flakyStore fails the first n selects of one table with a transient error.
type flakyStore struct {
	repository.RecordStore
	mu       sync.Mutex
	table    string
	failures int
}

func (s *flakyStore) Select(ctx context.Context, table string, q repository.Query, dest any) error {
	s.mu.Lock()
	if table == s.table && s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return &repository.StoreError{Table: table, Op: "select", Err: repository.ErrTransient}
	}
	s.mu.Unlock()
	return s.RecordStore.Select(ctx, table, q, dest)
}

func TestCreateBackupRetriesTransientErrors(t *testing.T) {
	store := newStore()
	f := seedTenant(t, store)
	flaky := &flakyStore{RecordStore: store, table: model.TableCustomers, failures: 2}

	svc := newService(flaky, Config{FetchTries: 3, RetryInterval: time.Millisecond})
	res, err := svc.CreateBackup(context.Background(), f.tenant)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Counts[model.TableCustomers])

	flaky.failures = 3
	_, err = svc.CreateBackup(context.Background(), f.tenant)
	require.ErrorIs(t, err, repository.ErrTransient)
}

type blockingStore struct {
	repository.RecordStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Select(ctx context.Context, table string, q repository.Query, dest any) error {
	if table == model.TableCompanies {
		close(s.entered)
		<-s.release
	}
	return s.RecordStore.Select(ctx, table, q, dest)
}

func TestConcurrentOperationsOnSameTenant(t *testing.T) {
	store := newStore()
	f := seedTenant(t, store)
	blocking := &blockingStore{RecordStore: store, entered: make(chan struct{}), release: make(chan struct{})}
	svc := newService(blocking, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.CreateBackup(context.Background(), f.tenant)
		done <- err
	}()
	<-blocking.entered

	_, err := svc.CreateBackup(context.Background(), f.tenant)
	require.ErrorIs(t, err, ErrOperationInProgress)
	err = svc.Restore(context.Background(), []byte("{}"), f.tenant)
	require.ErrorIs(t, err, ErrOperationInProgress)

	close(blocking.release)
	require.NoError(t, <-done)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ uuid.UUID, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func TestStoredBackups(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	objects := storage.NewMemoryStore("http://files")
	notifier := &recordingNotifier{}
	svc := newService(store, Config{Objects: objects, Bucket: "backups", Notifier: notifier})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.String()+"/"+res.Filename, res.Path)
	assert.Equal(t, "http://files/backups/"+res.Path, res.URL)
	assert.Equal(t, "application/zip", objects.ContentType("backups", res.Path))

	list, err := svc.List(ctx, f.tenant)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Filename, list[0].Filename)
	assert.Equal(t, int64(res.Size), list[0].Size)

	other, err := svc.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)

	wipeTenant(t, store, f.tenant)
	require.NoError(t, svc.RestoreFromStorage(ctx, res.Filename, f.tenant))
	assert.Len(t, tenantRows(t, store, model.TableCustomers, f.tenant), 3)

	err = svc.RestoreFromStorage(ctx, "../"+res.Filename, f.tenant)
	require.ErrorIs(t, err, ErrInvalidFilename)
	err = svc.RestoreFromStorage(ctx, "backup_missing.zip", f.tenant)
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	require.NoError(t, svc.Delete(ctx, f.tenant, res.Filename))
	list, err = svc.List(ctx, f.tenant)
	require.NoError(t, err)
	assert.Empty(t, list)

	var stages []string
	for _, ev := range notifier.events {
		stages = append(stages, ev.Operation+":"+ev.Stage)
	}
	assert.Contains(t, stages, "backup:completed")
	assert.Contains(t, stages, "restore:table")
	assert.Contains(t, stages, "restore:completed")
}

func TestStorageDisabled(t *testing.T) {
	svc := newService(newStore(), Config{})
	_, err := svc.List(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrStorageDisabled)
	err = svc.RestoreFromStorage(context.Background(), "backup_a.zip", uuid.New())
	require.ErrorIs(t, err, ErrStorageDisabled)
}

func TestZstdFormatRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	f := seedTenant(t, store)
	svc := newService(store, Config{Format: FormatZstd})

	res, err := svc.CreateBackup(ctx, f.tenant)
	require.NoError(t, err)
	assert.Equal(t, "backup_acme_tools_ltda_2024-03-05T14-07-09-123Z.json.zst", res.Filename)

	wipeTenant(t, store, f.tenant)
	require.NoError(t, svc.Restore(ctx, res.Data, f.tenant))
	assert.Len(t, tenantRows(t, store, model.TableProducts, f.tenant), 2)
}
