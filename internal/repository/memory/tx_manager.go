package memory

import (
	"context"
	"maps"
	"slices"

	"erpcore/internal/repository"
)

// TransactionManager gives a RecordStore all-or-nothing semantics by snapshotting
// every table before fn runs and restoring the snapshot when fn fails. Writes from
// other goroutines during fn are not isolated.
type TransactionManager struct {
	store *RecordStore
}

var _ repository.TransactionManager = (*TransactionManager)(nil)

func NewTransactionManager(store *RecordStore) *TransactionManager {
	return &TransactionManager{store: store}
}

func (t *TransactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	tables, order := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(tables, order)
		return err
	}
	return nil
}

func (s *RecordStore) snapshot() (map[string]map[string]row, map[string][]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make(map[string]map[string]row, len(s.tables))
	for name, rows := range s.tables {
		copied := make(map[string]row, len(rows))
		for key, r := range rows {
			copied[key] = maps.Clone(r)
		}
		tables[name] = copied
	}
	order := make(map[string][]string, len(s.order))
	for name, keys := range s.order {
		order[name] = slices.Clone(keys)
	}
	return tables, order
}

func (s *RecordStore) restore(tables map[string]map[string]row, order map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = tables
	s.order = order
}
