// Package memory provides an in-memory repository.RecordStore for tests. Data is lost
// when the process exits.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"erpcore/internal/repository"
)

// Call records one RecordStore invocation.
type Call struct {
	Table string
	Op    string
}

type row = map[string]any

type reference struct {
	column   string
	refTable string
}

// RecordStore keeps every table as JSON objects keyed by primary key.
type RecordStore struct {
	mu sync.RWMutex

	tables      map[string]map[string]row
	order       map[string][]string
	primaryKeys map[string][]string
	references  map[string][]reference
	failures    map[string]error
	calls       []Call
}

var _ repository.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates an empty store. Join tables use their composite keys, every
// other table is keyed by "id".
func NewRecordStore() *RecordStore {
	return &RecordStore{
		tables: make(map[string]map[string]row),
		order:  make(map[string][]string),
		primaryKeys: map[string][]string{
			"role_permissions": {"role_id", "permission_id"},
			"user_roles":       {"user_id", "role_id"},
		},
		references: make(map[string][]reference),
		failures:   make(map[string]error),
	}
}

// References makes writes to table fail with repository.ErrForeignKey when column is
// set to an id that does not exist in refTable.
func (s *RecordStore) References(table, column, refTable string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references[table] = append(s.references[table], reference{column: column, refTable: refTable})
}

// FailOn makes every call of op ("select", "insert", "update", "delete", "upsert")
// against table return err. A nil err clears the failure.
func (s *RecordStore) FailOn(table, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := table + "/" + op
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Calls returns every recorded call in order.
func (s *RecordStore) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.calls)
}

// WriteCalls returns the recorded calls that could modify data.
func (s *RecordStore) WriteCalls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Call
	for _, c := range s.calls {
		if c.Op != "select" {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (s *RecordStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Count returns the number of rows in table.
func (s *RecordStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Seed inserts rows without recording a call or checking failures.
func (s *RecordStore) Seed(table string, rows any) error {
	items, err := toRows(rows)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range items {
		if err := s.put(table, r); err != nil {
			return err
		}
	}
	return nil
}

// Truncate removes all rows from table without recording a call.
func (s *RecordStore) Truncate(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	delete(s.order, table)
}

func (s *RecordStore) record(table, op string) error {
	s.calls = append(s.calls, Call{Table: table, Op: op})
	if err := s.failures[table+"/"+op]; err != nil {
		return &repository.StoreError{Table: table, Op: op, Err: err}
	}
	return nil
}

func (s *RecordStore) Select(ctx context.Context, table string, q repository.Query, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "select"); err != nil {
		return err
	}

	matched := make([]row, 0)
	for _, key := range s.order[table] {
		r := s.tables[table][key]
		ok, err := matches(r, q.Filters)
		if err != nil {
			return &repository.StoreError{Table: table, Op: "select", Err: err}
		}
		if ok {
			matched = append(matched, r)
		}
	}

	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				a, b := scalar(matched[i][o.Column]), scalar(matched[j][o.Column])
				if a == b {
					continue
				}
				if o.Desc {
					return a > b
				}
				return a < b
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	raw, err := json.Marshal(matched)
	if err != nil {
		return &repository.StoreError{Table: table, Op: "select", Err: err}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &repository.StoreError{Table: table, Op: "select", Err: err}
	}
	return nil
}

func (s *RecordStore) Insert(ctx context.Context, table string, rows any) error {
	items, err := toRows(rows)
	if err != nil {
		return &repository.StoreError{Table: table, Op: "insert", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "insert"); err != nil {
		return err
	}
	for _, r := range items {
		if err := s.checkReferences(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "insert", Err: err}
		}
		if err := s.put(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "insert", Err: err}
		}
	}
	return nil
}

func (s *RecordStore) Update(ctx context.Context, table string, patch map[string]any, filters ...repository.Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, &repository.StoreError{Table: table, Op: "update", Err: repository.ErrMissingFilter}
	}
	normalized, err := toRows(patch)
	if err != nil {
		return 0, &repository.StoreError{Table: table, Op: "update", Err: err}
	}
	if len(normalized) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "update"); err != nil {
		return 0, err
	}
	var n int64
	for _, key := range s.order[table] {
		r := s.tables[table][key]
		ok, err := matches(r, filters)
		if err != nil {
			return n, &repository.StoreError{Table: table, Op: "update", Err: err}
		}
		if !ok {
			continue
		}
		for k, v := range normalized[0] {
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (s *RecordStore) Delete(ctx context.Context, table string, filters ...repository.Filter) error {
	if len(filters) == 0 {
		return &repository.StoreError{Table: table, Op: "delete", Err: repository.ErrMissingFilter}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "delete"); err != nil {
		return err
	}
	kept := s.order[table][:0]
	for _, key := range s.order[table] {
		ok, err := matches(s.tables[table][key], filters)
		if err != nil {
			return &repository.StoreError{Table: table, Op: "delete", Err: err}
		}
		if ok {
			delete(s.tables[table], key)
			continue
		}
		kept = append(kept, key)
	}
	s.order[table] = kept
	return nil
}

func (s *RecordStore) Upsert(ctx context.Context, table string, rows any, conflictKeys ...string) error {
	items, err := toRows(rows)
	if err != nil {
		return &repository.StoreError{Table: table, Op: "upsert", Err: err}
	}
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "upsert"); err != nil {
		return err
	}
	if len(conflictKeys) == 0 {
		conflictKeys = s.keyColumns(table)
	}
	for _, r := range items {
		if err := s.checkReferences(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "upsert", Err: err}
		}
		if existing := s.findBy(table, conflictKeys, r); existing != nil {
			for k, v := range r {
				existing[k] = v
			}
			continue
		}
		if err := s.put(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "upsert", Err: err}
		}
	}
	return nil
}

func (s *RecordStore) InsertMissing(ctx context.Context, table string, rows any, conflictKeys ...string) error {
	items, err := toRows(rows)
	if err != nil {
		return &repository.StoreError{Table: table, Op: "insert", Err: err}
	}
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(table, "insert"); err != nil {
		return err
	}
	if len(conflictKeys) == 0 {
		conflictKeys = s.keyColumns(table)
	}
	for _, r := range items {
		if s.findBy(table, conflictKeys, r) != nil {
			continue
		}
		if err := s.checkReferences(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "insert", Err: err}
		}
		if err := s.put(table, r); err != nil {
			return &repository.StoreError{Table: table, Op: "insert", Err: err}
		}
	}
	return nil
}

func (s *RecordStore) keyColumns(table string) []string {
	if cols, ok := s.primaryKeys[table]; ok {
		return cols
	}
	return []string{"id"}
}

func (s *RecordStore) keyOf(table string, r row) (string, error) {
	cols := s.keyColumns(table)
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		v, ok := r[c]
		if !ok || v == nil {
			return "", fmt.Errorf("row is missing primary key column %q", c)
		}
		parts = append(parts, scalar(v))
	}
	return strings.Join(parts, "|"), nil
}

func (s *RecordStore) put(table string, r row) error {
	key, err := s.keyOf(table, r)
	if err != nil {
		return err
	}
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]row)
	}
	if _, exists := s.tables[table][key]; exists {
		return fmt.Errorf("%w: %s %s", repository.ErrConflict, table, key)
	}
	s.order[table] = append(s.order[table], key)
	s.tables[table][key] = r
	return nil
}

func (s *RecordStore) findBy(table string, cols []string, r row) row {
	for _, key := range s.order[table] {
		existing := s.tables[table][key]
		same := true
		for _, c := range cols {
			if scalar(existing[c]) != scalar(r[c]) {
				same = false
				break
			}
		}
		if same {
			return existing
		}
	}
	return nil
}

func (s *RecordStore) checkReferences(table string, r row) error {
	for _, ref := range s.references[table] {
		v, ok := r[ref.column]
		if !ok || v == nil {
			continue
		}
		found := false
		for _, existing := range s.tables[ref.refTable] {
			if scalar(existing["id"]) == scalar(v) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s.%s=%v not present in %s",
				repository.ErrForeignKey, table, ref.column, v, ref.refTable)
		}
	}
	return nil
}

func matches(r row, filters []repository.Filter) (bool, error) {
	for _, f := range filters {
		v, present := r[f.Column]
		switch f.Op {
		case repository.OpEq:
			if f.Value == nil {
				if present && v != nil {
					return false, nil
				}
				continue
			}
			if !present || scalar(v) != scalar(f.Value) {
				return false, nil
			}
		case repository.OpIn:
			values, _ := f.Value.([]any)
			found := false
			for _, want := range values {
				if present && scalar(v) == scalar(want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case repository.OpIsNull:
			if present && v != nil {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return true, nil
}

// scalar renders a value the way it appears once encoded as JSON, so that a
// uuid.UUID filter matches the string stored in a row.
func scalar(v any) string {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.Trim(string(raw), `"`)
}

// toRows converts a struct, map or slice of either into JSON objects.
func toRows(rows any) ([]row, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if len(raw) > 0 && raw[0] != '[' {
		raw = append(append([]byte{'['}, raw...), ']')
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out []row
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("rows must be objects: %w", err)
	}
	return out, nil
}
