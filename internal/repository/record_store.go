package repository

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Op is a filter operator understood by every RecordStore.
type Op string

const (
	OpEq     Op = "eq"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
)

// Filter restricts a query to rows whose Column matches Value under Op.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq matches rows where column = value.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In matches rows where column is one of values. An empty list matches nothing.
func In[T any](column string, values []T) Filter {
	vals := make([]any, 0, len(values))
	for _, v := range values {
		vals = append(vals, v)
	}
	return Filter{Column: column, Op: OpIn, Value: vals}
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

// Order sorts query results by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a filtered, ordered and paginated select. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Where builds a Query from filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// RecordStore is generic table access. Rows are typed records (pointers to slices for
// Select, slices for writes) whose JSON/column names match the table columns.
type RecordStore interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	Insert(ctx context.Context, table string, rows any) error
	Update(ctx context.Context, table string, patch map[string]any, filters ...Filter) (int64, error)
	Delete(ctx context.Context, table string, filters ...Filter) error
	Upsert(ctx context.Context, table string, rows any, conflictKeys ...string) error
	// InsertMissing inserts the rows whose conflict keys are not taken yet and leaves
	// existing rows untouched. It never fails on a duplicate.
	InsertMissing(ctx context.Context, table string, rows any, conflictKeys ...string) error
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// isEmptyBatch reports whether rows is a nil value or an empty slice/array.
func isEmptyBatch(rows any) bool {
	if rows == nil {
		return true
	}
	v := reflect.ValueOf(rows)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Len() == 0
	}
	return false
}

type recordStore struct {
	db *gorm.DB
}

// NewRecordStore returns a RecordStore backed by gorm. Calls join the transaction
// carried in ctx by TransactionManager.RunInTx, if any.
func NewRecordStore(db *gorm.DB) RecordStore {
	return &recordStore{db: db}
}

func (s *recordStore) table(ctx context.Context, table string) (*gorm.DB, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	return GetDB(ctx, s.db).Table(table), nil
}

func applyFilters(db *gorm.DB, filters []Filter) (*gorm.DB, error) {
	for _, f := range filters {
		if err := checkIdentifier(f.Column); err != nil {
			return nil, err
		}
		col := clause.Column{Name: f.Column}
		switch f.Op {
		case OpEq:
			db = db.Where(clause.Eq{Column: col, Value: f.Value})
		case OpIn:
			values, _ := f.Value.([]any)
			db = db.Where(clause.IN{Column: col, Values: values})
		case OpIsNull:
			db = db.Where(clause.Eq{Column: col, Value: nil})
		default:
			return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return db, nil
}

func (s *recordStore) Select(ctx context.Context, table string, q Query, dest any) error {
	db, err := s.table(ctx, table)
	if err != nil {
		return newStoreError(table, "select", err)
	}
	if db, err = applyFilters(db, q.Filters); err != nil {
		return newStoreError(table, "select", err)
	}
	for _, o := range q.Order {
		if err := checkIdentifier(o.Column); err != nil {
			return newStoreError(table, "select", err)
		}
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return newStoreError(table, "select", db.Find(dest).Error)
}

func (s *recordStore) Insert(ctx context.Context, table string, rows any) error {
	if isEmptyBatch(rows) {
		return nil
	}
	db, err := s.table(ctx, table)
	if err != nil {
		return newStoreError(table, "insert", err)
	}
	return newStoreError(table, "insert", db.Omit(clause.Associations).Create(rows).Error)
}

func (s *recordStore) Update(ctx context.Context, table string, patch map[string]any, filters ...Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, newStoreError(table, "update", ErrMissingFilter)
	}
	db, err := s.table(ctx, table)
	if err != nil {
		return 0, newStoreError(table, "update", err)
	}
	if db, err = applyFilters(db, filters); err != nil {
		return 0, newStoreError(table, "update", err)
	}
	res := db.Updates(patch)
	if res.Error != nil {
		return 0, newStoreError(table, "update", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *recordStore) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return newStoreError(table, "delete", ErrMissingFilter)
	}
	db, err := s.table(ctx, table)
	if err != nil {
		return newStoreError(table, "delete", err)
	}
	if db, err = applyFilters(db, filters); err != nil {
		return newStoreError(table, "delete", err)
	}
	return newStoreError(table, "delete", db.Delete(map[string]any{}).Error)
}

func conflictColumns(keys []string) ([]clause.Column, error) {
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	cols := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		if err := checkIdentifier(k); err != nil {
			return nil, err
		}
		cols = append(cols, clause.Column{Name: k})
	}
	return cols, nil
}

// assignedColumns lists every column of rows' model except the conflict keys. The
// stored values of an upsert are exactly the incoming ones, timestamps included.
func assignedColumns(db *gorm.DB, rows any, keys []clause.Column) ([]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(rows); err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k.Name] = true
	}
	var cols []string
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || !field.Creatable || skip[field.DBName] {
			continue
		}
		cols = append(cols, field.DBName)
	}
	return cols, nil
}

func (s *recordStore) Upsert(ctx context.Context, table string, rows any, conflictKeys ...string) error {
	if isEmptyBatch(rows) {
		return nil
	}
	keys, err := conflictColumns(conflictKeys)
	if err != nil {
		return newStoreError(table, "upsert", err)
	}
	db, err := s.table(ctx, table)
	if err != nil {
		return newStoreError(table, "upsert", err)
	}
	cols, err := assignedColumns(db, rows, keys)
	if err != nil {
		return newStoreError(table, "upsert", err)
	}
	onConflict := clause.OnConflict{Columns: keys, DoNothing: len(cols) == 0}
	if len(cols) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(cols)
	}
	err = db.Omit(clause.Associations).Clauses(onConflict).Create(rows).Error
	return newStoreError(table, "upsert", err)
}

func (s *recordStore) InsertMissing(ctx context.Context, table string, rows any, conflictKeys ...string) error {
	if isEmptyBatch(rows) {
		return nil
	}
	keys, err := conflictColumns(conflictKeys)
	if err != nil {
		return newStoreError(table, "insert", err)
	}
	db, err := s.table(ctx, table)
	if err != nil {
		return newStoreError(table, "insert", err)
	}
	err = db.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: keys, DoNothing: true}).
		Create(rows).Error
	return newStoreError(table, "insert", err)
}
