package memory

import (
	"context"
	"errors"
	"testing"

	"erpcore/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID       uuid.UUID  `json:"id"`
	Owner    uuid.UUID  `json:"owner"`
	ParentID *uuid.UUID `json:"parent_id"`
	Name     string     `json:"name"`
	Rank     int        `json:"rank"`
}

func TestSelectFiltersOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	owner := uuid.New()
	parent := uuid.New()
	rows := []item{
		{ID: uuid.New(), Owner: owner, Name: "c", Rank: 3},
		{ID: uuid.New(), Owner: owner, Name: "a", Rank: 1, ParentID: &parent},
		{ID: uuid.New(), Owner: owner, Name: "b", Rank: 2},
		{ID: uuid.New(), Owner: uuid.New(), Name: "z", Rank: 9},
	}
	require.NoError(t, s.Insert(ctx, "items", rows))

	var got []item
	require.NoError(t, s.Select(ctx, "items", repository.Query{
		Filters: []repository.Filter{repository.Eq("owner", owner)},
		Order:   []repository.Order{{Column: "name"}},
	}, &got))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Name, got[1].Name, got[2].Name})

	got = nil
	require.NoError(t, s.Select(ctx, "items", repository.Query{
		Order:  []repository.Order{{Column: "name", Desc: true}},
		Limit:  2,
		Offset: 1,
	}, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Name)

	got = nil
	require.NoError(t, s.Select(ctx, "items", repository.Where(repository.In("id", []uuid.UUID{rows[0].ID, rows[3].ID})), &got))
	assert.Len(t, got, 2)

	got = nil
	require.NoError(t, s.Select(ctx, "items", repository.Where(repository.In("id", []uuid.UUID{})), &got))
	assert.Empty(t, got)

	got = nil
	require.NoError(t, s.Select(ctx, "items", repository.Where(repository.IsNull("parent_id"), repository.Eq("owner", owner)), &got))
	assert.Len(t, got, 2)

	got = nil
	require.NoError(t, s.Select(ctx, "items", repository.Where(repository.Eq("parent_id", parent)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

func TestInsertConflict(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	row := item{ID: uuid.New(), Name: "a"}
	require.NoError(t, s.Insert(ctx, "items", row))

	err := s.Insert(ctx, "items", row)
	require.ErrorIs(t, err, repository.ErrConflict)
	var storeErr *repository.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "items", storeErr.Table)
}

func TestUpsertMergesByKey(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	id := uuid.New()
	require.NoError(t, s.Upsert(ctx, "items", []item{{ID: id, Name: "old", Rank: 1}}))
	require.NoError(t, s.Upsert(ctx, "items", []item{{ID: id, Name: "new", Rank: 2}, {ID: uuid.New(), Name: "other"}}))
	require.NoError(t, s.Upsert(ctx, "items", []item{}))

	assert.Equal(t, 2, s.Count("items"))
	var got []item
	require.NoError(t, s.Select(ctx, "items", repository.Where(repository.Eq("id", id)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name)
	assert.Equal(t, 2, got[0].Rank)
}

func TestCompositeKeys(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	user, role := uuid.New(), uuid.New()
	link := map[string]any{"user_id": user, "role_id": role}

	require.NoError(t, s.Insert(ctx, "user_roles", link))
	require.ErrorIs(t, s.Insert(ctx, "user_roles", link), repository.ErrConflict)
	require.NoError(t, s.Insert(ctx, "user_roles", map[string]any{"user_id": user, "role_id": uuid.New()}))
	require.NoError(t, s.Delete(ctx, "user_roles", repository.Eq("user_id", user), repository.Eq("role_id", role)))
	assert.Equal(t, 1, s.Count("user_roles"))
}

func TestInsertMissingKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	user, role := uuid.New(), uuid.New()
	first := map[string]any{"user_id": user, "role_id": role, "created_at": "2024-01-01T00:00:00Z"}
	require.NoError(t, s.Insert(ctx, "user_roles", first))

	again := map[string]any{"user_id": user, "role_id": role, "created_at": "2025-01-01T00:00:00Z"}
	other := map[string]any{"user_id": user, "role_id": uuid.New()}
	require.NoError(t, s.InsertMissing(ctx, "user_roles", []map[string]any{again, other}, "user_id", "role_id"))
	assert.Equal(t, 2, s.Count("user_roles"))

	var got []map[string]any
	require.NoError(t, s.Select(ctx, "user_roles", repository.Where(repository.Eq("role_id", role)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z", got[0]["created_at"])

	require.NoError(t, s.InsertMissing(ctx, "user_roles", []map[string]any{}))
	assert.Equal(t, Call{Table: "user_roles", Op: "insert"}, s.WriteCalls()[len(s.WriteCalls())-1])
}

func TestUpdateAndDeleteRequireFilters(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	owner := uuid.New()
	require.NoError(t, s.Insert(ctx, "items", []item{{ID: uuid.New(), Owner: owner, Name: "a"}, {ID: uuid.New(), Name: "b"}}))

	_, err := s.Update(ctx, "items", map[string]any{"name": "x"})
	require.ErrorIs(t, err, repository.ErrMissingFilter)
	require.ErrorIs(t, s.Delete(ctx, "items"), repository.ErrMissingFilter)

	n, err := s.Update(ctx, "items", map[string]any{"name": "x"}, repository.Eq("owner", owner))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Delete(ctx, "items", repository.Eq("name", "x")))
	assert.Equal(t, 1, s.Count("items"))
}

func TestReferencesAndFailures(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	s.References("items", "parent_id", "parents")

	missing := uuid.New()
	err := s.Upsert(ctx, "items", item{ID: uuid.New(), ParentID: &missing})
	require.ErrorIs(t, err, repository.ErrForeignKey)

	require.NoError(t, s.Seed("parents", map[string]any{"id": missing}))
	require.NoError(t, s.Upsert(ctx, "items", item{ID: uuid.New(), ParentID: &missing}))

	boom := errors.New("boom")
	s.FailOn("items", "select", boom)
	var got []item
	require.ErrorIs(t, s.Select(ctx, "items", repository.Query{}, &got), boom)
	s.FailOn("items", "select", nil)
	require.NoError(t, s.Select(ctx, "items", repository.Query{}, &got))

	calls := s.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, Call{Table: "items", Op: "upsert"}, calls[0])
	assert.Len(t, s.WriteCalls(), 2)
}

func TestTransactionManagerRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore()
	tx := NewTransactionManager(s)
	require.NoError(t, s.Insert(ctx, "items", item{ID: uuid.New(), Name: "kept"}))

	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Insert(txCtx, "items", item{ID: uuid.New(), Name: "discarded"}))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 1, s.Count("items"))

	require.NoError(t, tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.Insert(txCtx, "items", item{ID: uuid.New(), Name: "committed"})
	}))
	assert.Equal(t, 2, s.Count("items"))
}
