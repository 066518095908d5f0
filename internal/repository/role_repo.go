package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"erpcore/internal/model"

	"github.com/google/uuid"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, companyID *uuid.UUID, name string) (*model.Role, error)
	ListVisible(ctx context.Context, companyID uuid.UUID) ([]model.Role, error)
	LoadPermissions(ctx context.Context, roles []model.Role) error
	ListPermissions(ctx context.Context, companyID uuid.UUID) ([]model.Permission, error)
	FindPermissions(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	SavePermissions(ctx context.Context, perms []model.Permission) error
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	AssignUser(ctx context.Context, userID, roleID uuid.UUID) error
	UnassignUser(ctx context.Context, userID, roleID uuid.UUID) error
	UserRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UserCompanyID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type roleRepository struct {
	store RecordStore
	now   func() time.Time
}

// NewRoleRepository returns a RoleRepository over store. Writes that touch several
// tables should run inside TransactionManager.RunInTx.
func NewRoleRepository(store RecordStore) RoleRepository {
	return &roleRepository{store: store, now: time.Now}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := r.now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	return r.store.Insert(ctx, model.TableRoles, role)
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	role.UpdatedAt = r.now().UTC()
	n, err := r.store.Update(ctx, model.TableRoles, map[string]any{
		"name":        role.Name,
		"description": role.Description,
		"updated_at":  role.UpdatedAt,
	}, Eq("id", role.ID))
	if err != nil {
		return err
	}
	if n == 0 {
		return newStoreError(model.TableRoles, "update", ErrNotFound)
	}
	return nil
}

func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, model.TableRolePermissions, Eq("role_id", id)); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, model.TableUserRoles, Eq("role_id", id)); err != nil {
		return err
	}
	return r.store.Delete(ctx, model.TableRoles, Eq("id", id))
}

func (r *roleRepository) first(ctx context.Context, filters ...Filter) (*model.Role, error) {
	var roles []model.Role
	if err := r.store.Select(ctx, model.TableRoles, Query{Filters: filters, Limit: 1}, &roles); err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, newStoreError(model.TableRoles, "select", ErrNotFound)
	}
	return &roles[0], nil
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	return r.first(ctx, Eq("id", id))
}

// FindByName looks a role up within a company, or among system roles when companyID
// is nil.
func (r *roleRepository) FindByName(ctx context.Context, companyID *uuid.UUID, name string) (*model.Role, error) {
	if companyID == nil {
		return r.first(ctx, Eq("name", name), IsNull("company_id"))
	}
	return r.first(ctx, Eq("name", name), Eq("company_id", *companyID))
}

// ListVisible returns the company's roles and the system roles, sorted by name.
func (r *roleRepository) ListVisible(ctx context.Context, companyID uuid.UUID) ([]model.Role, error) {
	var system, own []model.Role
	if err := r.store.Select(ctx, model.TableRoles, Where(IsNull("company_id")), &system); err != nil {
		return nil, err
	}
	if err := r.store.Select(ctx, model.TableRoles, Where(Eq("company_id", companyID)), &own); err != nil {
		return nil, err
	}
	roles := append(system, own...)
	slices.SortFunc(roles, func(a, b model.Role) int { return strings.Compare(a.Name, b.Name) })
	return roles, nil
}

// LoadPermissions fills Permissions of every role in place.
func (r *roleRepository) LoadPermissions(ctx context.Context, roles []model.Role) error {
	if len(roles) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
	}

	var links []model.RolePermission
	if err := r.store.Select(ctx, model.TableRolePermissions, Where(In("role_id", ids)), &links); err != nil {
		return err
	}
	permIDs := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		permIDs = append(permIDs, l.PermissionID)
	}
	perms, err := r.FindPermissions(ctx, permIDs)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]model.Permission, len(perms))
	for _, p := range perms {
		byID[p.ID] = p
	}

	byRole := make(map[uuid.UUID][]model.Permission, len(roles))
	for _, l := range links {
		if p, ok := byID[l.PermissionID]; ok {
			byRole[l.RoleID] = append(byRole[l.RoleID], p)
		}
	}
	for i := range roles {
		list := byRole[roles[i].ID]
		slices.SortFunc(list, func(a, b model.Permission) int { return strings.Compare(a.Code, b.Code) })
		roles[i].Permissions = list
	}
	return nil
}

// ListPermissions returns system-wide permissions and the company's own, sorted by
// module then code.
func (r *roleRepository) ListPermissions(ctx context.Context, companyID uuid.UUID) ([]model.Permission, error) {
	var system, own []model.Permission
	if err := r.store.Select(ctx, model.TablePermissions, Where(IsNull("company_id")), &system); err != nil {
		return nil, err
	}
	if err := r.store.Select(ctx, model.TablePermissions, Where(Eq("company_id", companyID)), &own); err != nil {
		return nil, err
	}
	perms := append(system, own...)
	slices.SortFunc(perms, func(a, b model.Permission) int {
		if c := strings.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return perms, nil
}

func (r *roleRepository) FindPermissions(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var perms []model.Permission
	if err := r.store.Select(ctx, model.TablePermissions, Where(In("id", ids)), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// SavePermissions upserts permissions by id.
func (r *roleRepository) SavePermissions(ctx context.Context, perms []model.Permission) error {
	now := r.now().UTC()
	for i := range perms {
		if perms[i].ID == uuid.Nil {
			perms[i].ID = uuid.New()
		}
		if perms[i].CreatedAt.IsZero() {
			perms[i].CreatedAt = now
		}
	}
	return r.store.Upsert(ctx, model.TablePermissions, perms, "id")
}

// ReplacePermissions makes permissionIDs the exact grant list of the role.
func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if err := r.store.Delete(ctx, model.TableRolePermissions, Eq("role_id", roleID)); err != nil {
		return err
	}
	now := r.now().UTC()
	links := make([]model.RolePermission, 0, len(permissionIDs))
	seen := make(map[uuid.UUID]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, model.RolePermission{RoleID: roleID, PermissionID: id, CreatedAt: now})
	}
	return r.store.Insert(ctx, model.TableRolePermissions, links)
}

func (r *roleRepository) AssignUser(ctx context.Context, userID, roleID uuid.UUID) error {
	link := []model.UserRole{{UserID: userID, RoleID: roleID, CreatedAt: r.now().UTC()}}
	return r.store.InsertMissing(ctx, model.TableUserRoles, link, "user_id", "role_id")
}

func (r *roleRepository) UnassignUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.store.Delete(ctx, model.TableUserRoles, Eq("user_id", userID), Eq("role_id", roleID))
}

func (r *roleRepository) UserRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var links []model.UserRole
	if err := r.store.Select(ctx, model.TableUserRoles, Where(Eq("user_id", userID)), &links); err != nil {
		return nil, fmt.Errorf("failed to fetch user roles: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.RoleID)
	}
	return ids, nil
}

// UserCompanyID returns the company a user belongs to.
func (r *roleRepository) UserCompanyID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var users []model.User
	if err := r.store.Select(ctx, model.TableUsers, Query{Filters: []Filter{Eq("id", userID)}, Limit: 1}, &users); err != nil {
		return uuid.Nil, err
	}
	if len(users) == 0 {
		return uuid.Nil, newStoreError(model.TableUsers, "select", ErrNotFound)
	}
	return users[0].CompanyID, nil
}
