package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erpcore/internal/model"
	"erpcore/internal/permission"
	"erpcore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Module string `json:"module"`
}

// --- Interface ---

// RoleService manages the roles of one company. System roles are visible to every
// company and read-only to all of them.
type RoleService interface {
	ListRoles(ctx context.Context, companyID uuid.UUID) ([]RoleResponse, error)
	GetRole(ctx context.Context, companyID uuid.UUID, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, companyID uuid.UUID, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, companyID uuid.UUID, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, companyID uuid.UUID, id string) error
	ListPermissions(ctx context.Context, companyID uuid.UUID) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, companyID uuid.UUID, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	AssignUserRole(ctx context.Context, companyID uuid.UUID, userID, roleID string) error
	RemoveUserRole(ctx context.Context, companyID uuid.UUID, userID, roleID string) error
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	repo  repository.RoleRepository
	tx    repository.TransactionManager
	audit AuditService
}

func NewRoleService(repo repository.RoleRepository, tx repository.TransactionManager, audit AuditService) RoleService {
	return &roleService{repo: repo, tx: tx, audit: audit}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context, companyID uuid.UUID) ([]RoleResponse, error) {
	roles, err := s.repo.ListVisible(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	if err := s.repo.LoadPermissions(ctx, roles); err != nil {
		return nil, fmt.Errorf("failed to fetch role permissions: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, companyID uuid.UUID, id string) (*RoleResponse, error) {
	role, err := s.visibleRole(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	roles := []model.Role{*role}
	if err := s.repo.LoadPermissions(ctx, roles); err != nil {
		return nil, fmt.Errorf("failed to fetch role permissions: %w", err)
	}
	resp := toRoleResponse(roles[0])
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, companyID uuid.UUID, req CreateRoleRequest) (*RoleResponse, error) {
	name, err := validateRoleName(req.Name)
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs("permission", req.Permissions)
	if err != nil {
		return nil, err
	}

	role := model.Role{
		Name:        name,
		Description: req.Description,
		CompanyID:   &companyID,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindByName(txCtx, &companyID, name); err == nil {
			return fmt.Errorf("role '%s' already exists: %w", name, repository.ErrConflict)
		}
		if err := s.repo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(permIDs) > 0 {
			if err := s.checkPermissions(txCtx, companyID, permIDs); err != nil {
				return err
			}
			if err := s.repo.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}
		return s.record(txCtx, companyID, model.ActionCreateRole, role, map[string]any{"permissions": len(permIDs)})
	})
	if err != nil {
		return nil, err
	}

	// Reload with permissions
	return s.GetRole(ctx, companyID, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, companyID uuid.UUID, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	name, err := validateRoleName(req.Name)
	if err != nil {
		return nil, err
	}
	role, err := s.ownedRole(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if name != role.Name {
			if _, err := s.repo.FindByName(txCtx, &companyID, name); err == nil {
				return fmt.Errorf("role '%s' already exists: %w", name, repository.ErrConflict)
			}
		}
		old := role.Name
		role.Name = name
		role.Description = req.Description
		if err := s.repo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.record(txCtx, companyID, model.ActionUpdateRole, *role, map[string]any{"old_name": old})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, companyID, id)
}

func (s *roleService) DeleteRole(ctx context.Context, companyID uuid.UUID, id string) error {
	role, err := s.ownedRole(ctx, companyID, id)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, role.ID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.record(txCtx, companyID, model.ActionDeleteRole, *role, nil)
	})
}

func (s *roleService) ListPermissions(ctx context.Context, companyID uuid.UUID) ([]PermissionResponse, error) {
	perms, err := s.repo.ListPermissions(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, companyID uuid.UUID, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	role, err := s.ownedRole(ctx, companyID, roleID)
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs("permission", req.PermissionIDs)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkPermissions(txCtx, companyID, permIDs); err != nil {
			return err
		}
		if err := s.repo.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return s.record(txCtx, companyID, model.ActionUpdateRolePermissions, *role, map[string]any{"permission_ids": req.PermissionIDs})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, companyID, roleID)
}

// AssignUserRole grants a visible role to a user of the same company. Assigning a
// role twice is a no-op.
func (s *roleService) AssignUserRole(ctx context.Context, companyID uuid.UUID, userID, roleID string) error {
	uid, role, err := s.userAndRole(ctx, companyID, userID, roleID)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AssignUser(txCtx, uid, role.ID); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return s.record(txCtx, companyID, model.ActionAssignUserRole, *role, map[string]any{"user_id": uid.String()})
	})
}

func (s *roleService) RemoveUserRole(ctx context.Context, companyID uuid.UUID, userID, roleID string) error {
	uid, role, err := s.userAndRole(ctx, companyID, userID, roleID)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UnassignUser(txCtx, uid, role.ID); err != nil {
			return fmt.Errorf("failed to remove role: %w", err)
		}
		return s.record(txCtx, companyID, model.ActionRemoveUserRole, *role, map[string]any{"user_id": uid.String()})
	})
}

// SeedDefaultRolesAndPermissions creates the permission catalog and the built-in system
// roles. Existing rows keep their ids, so running it again only refreshes names and
// resets built-in role grants to their defaults.
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.ListPermissions(txCtx, uuid.Nil)
		if err != nil {
			return fmt.Errorf("failed to fetch permissions: %w", err)
		}
		idByCode := make(map[string]uuid.UUID, len(existing))
		for _, p := range existing {
			idByCode[p.Code] = p.ID
		}

		catalog := permission.Catalog()
		perms := make([]model.Permission, 0, len(catalog))
		for _, d := range catalog {
			perms = append(perms, model.Permission{ID: idByCode[d.Code], Code: d.Code, Name: d.Name, Module: d.Module})
		}
		if err := s.repo.SavePermissions(txCtx, perms); err != nil {
			return fmt.Errorf("failed to seed permissions: %w", err)
		}
		for _, p := range perms {
			idByCode[p.Code] = p.ID
		}

		for _, def := range permission.BuiltinRoles() {
			role, err := s.repo.FindByName(txCtx, nil, def.Name)
			if errors.Is(err, repository.ErrNotFound) {
				role = &model.Role{Name: def.Name, Description: def.Description, IsSystemRole: true}
				if err := s.repo.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
				}
			} else if err != nil {
				return fmt.Errorf("failed to fetch role '%s': %w", def.Name, err)
			}

			codes := permission.DefaultRolePermissions(def.Name)
			ids := make([]uuid.UUID, 0, len(codes))
			for _, code := range codes {
				if id, ok := idByCode[code]; ok {
					ids = append(ids, id)
				}
			}
			if err := s.repo.ReplacePermissions(txCtx, role.ID, ids); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
			}
		}

		zerolog.Ctx(ctx).Info().Int("permissions", len(perms)).Int("roles", len(permission.BuiltinRoles())).Msg("roles and permissions seeded")
		return nil
	})
}

// --- Helpers ---

func (s *roleService) visibleRole(ctx context.Context, companyID uuid.UUID, id string) (*model.Role, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", errors.Join(ErrInvalidInput, err))
	}

	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}
	if role.CompanyID != nil && *role.CompanyID != companyID {
		return nil, fmt.Errorf("role not found: %w", repository.ErrNotFound)
	}
	return role, nil
}

// ownedRole returns a role the company may modify.
func (s *roleService) ownedRole(ctx context.Context, companyID uuid.UUID, id string) (*model.Role, error) {
	role, err := s.visibleRole(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole || role.CompanyID == nil {
		return nil, fmt.Errorf("role '%s': %w", role.Name, ErrSystemRole)
	}
	return role, nil
}

func (s *roleService) userAndRole(ctx context.Context, companyID uuid.UUID, userID, roleID string) (uuid.UUID, *model.Role, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid user id: %w", errors.Join(ErrInvalidInput, err))
	}
	owner, err := s.repo.UserCompanyID(ctx, uid)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("user not found: %w", err)
	}
	if owner != companyID {
		return uuid.Nil, nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	role, err := s.visibleRole(ctx, companyID, roleID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return uid, role, nil
}

// checkPermissions rejects ids that do not exist or belong to another company.
func (s *roleService) checkPermissions(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) error {
	perms, err := s.repo.FindPermissions(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}
	found := make(map[uuid.UUID]bool, len(perms))
	for _, p := range perms {
		if p.CompanyID == nil || *p.CompanyID == companyID {
			found[p.ID] = true
		}
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("unknown permission '%s': %w", id, ErrInvalidInput)
		}
	}
	return nil
}

func (s *roleService) record(ctx context.Context, companyID uuid.UUID, action string, role model.Role, details map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, AuditEntry{
		CompanyID:  companyID,
		Action:     action,
		EntityID:   role.ID.String(),
		EntityName: role.Name,
		Details:    details,
	})
}

// validateRoleName trims the name and rejects the built-in role names, which would
// otherwise shadow them, including the admin bypass.
func validateRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("role name is required: %w", ErrInvalidInput)
	}
	for _, r := range permission.BuiltinRoles() {
		if strings.EqualFold(name, r.Name) {
			return "", fmt.Errorf("'%s': %w", name, ErrReservedRoleName)
		}
	}
	return name, nil
}

func parseIDs(kind string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s id '%s': %w", kind, v, errors.Join(ErrInvalidInput, err))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystemRole,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:     p.ID.String(),
		Code:   p.Code,
		Name:   p.Name,
		Module: p.Module,
	}
}
