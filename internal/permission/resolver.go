package permission

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"erpcore/internal/model"
	"erpcore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is the authenticated user a Resolver answers for.
type Identity struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
}

// Snapshot is a copy of the last resolved state.
type Snapshot struct {
	UserID  uuid.UUID `json:"user_id"`
	Roles   []string  `json:"roles"`
	Codes   []string  `json:"permissions"`
	IsAdmin bool      `json:"is_admin"`
	Loaded  bool      `json:"loaded"`
}

// Resolver loads the roles and permission codes granted to one user and answers
// authorization checks from that state. It is owned by a single session and must
// never be shared between users.
//
// Checks fail closed: before a load completes, after a failed load, and for users
// without roles every non-admin check is false.
type Resolver struct {
	store repository.RecordStore

	mu         sync.RWMutex
	identity   Identity
	generation uint64
	loading    bool
	loaded     bool
	admin      bool
	roles      []string
	granted    Set
}

// NewResolver creates a resolver with no user.
func NewResolver(store repository.RecordStore) *Resolver {
	return &Resolver{store: store, granted: Set{}}
}

// SetUser switches the resolver to id and loads its grants. Calling it again with the
// same identity is a no-op; a different identity (login, logout, switch) always
// discards the previous state first. uuid.Nil as user means logged out.
//
// The returned error is informational: on failure the resolver is left loaded with an
// empty set.
func (r *Resolver) SetUser(ctx context.Context, id Identity) error {
	r.mu.Lock()
	if r.identity == id && (r.loaded || r.loading) {
		r.mu.Unlock()
		return nil
	}
	gen := r.reset(id)
	if id.UserID == uuid.Nil {
		r.loaded = true
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	r.mu.Unlock()

	return r.load(ctx, gen, id)
}

// Reload re-reads the current user's grants, e.g. after their roles changed.
func (r *Resolver) Reload(ctx context.Context) error {
	r.mu.Lock()
	id := r.identity
	gen := r.reset(id)
	if id.UserID == uuid.Nil {
		r.loaded = true
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	r.mu.Unlock()

	return r.load(ctx, gen, id)
}

// Clear drops all state, as on logout.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset(Identity{})
	r.loaded = true
}

// reset must be called with mu held.
func (r *Resolver) reset(id Identity) uint64 {
	r.generation++
	r.identity = id
	r.loading = false
	r.loaded = false
	r.admin = false
	r.roles = nil
	r.granted = Set{}
	return r.generation
}

func (r *Resolver) load(ctx context.Context, gen uint64, id Identity) error {
	roles, granted, admin, err := fetchGrants(ctx, r.store, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A newer SetUser won; this result belongs to a previous identity.
	if gen != r.generation {
		return nil
	}

	r.loading = false
	r.loaded = true
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("user_id", id.UserID.String()).
			Msg("failed to load user permissions, denying all")
		r.admin = false
		r.roles = nil
		r.granted = Set{}
		return err
	}

	r.admin = admin
	r.roles = roles
	r.granted = granted
	return nil
}

// fetchGrants walks user_roles -> roles -> role_permissions -> permissions and unions
// the codes of every held role, deduplicated by permission id. Roles that belong to a
// different company than the identity are ignored.
func fetchGrants(ctx context.Context, store repository.RecordStore, id Identity) ([]string, Set, bool, error) {
	var links []model.UserRole
	if err := store.Select(ctx, model.TableUserRoles, repository.Where(repository.Eq("user_id", id.UserID)), &links); err != nil {
		return nil, nil, false, fmt.Errorf("failed to fetch user roles: %w", err)
	}
	if len(links) == 0 {
		return nil, Set{}, false, nil
	}

	roleIDs := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		roleIDs = append(roleIDs, l.RoleID)
	}

	var roles []model.Role
	if err := store.Select(ctx, model.TableRoles, repository.Where(repository.In("id", roleIDs)), &roles); err != nil {
		return nil, nil, false, fmt.Errorf("failed to fetch roles: %w", err)
	}

	admin := false
	names := make([]string, 0, len(roles))
	heldIDs := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		if role.CompanyID != nil && id.CompanyID != uuid.Nil && *role.CompanyID != id.CompanyID {
			continue
		}
		if IsAdminRole(role.Name) {
			admin = true
		}
		names = append(names, role.Name)
		heldIDs = append(heldIDs, role.ID)
	}
	slices.Sort(names)
	if len(heldIDs) == 0 {
		return names, Set{}, admin, nil
	}

	var grants []model.RolePermission
	if err := store.Select(ctx, model.TableRolePermissions, repository.Where(repository.In("role_id", heldIDs)), &grants); err != nil {
		return nil, nil, false, fmt.Errorf("failed to fetch role permissions: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(grants))
	permIDs := make([]uuid.UUID, 0, len(grants))
	for _, g := range grants {
		if _, dup := seen[g.PermissionID]; dup {
			continue
		}
		seen[g.PermissionID] = struct{}{}
		permIDs = append(permIDs, g.PermissionID)
	}
	if len(permIDs) == 0 {
		return names, Set{}, admin, nil
	}

	var perms []model.Permission
	if err := store.Select(ctx, model.TablePermissions, repository.Where(repository.In("id", permIDs)), &perms); err != nil {
		return nil, nil, false, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	granted := make(Set, len(perms))
	for _, p := range perms {
		granted.Add(p.Code)
	}
	return names, granted, admin, nil
}

// CheckPermission reports whether the current user may perform code. It never
// blocks on a load in progress and never panics.
func (r *Resolver) CheckPermission(code string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded || r.loading || r.identity.UserID == uuid.Nil {
		return false
	}
	if r.admin {
		return true
	}
	return HasPermission(r.granted, code)
}

// HasPermission is an alias of CheckPermission.
func (r *Resolver) HasPermission(code string) bool {
	return r.CheckPermission(code)
}

// CheckAll reports whether every code is allowed.
func (r *Resolver) CheckAll(codes ...string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded || r.loading || r.identity.UserID == uuid.Nil {
		return false
	}
	if r.admin {
		return true
	}
	return HasAllPermissions(r.granted, codes)
}

// CheckAny reports whether at least one code is allowed.
func (r *Resolver) CheckAny(codes ...string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded || r.loading || r.identity.UserID == uuid.Nil {
		return false
	}
	if r.admin {
		return true
	}
	return HasAnyPermission(r.granted, codes)
}

// CanAccessRoute applies the front-end route map to the current grants.
func (r *Resolver) CanAccessRoute(path string) bool {
	codes, ok := RoutePermissions(path)
	if !ok || len(codes) == 0 {
		return true
	}
	return r.CheckAll(codes...)
}

// Loading reports whether a load is in flight.
func (r *Resolver) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Identity returns the user the resolver currently answers for.
func (r *Resolver) Identity() Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// Snapshot copies the resolved state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		UserID:  r.identity.UserID,
		Roles:   slices.Clone(r.roles),
		Codes:   r.granted.Codes(),
		IsAdmin: r.admin,
		Loaded:  r.loaded && !r.loading,
	}
}
