package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"erpcore/internal/model"
	"erpcore/internal/permission"
	"erpcore/internal/repository"
	"erpcore/internal/repository/memory"
	"erpcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleFixture struct {
	store   *memory.RecordStore
	audit   *fakeAudit
	svc     service.RoleService
	company uuid.UUID
	admin   uuid.UUID
}

func newRoleFixture(t *testing.T) *roleFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewRecordStore()
	audit := &fakeAudit{}
	f := &roleFixture{
		store:   store,
		audit:   audit,
		svc:     service.NewRoleService(repository.NewRoleRepository(store), memory.NewTransactionManager(store), audit),
		company: uuid.New(),
	}
	require.NoError(t, f.svc.SeedDefaultRolesAndPermissions(context.Background()))
	f.admin = f.user(t, f.company)
	require.NoError(t, store.Seed(model.TableUserRoles, model.UserRole{UserID: f.admin, RoleID: f.systemRole(t, permission.RoleAdmin)}))
	return f
}

func (f *roleFixture) user(t *testing.T, companyID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.Seed(model.TableUsers, model.User{ID: id, CompanyID: companyID, FullName: "u", Email: id.String() + "@example.com", Status: "active"}))
	return id
}

func (f *roleFixture) systemRole(t *testing.T, name string) uuid.UUID {
	t.Helper()
	var roles []model.Role
	require.NoError(t, f.store.Select(context.Background(), model.TableRoles, repository.Where(repository.Eq("name", name)), &roles))
	require.Len(t, roles, 1)
	return roles[0].ID
}

func (f *roleFixture) router(userID uuid.UUID) *gin.Engine {
	r := gin.New()
	NewRoleHandler(f.svc).RegisterRoutes(r.Group("", sessionAs(f.store, userID, f.company)))
	return r
}

func (f *roleFixture) permissionID(t *testing.T, code string) string {
	t.Helper()
	perms, err := f.svc.ListPermissions(context.Background(), f.company)
	require.NoError(t, err)
	for _, p := range perms {
		if p.Code == code {
			return p.ID
		}
	}
	t.Fatalf("permission %s not seeded", code)
	return ""
}

func TestRoleLifecycle(t *testing.T) {
	f := newRoleFixture(t)
	r := f.router(f.admin)

	body := `{"name":"Auditor","description":"read only","permissions":["` + f.permissionID(t, permission.ReportsView) + `"]}`
	w := serve(r, http.MethodPost, "/api/roles", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.RoleResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, "Auditor", created.Name)
	assert.False(t, created.IsSystem)
	require.Len(t, created.Permissions, 1)
	assert.Equal(t, permission.ReportsView, created.Permissions[0].Code)

	w = serve(r, http.MethodPut, "/api/roles/"+created.ID+"/permissions",
		strings.NewReader(`{"permission_ids":["`+f.permissionID(t, permission.SalesView)+`"]}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	member := f.user(t, f.company)
	w = serve(r, http.MethodPost, "/api/users/"+member.String()+"/roles/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session, err := permission.NewSession(context.Background(), f.store, member, f.company)
	require.NoError(t, err)
	assert.True(t, session.Can(permission.SalesView))
	assert.False(t, session.Can(permission.ReportsView))

	require.Equal(t, http.StatusOK, serve(r, http.MethodDelete, "/api/users/"+member.String()+"/roles/"+created.ID, nil).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodDelete, "/api/roles/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/roles/"+created.ID, nil).Code)

	assert.Equal(t, []string{
		model.ActionCreateRole,
		model.ActionUpdateRolePermissions,
		model.ActionAssignUserRole,
		model.ActionRemoveUserRole,
		model.ActionDeleteRole,
	}, f.audit.actions())
}

func TestRoleHandlerRejections(t *testing.T) {
	f := newRoleFixture(t)
	r := f.router(f.admin)
	managerID := f.systemRole(t, permission.RoleManager).String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"reserved name", http.MethodPost, "/api/roles", `{"name":" Admin "}`, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/api/roles", `{"description":"x"}`, http.StatusBadRequest},
		{"unknown permission", http.MethodPost, "/api/roles", `{"name":"x","permissions":["` + uuid.NewString() + `"]}`, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/roles/not-a-uuid", "", http.StatusBadRequest},
		{"rename system role", http.MethodPut, "/api/roles/" + managerID, `{"name":"boss"}`, http.StatusForbidden},
		{"delete system role", http.MethodDelete, "/api/roles/" + managerID, "", http.StatusForbidden},
		{"unknown role", http.MethodGet, "/api/roles/" + uuid.NewString(), "", http.StatusNotFound},
		{"user of another company", http.MethodPost, "/api/users/" + f.user(t, uuid.New()).String() + "/roles/" + managerID, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			w := serve(r, tt.method, tt.path, body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.audit.actions())
}

func TestRolesAreTenantScoped(t *testing.T) {
	f := newRoleFixture(t)
	other := uuid.New()
	foreign, err := f.svc.CreateRole(context.Background(), other, service.CreateRoleRequest{Name: "foreign"})
	require.NoError(t, err)

	r := f.router(f.admin)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/roles/"+foreign.ID, nil).Code)

	w := serve(r, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roles []service.RoleResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &roles))
	for _, role := range roles {
		assert.NotEqual(t, "foreign", role.Name)
	}
	assert.Len(t, roles, len(permission.BuiltinRoles()))
}

func TestRoleRoutesNeedRolesManage(t *testing.T) {
	f := newRoleFixture(t)
	viewer := grant(t, f.store, f.company, permission.UsersView)
	r := f.router(viewer)

	w := serve(r, http.MethodGet, "/api/roles", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decode(t, w).Error, permission.RolesManage)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/permissions", nil).Code)
}
