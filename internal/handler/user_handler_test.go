package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"erpcore/internal/middleware"
	"erpcore/internal/permission"
	"erpcore/internal/repository"
	"erpcore/internal/repository/memory"
	"erpcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	tokens   *service.TokenIssuer
	users    map[uuid.UUID]service.UserResponse
	loginErr error
}

func (f *fakeUsers) Login(ctx context.Context, req service.LoginUserRequest) (*service.TokenResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	for _, u := range f.users {
		if u.Email == req.Email {
			return f.tokens.Issue(u.ID, u.CompanyID)
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (f *fakeUsers) RefreshToken(ctx context.Context, req service.RefreshTokenRequest) (*service.TokenResponse, error) {
	claims, err := f.tokens.Parse(req.RefreshToken, service.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()
	companyID, _ := claims.Company()
	return f.tokens.Issue(userID, companyID)
}

func (f *fakeUsers) CreateUser(ctx context.Context, companyID uuid.UUID, req service.CreateUserRequest) (*service.UserResponse, error) {
	u := service.UserResponse{ID: uuid.New(), CompanyID: companyID, FullName: req.FullName, Email: req.Email, Status: "active"}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeUsers) GetUserByID(ctx context.Context, companyID uuid.UUID, id string) (*service.UserResponse, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, service.ErrInvalidInput
	}
	u, ok := f.users[uid]
	if !ok || u.CompanyID != companyID {
		return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
	}
	return &u, nil
}

func (f *fakeUsers) ListUsers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]service.UserResponse, int64, error) {
	var out []service.UserResponse
	for _, u := range f.users {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, companyID uuid.UUID, id string, req service.UpdateUserRequest) (*service.UserResponse, error) {
	u, err := f.GetUserByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != "" {
		u.Status = req.Status
	}
	f.users[u.ID] = *u
	return u, nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, companyID uuid.UUID, id string) error {
	u, err := f.GetUserByID(ctx, companyID, id)
	if err != nil {
		return err
	}
	delete(f.users, u.ID)
	return nil
}

type userFixture struct {
	store   *memory.RecordStore
	users   *fakeUsers
	company uuid.UUID
	router  *gin.Engine
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewRecordStore()
	tokens := service.NewTokenIssuer([]byte("test-secret"), time.Hour)
	f := &userFixture{
		store:   store,
		users:   &fakeUsers{tokens: tokens, users: map[uuid.UUID]service.UserResponse{}},
		company: uuid.New(),
	}
	auth := middleware.NewAuth(tokens, store, false)
	r := gin.New()
	NewUserHandler(f.users, auth).RegisterRoutes(r.Group(""), r.Group("", auth.Authenticate()))
	f.router = r
	return f
}

// member creates a user holding codes and logs them in.
func (f *userFixture) member(t *testing.T, email string, codes ...string) (uuid.UUID, string) {
	t.Helper()
	id := grant(t, f.store, f.company, codes...)
	f.users.users[id] = service.UserResponse{ID: id, CompanyID: f.company, FullName: email, Email: email, Status: "active"}

	w := serve(f.router, http.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok service.TokenResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tok))
	return id, tok.Token
}

func (f *userFixture) as(token, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestLoginSetsCookies(t *testing.T) {
	f := newUserFixture(t)
	f.users.users[uuid.New()] = service.UserResponse{CompanyID: f.company, Email: "ana@example.com"}

	w := serve(f.router, http.MethodPost, "/login", strings.NewReader(`{"email":"ana@example.com","password":"secret"}`))
	require.Equal(t, http.StatusOK, w.Code)
	names := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	assert.Equal(t, map[string]bool{middleware.AccessTokenCookie: true, middleware.RefreshTokenCookie: true}, names)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		want    int
		wantErr string
	}{
		{"unknown email", `{"email":"nobody@example.com","password":"x"}`, nil, http.StatusUnauthorized, service.ErrInvalidCredential.Error()},
		{"store failure is masked", `{"email":"a@example.com","password":"x"}`, fmt.Errorf("dial: %w", repository.ErrTransient), http.StatusUnauthorized, service.ErrInvalidCredential.Error()},
		{"inactive", `{"email":"a@example.com","password":"x"}`, service.ErrInactiveUser, http.StatusForbidden, service.ErrInactiveUser.Error()},
		{"malformed", `{"email":"not-an-email"}`, nil, http.StatusBadRequest, "Invalid request payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			f.users.loginErr = tt.err
			w := serve(f.router, http.MethodPost, "/login", strings.NewReader(tt.body))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w).Error)
		})
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newUserFixture(t)
	_, access := f.member(t, "ana@example.com")

	w := serve(f.router, http.MethodPost, "/refresh", strings.NewReader(`{"refresh_token":"`+access+`"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReportsPermissions(t *testing.T) {
	f := newUserFixture(t)
	id, token := f.member(t, "ana@example.com", permission.UsersView, permission.SalesView)

	w := f.as(token, http.MethodGet, "/me", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		User        service.UserResponse `json:"user"`
		IsAdmin     bool                 `json:"is_admin"`
		Permissions []string             `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &me))
	assert.Equal(t, id, me.User.ID)
	assert.False(t, me.IsAdmin)
	assert.ElementsMatch(t, []string{permission.UsersView, permission.SalesView}, me.Permissions)

	assert.Equal(t, http.StatusUnauthorized, serve(f.router, http.MethodGet, "/me", nil).Code)
}

func TestUserRoutesArePermissioned(t *testing.T) {
	f := newUserFixture(t)
	_, viewer := f.member(t, "viewer@example.com", permission.UsersView)
	_, editor := f.member(t, "editor@example.com", permission.UsersView, permission.UsersCreate, permission.UsersDelete)

	w := f.as(viewer, http.MethodPost, "/api/users", `{"full_name":"Bo","email":"bo@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.as(editor, http.MethodPost, "/api/users", `{"full_name":"Bo","email":"bo@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.UserResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))

	w = f.as(viewer, http.MethodGet, "/api/users?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64 `json:"total"`
		Limit int   `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Limit)

	assert.Equal(t, http.StatusBadRequest, f.as(editor, http.MethodPost, "/api/users", `{"full_name":"Bo","email":"bo@example.com","password":"123"}`).Code)
	require.Equal(t, http.StatusOK, f.as(editor, http.MethodDelete, "/api/users/"+created.ID.String(), "").Code)
	assert.Equal(t, http.StatusNotFound, f.as(viewer, http.MethodGet, "/api/users/"+created.ID.String(), "").Code)
}
