package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/auth"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

func TestRegister_FirstUserBecomesAdminThenCloses(t *testing.T) {
	env := newTestEnv(t)

	var out authResponse
	resp := env.do(t, http.MethodPost, "/users/register", "", registerRequest{
		Email:    " Admin@Example.com ",
		FullName: "Ada Admin",
		Password: "correct horse",
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, auth.RoleAdmin, out.User.Role)
	assert.Equal(t, "admin@example.com", out.User.Email)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.Equal(t, 3600, out.ExpiresIn)

	claims, err := auth.ParseToken(out.Token, env.srv.jwtSecret)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims.UserID())

	resp = env.do(t, http.MethodPost, "/users/register", "", registerRequest{
		Email:    "second@example.com",
		FullName: "Second",
		Password: "correct horse",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  registerRequest
	}{
		{"bad email", registerRequest{Email: "not-an-email", FullName: "A", Password: "correct horse"}},
		{"missing name", registerRequest{Email: "a@example.com", FullName: " ", Password: "correct horse"}},
		{"short password", registerRequest{Email: "a@example.com", FullName: "A", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body Error
			resp := env.do(t, http.MethodPost, "/users/register", "", tt.req, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrCodeValidation, body.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.registerAdmin(t)

	var out authResponse
	resp := env.do(t, http.MethodPost, "/users/login", "", loginRequest{
		Email:    "ADMIN@example.com",
		Password: "correct horse",
	}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "admin@example.com", out.User.Email)

	for _, req := range []loginRequest{
		{Email: "admin@example.com", Password: "wrong password"},
		{Email: "nobody@example.com", Password: "correct horse"},
	} {
		resp = env.do(t, http.MethodPost, "/users/login", "", req, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, req.Email)
	}

	resp = env.do(t, http.MethodPost, "/users/login", "", loginRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/services", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/services", "not.a.jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := auth.GenerateAccessToken(&auth.User{ID: 1, Role: auth.RoleAdmin}, []byte("another-secret"), time.Hour)
	require.NoError(t, err)
	resp = env.do(t, http.MethodGet, "/services", other, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUsers_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	editor, _ := env.tokenFor(t, "editor@example.com", auth.RoleEditor)

	resp := env.do(t, http.MethodGet, "/users", editor, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUsers_CreateListUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerAdmin(t)

	var created auth.User
	resp := env.do(t, http.MethodPost, "/users", admin, createUserRequest{
		Email:    "ed@example.com",
		FullName: "Ed Editor",
		Password: "long enough",
		Role:     auth.RoleEditor,
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, auth.RoleEditor, created.Role)

	resp = env.do(t, http.MethodPost, "/users", admin, createUserRequest{
		Email:    "ed@example.com",
		FullName: "Ed Again",
		Password: "long enough",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/users", admin, createUserRequest{
		Email:    "x@example.com",
		FullName: "X",
		Password: "long enough",
		Role:     "owner",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var list struct {
		Users []auth.User `json:"users"`
		Count int         `json:"count"`
	}
	resp = env.do(t, http.MethodGet, "/users", admin, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, list.Count)
	assert.NotContains(t, mustJSON(t, list), "argon2id")

	var updated auth.User
	resp = env.do(t, http.MethodPatch, "/users/role", admin, updateRoleRequest{
		Email:   "ed@example.com",
		NewRole: auth.RoleViewer,
	}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, auth.RoleViewer, updated.Role)

	resp = env.do(t, http.MethodPatch, "/users/role", admin, updateRoleRequest{
		Email:   "ghost@example.com",
		NewRole: auth.RoleViewer,
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", created.ID), admin, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", created.ID), admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/users/abc", admin, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsers_CannotModifySelf(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerAdmin(t)

	claims, err := auth.ParseToken(admin, env.srv.jwtSecret)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPatch, "/users/role", admin, updateRoleRequest{
		Email:   "admin@example.com",
		NewRole: auth.RoleViewer,
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/users/%d", claims.UserID()), admin, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAudit_RecordsMutations(t *testing.T) {
	env := newTestEnv(t)
	admin := env.registerAdmin(t)

	resp := env.do(t, http.MethodPost, "/users", admin, createUserRequest{
		Email:    "v@example.com",
		FullName: "Vic Viewer",
		Password: "long enough",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var page audit.ListResult
	require.Eventually(t, func() bool {
		result, err := env.srv.auditRepo.List(context.Background(), audit.Filter{})
		return err == nil && result.Total == 2
	}, 2*time.Second, 10*time.Millisecond)

	viewer, _ := env.tokenFor(t, "viewer@example.com", auth.RoleViewer)
	resp = env.do(t, http.MethodGet, "/audit?limit=1&page=1", viewer, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Logs, 1)

	newest := page.Logs[0]
	assert.Equal(t, audit.ActionCreate, newest.ActionType)
	assert.Equal(t, audit.ResourceUser, newest.ResourceType)
	assert.Equal(t, "v@example.com", newest.ResourceName)
	assert.Equal(t, "Ada Admin", newest.UserName)

	resp = env.do(t, http.MethodGet, "/audit?actionType=DELETE", viewer, nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, page.Total)
}

func TestAudit_DropsWhenChannelFull(t *testing.T) {
	srv := &Server{auditCh: make(chan *audit.AuditLog, 1), logger: logging.Nop()}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	srv.auditLog(req, audit.ActionCreate, audit.ResourceView, "a", "", nil)
	srv.auditLog(req, audit.ActionCreate, audit.ResourceView, "b", "", nil)

	require.Len(t, srv.auditCh, 1)
	assert.Equal(t, "a", (<-srv.auditCh).ResourceID)
}
