package mockapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"greenlabel.or.id/admin/internal/audit"
)

type userView struct {
	ID        int64    `json:"id"`
	XID       string   `json:"xid"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	IsActive  bool     `json:"is_active"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Roles     []string `json:"roles"`
}

func userViewOf(u user) userView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userView{
		ID:        u.ID,
		XID:       u.XID,
		Name:      u.Name,
		Email:     u.Email,
		IsActive:  u.Active,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
		Roles:     roles,
	}
}

type roleView struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func roleViewOf(r role) roleView {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleView{
		ID:          r.ID,
		Name:        r.Name,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type permissionView struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

type createRoleRequest struct {
	Name string `json:"name"`
}

type createPermissionRequest struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

type assignPermissionRequest struct {
	Permission string `json:"permission"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users := s.state.listUsers()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userViewOf(u))
	}
	writeList(w, r, out)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	xid := mux.Vars(r)["xid"]
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	patch := userPatch{Name: req.Name, Email: req.Email, Active: req.IsActive}
	if req.Password != nil && *req.Password != "" {
		hash, err := hashPassword(*req.Password, s.bcryptCost)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal", "password hashing failed")
			return
		}
		patch.PasswordHash = hash
	}
	u, err := s.state.updateUser(xid, patch)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"xid": xid})
	writeData(w, r, http.StatusOK, userViewOf(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	xid := mux.Vars(r)["xid"]
	if err := s.state.deleteUser(xid); err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"xid": xid})
	writeData(w, r, http.StatusOK, nil)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles := s.state.listRoles()
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleViewOf(role))
	}
	writeList(w, r, out)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	role, err := s.state.createRole(req.Name)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{"role": role.Name})
	writeData(w, r, http.StatusCreated, roleViewOf(role))
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := s.state.listPermissions()
	out := make([]permissionView, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionView{
			ID:          p.ID,
			Key:         p.Key,
			Description: p.Description,
			CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeList(w, r, out)
}

func (s *Server) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := s.state.createPermission(req.Key, req.Description)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{"permission": p.Key})
	writeData(w, r, http.StatusCreated, permissionView{
		ID:          p.ID,
		Key:         p.Key,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAssignPermission(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	role, err := s.state.assignPermission(mux.Vars(r)["role"], req.Permission)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
		"role":       role.Name,
		"permission": req.Permission,
	})
	writeData(w, r, http.StatusOK, roleViewOf(role))
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	u, err := s.state.assignRole(mux.Vars(r)["xid"], req.Role)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.assign_role", map[string]any{"xid": u.XID, "role": req.Role})
	writeData(w, r, http.StatusOK, userViewOf(u))
}
