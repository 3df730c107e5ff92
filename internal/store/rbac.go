package store

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/audit"
)

type Role struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// RBAC caches roles and permissions and performs assignments.
type RBAC struct {
	client apiclient.Requester

	mu                 sync.Mutex
	roles              []Role
	permissions        []Permission
	rolesLoaded        bool
	permissionsLoaded  bool
	loadingRoles       bool
	loadingPermissions bool
	rolesErr           string
	permissionsErr     string
}

func NewRBAC(client apiclient.Requester) *RBAC {
	return &RBAC{client: client}
}

func (s *RBAC) FetchRoles(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.rolesLoaded && !force {
		s.mu.Unlock()
		return nil
	}
	s.loadingRoles = true
	s.rolesErr = ""
	s.mu.Unlock()

	roles, err := fetchList[Role](ctx, s.client, "rbac/roles")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingRoles = false
	if err != nil {
		s.rolesErr = failure("rbac.roles", err, "Failed to load roles")
		return err
	}
	s.roles = roles
	s.rolesLoaded = true
	return nil
}

func (s *RBAC) FetchPermissions(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.permissionsLoaded && !force {
		s.mu.Unlock()
		return nil
	}
	s.loadingPermissions = true
	s.permissionsErr = ""
	s.mu.Unlock()

	perms, err := fetchList[Permission](ctx, s.client, "rbac/permissions")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingPermissions = false
	if err != nil {
		s.permissionsErr = failure("rbac.permissions", err, "Failed to load permissions")
		return err
	}
	s.permissions = perms
	s.permissionsLoaded = true
	return nil
}

// CreateRole creates a role and splices it into the cached list by name.
func (s *RBAC) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, validationError("role name is required")
	}
	var created Role
	if err := s.client.Fetch(ctx, "rbac/roles", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"name": name},
	}, &created); err != nil {
		s.setRolesErr(failure("rbac.create_role", err, "Failed to create role"))
		return Role{}, err
	}
	if created.Name == "" {
		created.Name = name
	}
	s.mu.Lock()
	s.roles = spliceByID(s.roles, created, roleKey)
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "rbac.role_created", map[string]any{"role": name})
	return created, nil
}

// CreatePermission creates a permission and splices it into the cached list
// by key.
func (s *RBAC) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Permission{}, validationError("permission key is required")
	}
	body := map[string]string{"key": key}
	if description = strings.TrimSpace(description); description != "" {
		body["description"] = description
	}
	var created Permission
	if err := s.client.Fetch(ctx, "rbac/permissions", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   body,
	}, &created); err != nil {
		s.setPermissionsErr(failure("rbac.create_permission", err, "Failed to create permission"))
		return Permission{}, err
	}
	if created.Key == "" {
		created.Key, created.Description = key, description
	}
	s.mu.Lock()
	s.permissions = spliceByID(s.permissions, created, permissionKey)
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "rbac.permission_created", map[string]any{"permission": key})
	return created, nil
}

func roleKey(r Role) string             { return strings.ToLower(r.Name) }
func permissionKey(p Permission) string { return p.Key }

func (s *RBAC) AssignPermissionToRole(ctx context.Context, role, permission string) error {
	role, permission = strings.TrimSpace(role), strings.TrimSpace(permission)
	if role == "" || permission == "" {
		return validationError("role and permission are required")
	}
	err := s.client.Fetch(ctx, "rbac/roles/"+apiclient.PathEscape(role)+"/permissions", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"permission": permission},
	}, nil)
	if err != nil {
		return wrapUntyped(err, "Failed to assign permission to role")
	}
	_ = audit.LogEvent(ctx, "rbac.permission_assigned", map[string]any{"role": role, "permission": permission})
	return nil
}

func (s *RBAC) AssignRoleToUser(ctx context.Context, xid, role string) error {
	return s.assignRole(ctx, xid, role, nil)
}

// assignRole decodes the updated user into out when out is non-nil.
func (s *RBAC) assignRole(ctx context.Context, xid, role string, out any) error {
	xid, role = strings.TrimSpace(xid), strings.TrimSpace(role)
	if xid == "" || role == "" {
		return validationError("user and role are required")
	}
	err := s.client.Fetch(ctx, "rbac/users/"+apiclient.PathEscape(xid)+"/roles", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"role": role},
	}, out)
	if err != nil {
		return wrapUntyped(err, "Failed to assign role to user")
	}
	_ = audit.LogEvent(ctx, "rbac.role_assigned", map[string]any{"xid": xid, "role": role})
	return nil
}

func (s *RBAC) Roles() []Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roles)
}

func (s *RBAC) Permissions() []Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.permissions)
}

// RoleByName matches case-insensitively.
func (s *RBAC) RoleByName(name string) (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Role{}, false
}

func (s *RBAC) LoadingRoles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingRoles
}

func (s *RBAC) LoadingPermissions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingPermissions
}

func (s *RBAC) RolesErr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesErr
}

func (s *RBAC) PermissionsErr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionsErr
}

func (s *RBAC) setRolesErr(msg string) {
	s.mu.Lock()
	s.rolesErr = msg
	s.mu.Unlock()
}

func (s *RBAC) setPermissionsErr(msg string) {
	s.mu.Lock()
	s.permissionsErr = msg
	s.mu.Unlock()
}
