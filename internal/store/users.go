package store

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/audit"
	"greenlabel.or.id/admin/internal/session"
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserPending  UserStatus = "pending"
)

type User struct {
	ID        int64      `json:"id"`
	XID       string     `json:"xid"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Status    UserStatus `json:"status"`
	CreatedAt string     `json:"createdAt,omitempty"`
	UpdatedAt string     `json:"updatedAt,omitempty"`
	Roles     []string   `json:"roles"`
}

type apiUser struct {
	ID        int64       `json:"id"`
	XID       string      `json:"xid"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	IsActive  bool        `json:"is_active"`
	CreatedAt string      `json:"created_at,omitempty"`
	UpdatedAt string      `json:"updated_at,omitempty"`
	Roles     session.Set `json:"roles,omitempty"`
}

func normalizeUser(u apiUser) User {
	status := UserInactive
	if u.IsActive {
		status = UserActive
	}
	return User{
		ID:        u.ID,
		XID:       u.XID,
		Name:      u.Name,
		Email:     u.Email,
		Status:    status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Roles:     u.Roles.Slice(),
	}
}

// NewUser is the input of Users.Create.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Status   UserStatus
	Role     string
}

// UserChanges is the input of Users.Update. Nil fields, an empty password,
// status or role are left untouched.
type UserChanges struct {
	Name     *string
	Email    *string
	Password string
	Status   UserStatus
	Role     string
}

// Users caches the user list. Role assignment goes through the RBAC store.
type Users struct {
	client apiclient.Requester
	rbac   *RBAC

	mu      sync.Mutex
	items   []User
	loaded  bool
	pending bool
	err     string
}

func NewUsers(client apiclient.Requester, rbac *RBAC) *Users {
	return &Users{client: client, rbac: rbac}
}

func (s *Users) Fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.loaded && !force {
		s.mu.Unlock()
		return nil
	}
	s.pending = true
	s.err = ""
	s.mu.Unlock()

	raw, err := fetchList[apiUser](ctx, s.client, "users")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if err != nil {
		s.err = failure("users.fetch", err, "Failed to load users")
		return err
	}
	items := make([]User, 0, len(raw))
	for _, u := range raw {
		items = append(items, normalizeUser(u))
	}
	s.items = items
	s.loaded = true
	return nil
}

func (s *Users) Items() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Users) ByXID(xid string) (User, bool) {
	return s.find(func(u User) bool { return u.XID == xid })
}

func (s *Users) ByEmail(email string) (User, bool) {
	return s.find(func(u User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Users) find(match func(User) bool) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.items, match); i >= 0 {
		return s.items[i], true
	}
	return User{}, false
}

func (s *Users) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Users) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Users) setErr(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

// Create registers the account, then applies status and role. Every response
// is spliced into the cache by xid. A register response without a user forces
// one reload so the account can be found by email.
func (s *Users) Create(ctx context.Context, in NewUser) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return User{}, validationError("name, email and password are required")
	}

	var registered apiUser
	if err := s.client.Fetch(ctx, "auth/register", apiclient.RequestOptions{
		Method:   http.MethodPost,
		SkipAuth: true,
		Body: map[string]string{
			"name":     in.Name,
			"email":    in.Email,
			"password": in.Password,
		},
	}, &registered); err != nil {
		s.setErr(failure("users.create", err, "Failed to create user"))
		return User{}, err
	}

	var xid string
	if registered.XID != "" {
		s.settle(registered.XID, registered, nil)
		xid = registered.XID
	} else {
		if err := s.Fetch(ctx, true); err != nil {
			return User{}, err
		}
		found, ok := s.ByEmail(in.Email)
		if !ok || found.XID == "" {
			return User{}, nil
		}
		xid = found.XID
	}

	if in.Status != "" && in.Status != UserActive {
		resp, err := s.put(ctx, xid, map[string]any{"is_active": false})
		if err != nil {
			return User{}, err
		}
		s.settle(xid, resp, func(u *User) { u.Status = UserInactive })
	}
	if in.Role != "" {
		if err := s.assignRole(ctx, xid, in.Role); err != nil {
			return User{}, err
		}
	}
	_ = audit.LogEvent(ctx, "user.created", map[string]any{"xid": xid})

	created, _ := s.ByXID(xid)
	return created, nil
}

// Update sends the changed fields and splices the returned user by xid. When
// the server does not echo the record, the changes are applied to the cached
// entry.
func (s *Users) Update(ctx context.Context, xid string, ch UserChanges) error {
	if strings.TrimSpace(xid) == "" {
		return validationError("user xid is required")
	}
	body := map[string]any{}
	if ch.Name != nil {
		body["name"] = *ch.Name
	}
	if ch.Email != nil {
		body["email"] = *ch.Email
	}
	if ch.Password != "" {
		body["password"] = ch.Password
	}
	if ch.Status != "" {
		body["is_active"] = ch.Status == UserActive
	}

	resp, err := s.put(ctx, xid, body)
	if err != nil {
		return err
	}
	s.settle(xid, resp, func(u *User) {
		if ch.Name != nil {
			u.Name = *ch.Name
		}
		if ch.Email != nil {
			u.Email = *ch.Email
		}
		if ch.Status == UserActive {
			u.Status = UserActive
		} else if ch.Status != "" {
			u.Status = UserInactive
		}
	})
	if ch.Role != "" {
		if err := s.assignRole(ctx, xid, ch.Role); err != nil {
			return err
		}
	}
	_ = audit.LogEvent(ctx, "user.updated", map[string]any{"xid": xid})
	return nil
}

func (s *Users) assignRole(ctx context.Context, xid, role string) error {
	var resp apiUser
	if err := s.rbac.assignRole(ctx, xid, role, &resp); err != nil {
		return err
	}
	s.settle(xid, resp, func(u *User) {
		if !slices.ContainsFunc(u.Roles, func(r string) bool { return strings.EqualFold(r, role) }) {
			u.Roles = append(slices.Clone(u.Roles), role)
		}
	})
	return nil
}

// settle splices resp into the cache when it names a user; otherwise local,
// if set, is applied to the cached entry for xid.
func (s *Users) settle(xid string, resp apiUser, local func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.XID != "" {
		s.items = spliceByID(s.items, normalizeUser(resp), userXID)
		return
	}
	if local == nil {
		return
	}
	if i := slices.IndexFunc(s.items, func(u User) bool { return u.XID == xid }); i >= 0 {
		local(&s.items[i])
	}
}

func userXID(u User) string { return u.XID }

func (s *Users) Remove(ctx context.Context, xid string) error {
	if strings.TrimSpace(xid) == "" {
		return validationError("user xid is required")
	}
	if err := s.client.Fetch(ctx, "users/"+apiclient.PathEscape(xid), apiclient.RequestOptions{
		Method: http.MethodDelete,
	}, nil); err != nil {
		s.setErr(failure("users.remove", err, "Failed to delete user"))
		return err
	}
	s.mu.Lock()
	s.items = slices.DeleteFunc(s.items, func(u User) bool { return u.XID == xid })
	s.mu.Unlock()
	_ = audit.LogEvent(ctx, "user.deleted", map[string]any{"xid": xid})
	return nil
}

func (s *Users) put(ctx context.Context, xid string, body map[string]any) (apiUser, error) {
	var resp apiUser
	err := s.client.Fetch(ctx, "users/"+apiclient.PathEscape(xid), apiclient.RequestOptions{
		Method: http.MethodPut,
		Body:   body,
	}, &resp)
	if err != nil {
		s.setErr(failure("users.update", err, "Failed to update user"))
	}
	return resp, err
}
