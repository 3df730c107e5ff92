package mockapi

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenlabel.or.id/admin/internal/catalog"
)

var (
	errNotFound = errors.New("mockapi: not found")
	errConflict = errors.New("mockapi: already exists")
	errInvalid  = errors.New("mockapi: invalid input")
)

func invalid(msg string) error { return fmt.Errorf("%w: %s", errInvalid, msg) }

type user struct {
	ID           int64
	XID          string
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *user) snapshot() user {
	out := *u
	out.Roles = slices.Clone(u.Roles)
	return out
}

type role struct {
	ID          int64
	Name        string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *role) snapshot() role {
	out := *r
	out.Permissions = slices.Clone(r.Permissions)
	return out
}

type permission struct {
	ID          int64
	Key         string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type certification struct {
	ID                int64
	ProductID         int64
	CertificateNumber string
	Type              string
	Status            string
	IssuedAt          *string
	ExpiresAt         *string
	Notes             *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type product struct {
	ID        int64
	Name      string
	Slug      string
	BrandID   int64
	Rating    float64
	Image     string
	CreatedAt time.Time
}

// state is the in-memory backend. All methods are safe for concurrent use.
type state struct {
	mu  sync.RWMutex
	now func() time.Time

	users       []*user
	roles       []*role
	permissions []*permission
	categories  []catalog.BrandCategory
	brands      []catalog.Brand
	products    []*product
	certs       []*certification
	nextID      int64
}

func newState(now func() time.Time) *state {
	return &state{now: now, nextID: 1000}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// users

func (s *state) userByEmail(email string) (user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.findUser(func(u *user) bool { return strings.EqualFold(u.Email, email) }); u != nil {
		return u.snapshot(), true
	}
	return user{}, false
}

func (s *state) userByXID(xid string) (user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.findUser(func(u *user) bool { return u.XID == xid }); u != nil {
		return u.snapshot(), true
	}
	return user{}, false
}

func (s *state) findUser(match func(*user) bool) *user {
	for _, u := range s.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (s *state) listUsers() []user {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.snapshot())
	}
	return out
}

func (s *state) createUser(name, email, passwordHash string, active bool, roles ...string) (user, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || passwordHash == "" {
		return user{}, invalid("name, email and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findUser(func(u *user) bool { return strings.EqualFold(u.Email, email) }) != nil {
		return user{}, fmt.Errorf("%w: email %s", errConflict, email)
	}
	now := s.now()
	u := &user{
		ID:           s.id(),
		XID:          uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       active,
		Roles:        slices.Clone(roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users = append(s.users, u)
	return u.snapshot(), nil
}

type userPatch struct {
	Name         *string
	Email        *string
	PasswordHash string
	Active       *bool
}

func (s *state) updateUser(xid string, p userPatch) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findUser(func(u *user) bool { return u.XID == xid })
	if u == nil {
		return user{}, errNotFound
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" {
			return user{}, invalid("email must not be empty")
		}
		if other := s.findUser(func(o *user) bool { return strings.EqualFold(o.Email, email) }); other != nil && other != u {
			return user{}, fmt.Errorf("%w: email %s", errConflict, email)
		}
		u.Email = email
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return user{}, invalid("name must not be empty")
		}
		u.Name = name
	}
	if p.PasswordHash != "" {
		u.PasswordHash = p.PasswordHash
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	u.UpdatedAt = s.now()
	return u.snapshot(), nil
}

func (s *state) deleteUser(xid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.users)
	s.users = slices.DeleteFunc(s.users, func(u *user) bool { return u.XID == xid })
	if len(s.users) == n {
		return errNotFound
	}
	return nil
}

// permissionsOf resolves the permission keys granted through the user's roles.
func (s *state) permissionsOf(u user) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, name := range u.Roles {
		r := s.findRole(name)
		if r == nil {
			continue
		}
		for _, key := range r.Permissions {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				out = append(out, key)
			}
		}
	}
	slices.Sort(out)
	return out
}

// rbac

func (s *state) findRole(ref string) *role {
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, ref) || fmt.Sprint(r.ID) == ref {
			return r
		}
	}
	return nil
}

func (s *state) listRoles() []role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r.snapshot())
	}
	return out
}

func (s *state) createRole(name string, perms ...string) (role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return role{}, invalid("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findRole(name) != nil {
		return role{}, fmt.Errorf("%w: role %s", errConflict, name)
	}
	now := s.now()
	r := &role{ID: s.id(), Name: name, Permissions: slices.Clone(perms), CreatedAt: now, UpdatedAt: now}
	s.roles = append(s.roles, r)
	return r.snapshot(), nil
}

func (s *state) listPermissions() []permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, *p)
	}
	return out
}

func (s *state) createPermission(key, description string) (permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return permission{}, invalid("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Key == key {
			return permission{}, fmt.Errorf("%w: permission %s", errConflict, key)
		}
	}
	now := s.now()
	p := &permission{ID: s.id(), Key: key, Description: strings.TrimSpace(description), CreatedAt: now, UpdatedAt: now}
	s.permissions = append(s.permissions, p)
	return *p, nil
}

func (s *state) assignPermission(roleRef, key string) (role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findRole(roleRef)
	if r == nil {
		return role{}, fmt.Errorf("%w: role %s", errNotFound, roleRef)
	}
	if !slices.ContainsFunc(s.permissions, func(p *permission) bool { return p.Key == key }) {
		return role{}, fmt.Errorf("%w: permission %s", errNotFound, key)
	}
	if !slices.Contains(r.Permissions, key) {
		r.Permissions = append(r.Permissions, key)
		r.UpdatedAt = s.now()
	}
	return r.snapshot(), nil
}

func (s *state) assignRole(xid, roleRef string) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findUser(func(u *user) bool { return u.XID == xid })
	if u == nil {
		return user{}, fmt.Errorf("%w: user %s", errNotFound, xid)
	}
	r := s.findRole(roleRef)
	if r == nil {
		return user{}, fmt.Errorf("%w: role %s", errNotFound, roleRef)
	}
	if !slices.Contains(u.Roles, r.Name) {
		u.Roles = append(u.Roles, r.Name)
		u.UpdatedAt = s.now()
	}
	return u.snapshot(), nil
}

// catalog

func (s *state) addCategory(name, description string) catalog.BrandCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := catalog.BrandCategory{ID: s.id(), Name: name, Slug: catalog.Slugify(name), Description: description}
	s.categories = append(s.categories, c)
	return c
}

func (s *state) addBrand(name string, categoryID int64) catalog.Brand {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := catalog.Brand{ID: s.id(), Name: name, Slug: catalog.Slugify(name), CategoryID: categoryID}
	s.brands = append(s.brands, b)
	return b
}

func (s *state) addProduct(name string, brandID int64, rating float64, createdAt time.Time) product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &product{ID: s.id(), Name: name, Slug: catalog.Slugify(name), BrandID: brandID, Rating: rating, CreatedAt: createdAt}
	s.products = append(s.products, p)
	return *p
}

func (s *state) listCategories() []catalog.BrandCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories)
}

func (s *state) listBrands() []catalog.Brand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.brands)
}

// productRecord is a product with its brand, category and certifications.
type productRecord struct {
	product
	Brand    *catalog.Brand
	Category *catalog.BrandCategory
	Certs    []certification
}

func (s *state) listProducts() []productRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]productRecord, 0, len(s.products))
	for _, p := range s.products {
		v := productRecord{product: *p}
		if i := slices.IndexFunc(s.brands, func(b catalog.Brand) bool { return b.ID == p.BrandID }); i >= 0 {
			brand := s.brands[i]
			v.Brand = &brand
			if j := slices.IndexFunc(s.categories, func(c catalog.BrandCategory) bool { return c.ID == brand.CategoryID }); j >= 0 {
				category := s.categories[j]
				v.Category = &category
			}
		}
		for _, c := range s.certs {
			if c.ProductID == p.ID {
				v.Certs = append(v.Certs, *c)
			}
		}
		out = append(out, v)
	}
	return out
}

func (s *state) hasProduct(id int64) bool {
	return slices.ContainsFunc(s.products, func(p *product) bool { return p.ID == id })
}

func (s *state) saveCertification(id int64, body catalog.CertificationBody) (certification, error) {
	number := strings.TrimSpace(body.CertificateNumber)
	if number == "" {
		return certification{}, invalid("certificate_number is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProduct(body.ProductID) {
		return certification{}, invalid(fmt.Sprintf("product %d does not exist", body.ProductID))
	}
	now := s.now()
	var c *certification
	if id == 0 {
		c = &certification{ID: s.id(), CreatedAt: now}
		s.certs = append(s.certs, c)
	} else {
		i := slices.IndexFunc(s.certs, func(c *certification) bool { return c.ID == id })
		if i < 0 {
			return certification{}, errNotFound
		}
		c = s.certs[i]
	}
	c.ProductID = body.ProductID
	c.CertificateNumber = number
	c.Type = strings.ToLower(cmp.Or(strings.TrimSpace(body.Type), catalog.DefaultType))
	c.Status = strings.ToLower(cmp.Or(strings.TrimSpace(body.Status), catalog.DefaultStatus))
	c.IssuedAt = body.IssuedAt
	c.ExpiresAt = body.ExpiresAt
	c.Notes = body.Notes
	c.UpdatedAt = now
	return *c, nil
}

func (s *state) deleteCertification(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.certs)
	s.certs = slices.DeleteFunc(s.certs, func(c *certification) bool { return c.ID == id })
	if len(s.certs) == n {
		return errNotFound
	}
	return nil
}
