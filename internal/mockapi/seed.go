package mockapi

import (
	"fmt"
	"time"

	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/catalog"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password"

// Seeded accounts. The admin holds every builtin permission.
const (
	DemoAdminEmail  = "alice@example.com"
	DemoEditorEmail = "bob@example.com"
)

var demoRoles = []struct {
	name  string
	perms []string
}{
	{"Admin", nil},
	{"Editor", []string{authz.PermUserView, authz.PermUserCreate, authz.PermUserUpdate, authz.PermRoleView, authz.PermCertificationView}},
	{"Viewer", []string{authz.PermUserView, authz.PermRoleView, authz.PermPermissionView, authz.PermCertificationView}},
}

var demoUsers = []struct {
	name, email string
	active      bool
	roles       []string
}{
	{"Alice Johnson", DemoAdminEmail, true, []string{"Admin"}},
	{"Bob Smith", DemoEditorEmail, true, []string{"Editor"}},
	{"Charlie Davis", "charlie@example.com", false, []string{"Viewer"}},
	{"Diana King", "diana@example.com", false, []string{"Editor", "Viewer"}},
}

func (s *Server) seedDemo() error {
	all := make([]string, 0, len(authz.BuiltinPermissions))
	for _, p := range authz.BuiltinPermissions {
		if _, err := s.state.createPermission(p.Key, p.Description); err != nil {
			return err
		}
		all = append(all, p.Key)
	}
	for _, r := range demoRoles {
		perms := r.perms
		if perms == nil {
			perms = all
		}
		if _, err := s.state.createRole(r.name, perms...); err != nil {
			return err
		}
	}

	hash, err := hashPassword(DemoPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	for _, u := range demoUsers {
		if _, err := s.state.createUser(u.name, u.email, hash, u.active, u.roles...); err != nil {
			return err
		}
	}

	building := s.state.addCategory("Building Materials", "Sustainable construction materials that meet the highest environmental standards.")
	interior := s.state.addCategory("Interior Products", "Eco-friendly interior solutions for modern sustainable living spaces.")
	cleaning := s.state.addCategory("Cleaning Products", "Green cleaning solutions that protect both your health and the environment.")

	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	semen := s.state.addBrand("Semen Hijau", building.ID)
	cat := s.state.addBrand("Warna Alam", interior.ID)
	sabun := s.state.addBrand("Bersih Lestari", cleaning.ID)

	cement := s.state.addProduct("Portland Composite Cement", semen.ID, 4.7, base)
	paint := s.state.addProduct("Low VOC Wall Paint", cat.ID, 4.5, base.AddDate(0, 1, 0))
	s.state.addProduct("Plant Based Floor Cleaner", sabun.ID, 4.2, base.AddDate(0, 2, 0))

	issued, expires := "2024-01-15", "2027-01-15"
	if _, err := s.state.saveCertification(0, catalog.CertificationBody{
		ProductID:         cement.ID,
		CertificateNumber: "GLI-2024-001",
		Type:              catalog.DefaultType,
		Status:            catalog.DefaultStatus,
		IssuedAt:          &issued,
		ExpiresAt:         &expires,
	}); err != nil {
		return err
	}
	if _, err := s.state.saveCertification(0, catalog.CertificationBody{
		ProductID:         paint.ID,
		CertificateNumber: "GTRI-2023-014",
		Type:              "gtri",
		Status:            "expired",
	}); err != nil {
		return err
	}
	return nil
}
