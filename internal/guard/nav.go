package guard

import "greenlabel.or.id/admin/internal/authz"

// PermissionChecker is satisfied by *authz.Gate.
type PermissionChecker interface {
	HasPermission(key string) bool
}

// NavItem is one entry of the admin menu. An empty Permission means always
// visible.
type NavItem struct {
	Label      string    `json:"label"`
	To         string    `json:"to,omitempty"`
	Permission string    `json:"permission,omitempty"`
	Children   []NavItem `json:"children,omitempty"`
}

type Navigation []NavItem

// AdminNavigation is the console menu.
var AdminNavigation = Navigation{
	{Label: "Dashboard", To: "/admin"},
	{Label: "Manajemen Konten", Children: []NavItem{
		{Label: "Event", To: "/admin/products/categories"},
		{Label: "Artikel", To: "/admin/products/categories"},
		{Label: "FAQ", To: "/admin/products/categories"},
	}},
	{Label: "Manajemen Site", Children: []NavItem{
		{Label: "Milestone", To: "/admin/products/categories"},
	}},
	{Label: "Sertifikasi GLI", Permission: authz.PermCertificationView, Children: []NavItem{
		{Label: "Sertifikasi", To: "/admin/gli-certificate"},
		{Label: "Kategori", To: "/admin/products/categories"},
	}},
	{Label: "Sertifikasi GTRI", Permission: authz.PermCertificationView, Children: []NavItem{
		{Label: "Sertifikasi", To: "/admin/products"},
		{Label: "Kategori", To: "/admin/products/categories"},
	}},
	{Label: "Access Control", Children: []NavItem{
		{Label: "Users", To: "/admin/users", Permission: authz.PermUserView},
		{Label: "Roles", To: "/admin/roles", Permission: authz.PermRoleView},
		{Label: "Permissions", To: "/admin/permissions", Permission: authz.PermPermissionView},
	}},
}

// Visible filters the tree down to what p may open. Groups left without
// children are dropped.
func (n Navigation) Visible(p PermissionChecker) Navigation {
	var out Navigation
	for _, item := range n {
		if item.Permission != "" && !p.HasPermission(item.Permission) {
			continue
		}
		if len(item.Children) > 0 {
			children := Navigation(item.Children).Visible(p)
			if len(children) == 0 {
				continue
			}
			item.Children = children
		}
		out = append(out, item)
	}
	return out
}
