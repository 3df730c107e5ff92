package authz

// Permission keys understood by the admin console.
const (
	PermUserView            = "user.view"
	PermUserCreate          = "user.create"
	PermUserUpdate          = "user.update"
	PermUserDelete          = "user.delete"
	PermRoleView            = "role.view"
	PermRoleManage          = "role.manage"
	PermPermissionView      = "permission.view"
	PermPermissionManage    = "permission.manage"
	PermCertificationView   = "certification.view"
	PermCertificationManage = "certification.manage"
)

// Permission describes one key for seeding and display.
type Permission struct {
	Key         string
	Name        string
	Description string
}

var BuiltinPermissions = []Permission{
	{Key: PermUserView, Name: "View Users", Description: "Can view users list and details"},
	{Key: PermUserCreate, Name: "Create Users", Description: "Can create new users"},
	{Key: PermUserUpdate, Name: "Update Users", Description: "Can edit existing users"},
	{Key: PermUserDelete, Name: "Delete Users", Description: "Can delete users"},
	{Key: PermRoleView, Name: "View Roles", Description: "Can view roles and assignments"},
	{Key: PermRoleManage, Name: "Manage Roles", Description: "Can create, edit and delete roles"},
	{Key: PermPermissionView, Name: "View Permissions"},
	{Key: PermPermissionManage, Name: "Manage Permissions"},
	{Key: PermCertificationView, Name: "View Certifications", Description: "Can browse GLI certifications"},
	{Key: PermCertificationManage, Name: "Manage Certifications", Description: "Can create, edit and delete GLI certifications"},
}
