package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"greenlabel.or.id/admin/internal/app"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/catalog"
	"greenlabel.or.id/admin/internal/guard"
	"greenlabel.or.id/admin/internal/obs"
	"greenlabel.or.id/admin/internal/store"
)

// optString distinguishes an omitted flag from an empty one.
type optString struct {
	value string
	set   bool
}

func (o *optString) String() string { return o.value }

func (o *optString) Set(v string) error {
	o.value, o.set = v, true
	return nil
}

func (o *optString) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func parse(name string, args []string, define func(fs *flag.FlagSet)) ([]string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	define(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// authorize restores the stored session and checks keys like a console page
// would before rendering.
func authorize(ctx context.Context, a *app.App, keys ...string) error {
	a.Session.Restore(ctx)
	if !a.Session.IsAuthenticated() {
		return errors.New("not logged in: run glictl login")
	}
	if len(keys) == 0 {
		return nil
	}
	return a.Gate.RequirePermission(ctx, authz.ModeAll, keys...)
}

func runLogin(ctx context.Context, a *app.App, args []string) error {
	var email, password string
	if _, err := parse("login", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&password, "password", os.Getenv("GLI_PASSWORD"), "account password")
	}); err != nil {
		return err
	}
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	if err := a.Session.Login(ctx, email, password); err != nil {
		return err
	}
	return printJSON(a.Session.Identity())
}

func runLogout(ctx context.Context, a *app.App, _ []string) error {
	return a.Session.Logout(ctx)
}

func runWhoami(ctx context.Context, a *app.App, args []string) error {
	var role string
	if _, err := parse("whoami", args, func(fs *flag.FlagSet) {
		fs.StringVar(&role, "role", "", "fail unless the account holds this role")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a); err != nil {
		return err
	}
	if role != "" {
		if err := a.Gate.RequireRole(ctx, role); err != nil {
			return err
		}
	}
	return printJSON(a.Session.Identity())
}

func runServe(ctx context.Context, a *app.App, args []string) error {
	var addr string
	if _, err := parse("serve", args, func(fs *flag.FlagSet) {
		fs.StringVar(&addr, "addr", "127.0.0.1:3000", "listen address")
	}); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.PreviewHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	obs.Info("console preview listening", map[string]any{"addr": addr})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runNav(ctx context.Context, a *app.App, _ []string) error {
	if err := authorize(ctx, a); err != nil {
		return err
	}
	a.Gate.EnsurePermissionsLoaded(ctx)
	return printJSON(guard.AdminNavigation.Visible(a.Gate))
}

func runCheck(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: glictl check <path>")
	}
	d := a.Guard.Check(ctx, args[0])
	return printJSON(map[string]string{"state": d.State.String(), "redirect": d.Redirect})
}

// users

func runUsers(ctx context.Context, a *app.App, _ []string) error {
	if err := authorize(ctx, a, authz.PermUserView); err != nil {
		return err
	}
	if err := a.Users.Fetch(ctx, false); err != nil {
		return err
	}
	return printJSON(a.Users.Items())
}

func runUserCreate(ctx context.Context, a *app.App, args []string) error {
	var in store.NewUser
	var status string
	if _, err := parse("user-create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Name, "name", "", "display name")
		fs.StringVar(&in.Email, "email", "", "email")
		fs.StringVar(&in.Password, "password", "", "initial password")
		fs.StringVar(&status, "status", string(store.UserActive), "active, inactive or pending")
		fs.StringVar(&in.Role, "role", "", "role to assign")
	}); err != nil {
		return err
	}
	in.Status = store.UserStatus(status)
	if err := authorize(ctx, a, authz.PermUserCreate); err != nil {
		return err
	}
	u, err := a.Users.Create(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(u)
}

func runUserUpdate(ctx context.Context, a *app.App, args []string) error {
	var (
		xid, status string
		name, email optString
		ch          store.UserChanges
	)
	if _, err := parse("user-update", args, func(fs *flag.FlagSet) {
		fs.StringVar(&xid, "xid", "", "user external id")
		fs.Var(&name, "name", "display name")
		fs.Var(&email, "email", "email")
		fs.StringVar(&ch.Password, "password", "", "new password")
		fs.StringVar(&status, "status", "", "active, inactive or pending")
		fs.StringVar(&ch.Role, "role", "", "role to assign")
	}); err != nil {
		return err
	}
	if xid == "" {
		return errors.New("-xid is required")
	}
	ch.Name, ch.Email, ch.Status = name.ptr(), email.ptr(), store.UserStatus(status)
	if err := authorize(ctx, a, authz.PermUserUpdate); err != nil {
		return err
	}
	if err := a.Users.Update(ctx, xid, ch); err != nil {
		return err
	}
	u, _ := a.Users.ByXID(xid)
	return printJSON(u)
}

func runUserDelete(ctx context.Context, a *app.App, args []string) error {
	var xid string
	if _, err := parse("user-delete", args, func(fs *flag.FlagSet) {
		fs.StringVar(&xid, "xid", "", "user external id")
	}); err != nil {
		return err
	}
	if xid == "" {
		return errors.New("-xid is required")
	}
	if err := authorize(ctx, a, authz.PermUserDelete); err != nil {
		return err
	}
	return a.Users.Remove(ctx, xid)
}

// rbac

func runRoles(ctx context.Context, a *app.App, _ []string) error {
	if err := authorize(ctx, a, authz.PermRoleView); err != nil {
		return err
	}
	if err := a.RBAC.FetchRoles(ctx, false); err != nil {
		return err
	}
	return printJSON(a.RBAC.Roles())
}

func runRoleCreate(ctx context.Context, a *app.App, args []string) error {
	var name string
	if _, err := parse("role-create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&name, "name", "", "role name")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermRoleManage); err != nil {
		return err
	}
	r, err := a.RBAC.CreateRole(ctx, name)
	if err != nil {
		return err
	}
	return printJSON(r)
}

func runPermissions(ctx context.Context, a *app.App, _ []string) error {
	if err := authorize(ctx, a, authz.PermPermissionView); err != nil {
		return err
	}
	if err := a.RBAC.FetchPermissions(ctx, false); err != nil {
		return err
	}
	return printJSON(a.RBAC.Permissions())
}

func runPermissionCreate(ctx context.Context, a *app.App, args []string) error {
	var key, description string
	if _, err := parse("permission-create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&key, "key", "", "permission key, e.g. report.view")
		fs.StringVar(&description, "description", "", "description")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermPermissionManage); err != nil {
		return err
	}
	p, err := a.RBAC.CreatePermission(ctx, key, description)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runAssignPermission(ctx context.Context, a *app.App, args []string) error {
	var role, permission string
	if _, err := parse("assign-permission", args, func(fs *flag.FlagSet) {
		fs.StringVar(&role, "role", "", "role name or id")
		fs.StringVar(&permission, "permission", "", "permission key")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermPermissionManage); err != nil {
		return err
	}
	return a.RBAC.AssignPermissionToRole(ctx, role, permission)
}

func runAssignRole(ctx context.Context, a *app.App, args []string) error {
	var xid, role string
	if _, err := parse("assign-role", args, func(fs *flag.FlagSet) {
		fs.StringVar(&xid, "xid", "", "user external id")
		fs.StringVar(&role, "role", "", "role name or id")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermRoleManage); err != nil {
		return err
	}
	return a.RBAC.AssignRoleToUser(ctx, xid, role)
}

// certifications

func runCerts(ctx context.Context, a *app.App, args []string) error {
	var status, typ string
	if _, err := parse("certs", args, func(fs *flag.FlagSet) {
		fs.StringVar(&status, "status", "", "filter by status")
		fs.StringVar(&typ, "type", "", "filter by type")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermCertificationView); err != nil {
		return err
	}
	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		return err
	}
	var out []catalog.EnrichedCertification
	for _, c := range a.Catalog.Enriched() {
		if status != "" && !strings.EqualFold(c.Status, status) {
			continue
		}
		if typ != "" && !strings.EqualFold(c.Type, typ) {
			continue
		}
		out = append(out, c)
	}
	return printJSON(out)
}

type certFlags struct {
	product, number        optString
	status, typ            string
	issued, expires, notes optString
}

func (c *certFlags) define(fs *flag.FlagSet) {
	fs.Var(&c.product, "product", "product id")
	fs.Var(&c.number, "number", "certificate number")
	fs.StringVar(&c.status, "status", "", "status, active by default")
	fs.StringVar(&c.typ, "type", "", "type, green-label by default")
	fs.Var(&c.issued, "issued", "issue date YYYY-MM-DD")
	fs.Var(&c.expires, "expires", "expiry date YYYY-MM-DD")
	fs.Var(&c.notes, "notes", "free-form notes")
}

func (c *certFlags) productID() (*int64, error) {
	if !c.product.set {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(c.product.value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("-product must be numeric: %w", err)
	}
	return &n, nil
}

func runCertCreate(ctx context.Context, a *app.App, args []string) error {
	var f certFlags
	if _, err := parse("cert-create", args, f.define); err != nil {
		return err
	}
	product, err := f.productID()
	if err != nil {
		return err
	}
	if product == nil {
		return errors.New("-product is required")
	}
	if err := authorize(ctx, a, authz.PermCertificationManage); err != nil {
		return err
	}
	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		return err
	}
	c, err := a.Catalog.Create(ctx, store.NewCertification{
		ProductID:         *product,
		CertificateNumber: f.number.value,
		Status:            f.status,
		Type:              f.typ,
		IssuedAt:          f.issued.ptr(),
		ExpiresAt:         f.expires.ptr(),
		Notes:             f.notes.ptr(),
	})
	if err != nil {
		return err
	}
	return printJSON(c)
}

func runCertUpdate(ctx context.Context, a *app.App, args []string) error {
	var (
		f  certFlags
		id string
	)
	if _, err := parse("cert-update", args, func(fs *flag.FlagSet) {
		f.define(fs)
		fs.StringVar(&id, "id", "", "certification id")
	}); err != nil {
		return err
	}
	product, err := f.productID()
	if err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermCertificationManage); err != nil {
		return err
	}
	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		return err
	}
	c, err := a.Catalog.Update(ctx, catalog.ParseCertificationID(id), store.CertificationChanges{
		ProductID:         product,
		CertificateNumber: f.number.ptr(),
		Status:            f.status,
		Type:              f.typ,
		IssuedAt:          f.issued.ptr(),
		ExpiresAt:         f.expires.ptr(),
		Notes:             f.notes.ptr(),
	})
	if err != nil {
		return err
	}
	return printJSON(c)
}

func runCertDelete(ctx context.Context, a *app.App, args []string) error {
	var id string
	if _, err := parse("cert-delete", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "certification id")
	}); err != nil {
		return err
	}
	if err := authorize(ctx, a, authz.PermCertificationManage); err != nil {
		return err
	}
	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		return err
	}
	return a.Catalog.Delete(ctx, catalog.ParseCertificationID(id))
}

// public catalog

func runProducts(ctx context.Context, a *app.App, args []string) error {
	var q store.ProductQuery
	if _, err := parse("products", args, func(fs *flag.FlagSet) {
		fs.IntVar(&q.Page, "page", store.DefaultPage, "page number")
		fs.IntVar(&q.Limit, "limit", store.DefaultLimit, "page size")
		fs.StringVar(&q.Category, "category", store.AllCategories, "category name")
		fs.StringVar(&q.Search, "search", "", "search text")
		fs.StringVar(&q.Sort, "sort", store.SortPopular, "popular, newest or name")
	}); err != nil {
		return err
	}
	page, err := a.Products.List(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"items":       page.Items,
		"total":       page.Total,
		"page":        page.Page,
		"total_pages": page.TotalPages(),
	})
}

func runCategories(ctx context.Context, a *app.App, _ []string) error {
	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		return err
	}
	return printJSON(a.Products.CategoryCounts())
}
