package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/guard"
)

// PreviewHandler serves the console pages of the local session as JSON.
// Admin pages sit behind the navigation guard; each page then checks its own
// permission the way the page component would.
func (a *App) PreviewHandler() http.Handler {
	admin := mux.NewRouter()
	admin.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		a.Gate.EnsurePermissionsLoaded(r.Context())
		writePreview(w, http.StatusOK, guard.AdminNavigation.Visible(a.Gate))
	}).Methods(http.MethodGet)
	admin.HandleFunc("/admin/users", a.page(authz.PermUserView, func(r *http.Request) (any, error) {
		err := a.Users.Fetch(r.Context(), false)
		return a.Users.Items(), err
	})).Methods(http.MethodGet)
	admin.HandleFunc("/admin/roles", a.page(authz.PermRoleView, func(r *http.Request) (any, error) {
		err := a.RBAC.FetchRoles(r.Context(), false)
		return a.RBAC.Roles(), err
	})).Methods(http.MethodGet)
	admin.HandleFunc("/admin/permissions", a.page(authz.PermPermissionView, func(r *http.Request) (any, error) {
		err := a.RBAC.FetchPermissions(r.Context(), false)
		return a.RBAC.Permissions(), err
	})).Methods(http.MethodGet)
	admin.HandleFunc("/admin/gli-certificate", a.page(authz.PermCertificationView, func(r *http.Request) (any, error) {
		err := a.Catalog.FetchAll(r.Context(), false)
		return a.Catalog.Enriched(), err
	})).Methods(http.MethodGet)
	admin.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePreview(w, http.StatusNotFound, map[string]string{"error": "no such page"})
	})

	root := mux.NewRouter()
	root.HandleFunc(a.Config.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		writePreview(w, http.StatusUnauthorized, map[string]string{
			"error":    "not logged in: run glictl login",
			"redirect": r.URL.Query().Get("redirect"),
		})
	}).Methods(http.MethodGet)
	root.PathPrefix("/").Handler(a.Guard.Middleware(admin))
	return root
}

func (a *App) page(permission string, load func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Gate.RequirePermission(r.Context(), authz.ModeAll, permission); err != nil {
			writePreview(w, http.StatusForbidden, map[string]string{"error": err.Error()})
			return
		}
		data, err := load(r)
		if err != nil {
			status := apiclient.StatusOf(err)
			if status == 0 {
				status = http.StatusBadGateway
			}
			writePreview(w, status, map[string]string{"error": apiclient.Message(err, "request failed")})
			return
		}
		writePreview(w, http.StatusOK, data)
	}
}

func writePreview(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
