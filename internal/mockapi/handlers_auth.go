package mockapi

import (
	"net/http"
	"strings"
	"time"

	"greenlabel.or.id/admin/internal/audit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileView struct {
	XID         string   `json:"xid"`
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (s *Server) profileOf(u user) profileView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	perms := s.state.permissionsOf(u)
	if perms == nil {
		perms = []string{}
	}
	return profileView{XID: u.XID, Email: u.Email, Name: u.Name, Roles: roles, Permissions: perms}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	u, ok := s.state.userByEmail(strings.TrimSpace(req.Email))
	if !ok || !verifyPassword(u.PasswordHash, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if !u.Active {
		writeError(w, r, http.StatusForbidden, "account_inactive", "Account is not active")
		return
	}
	token, err := s.tokens.issue(u, s.state.permissionsOf(u))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token_error", "token generation failed")
		return
	}
	ctx := audit.WithRequestID(audit.WithActor(r.Context(), u.XID), r.Header.Get(headerRequestID))
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"email": u.Email})

	writeData(w, r, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.ttl / time.Second),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "password is required")
		return
	}
	hash, err := hashPassword(req.Password, s.bcryptCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "password hashing failed")
		return
	}
	u, err := s.state.createUser(req.Name, req.Email, hash, true)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(audit.WithRequestID(r.Context(), r.Header.Get(headerRequestID)), "user.registered", map[string]any{"xid": u.XID})
	writeData(w, r, http.StatusCreated, userViewOf(u))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	writeData(w, r, http.StatusOK, s.profileOf(p.user))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	u, err := s.state.updateUser(p.user.XID, userPatch{Name: &req.Name, Email: &req.Email})
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.updated", nil)
	writeData(w, r, http.StatusOK, s.profileOf(u))
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if !verifyPassword(p.user.PasswordHash, req.CurrentPassword) {
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "Current password is incorrect")
		return
	}
	if req.Password == "" || req.Password != req.PasswordConfirmation {
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "Password confirmation does not match")
		return
	}
	hash, err := hashPassword(req.Password, s.bcryptCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "password hashing failed")
		return
	}
	u, err := s.state.updateUser(p.user.XID, userPatch{PasswordHash: hash})
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.password_changed", nil)
	writeData(w, r, http.StatusOK, s.profileOf(u))
}
