package session

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Set is an unordered set of role or permission keys.
type Set map[string]struct{}

// NewSet builds a set from items, dropping blanks.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			s[item] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Slice returns the members sorted.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Set) clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON accepts an array of strings or of {name}/{key} objects.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			items = append(items, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
			Key  string `json:"key"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		items = append(items, first(obj.Key, obj.Name))
	}
	*s = NewSet(items...)
	return nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Identity is the authenticated principal as reported by the profile endpoint.
type Identity struct {
	ExternalID  string `json:"xid"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Roles       Set    `json:"roles"`
	Permissions Set    `json:"permissions"`
}

// Clone returns a deep copy; nil stays nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Roles = i.Roles.clone()
	out.Permissions = i.Permissions.clone()
	return &out
}

// merge overlays the non-empty fields of update onto i.
func (i *Identity) merge(update *Identity) *Identity {
	out := i.Clone()
	if out == nil {
		out = &Identity{}
	}
	if update == nil {
		return out
	}
	if update.ExternalID != "" {
		out.ExternalID = update.ExternalID
	}
	if update.Email != "" {
		out.Email = update.Email
	}
	if update.Name != "" {
		out.Name = update.Name
	}
	if update.Roles != nil {
		out.Roles = update.Roles.clone()
	}
	if update.Permissions != nil {
		out.Permissions = update.Permissions.clone()
	}
	return out
}

// claimsIdentity decodes the token payload without verifying the signature.
// The result is provisional until the profile endpoint confirms it; malformed
// tokens yield nil.
func claimsIdentity(token string) *Identity {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	id := &Identity{
		ExternalID:  firstClaim(claims, "xid", "sub"),
		Email:       firstClaim(claims, "email"),
		Name:        firstClaim(claims, "name"),
		Roles:       NewSet(listClaim(claims, "roles")...),
		Permissions: NewSet(listClaim(claims, "permissions")...),
	}
	if id.ExternalID == "" && id.Email == "" {
		return nil
	}
	return id
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func listClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
