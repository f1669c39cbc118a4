package auth

import (
	"fmt"
	"sort"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Permission string

const (
	PermUserCreate     Permission = "user:create"
	PermUserRead       Permission = "user:read"
	PermUserUpdate     Permission = "user:update"
	PermUserDelete     Permission = "user:delete"
	PermUserReadAll    Permission = "user:read:all"
	PermAuthLogin      Permission = "auth:login"
	PermAuthLogout     Permission = "auth:logout"
	PermAuthForgetPass Permission = "auth:forget_pass"
	PermAuthUpdatePass Permission = "auth:update_pass"
	PermPDFUpload      Permission = "pdf:upload"
)

// AllPermissions lists every declared permission in a stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermUserCreate,
		PermUserRead,
		PermUserUpdate,
		PermUserDelete,
		PermUserReadAll,
		PermAuthLogin,
		PermAuthLogout,
		PermAuthForgetPass,
		PermAuthUpdatePass,
		PermPDFUpload,
	}
}

// ParseRole accepts only declared roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the permissions as a sorted slice, used for logging and the /auth/me payload.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// PermissionTable maps every declared role to its permissions. It is built once
// at startup and never mutated, so it is safe to share between goroutines.
type PermissionTable struct {
	grants map[Role]PermissionSet
}

func NewPermissionTable(grants map[Role][]Permission) (*PermissionTable, error) {
	t := &PermissionTable{grants: make(map[Role]PermissionSet, len(grants))}
	for role, perms := range grants {
		if len(perms) == 0 {
			return nil, fmt.Errorf("auth: role %q has no permissions", role)
		}
		t.grants[role] = NewPermissionSet(perms...)
	}
	return t, nil
}

// DefaultPermissions returns the built-in table: admin holds everything,
// user holds everything except listing all users.
func DefaultPermissions() *PermissionTable {
	all := AllPermissions()
	user := make([]Permission, 0, len(all))
	for _, p := range all {
		if p == PermUserReadAll {
			continue
		}
		user = append(user, p)
	}
	t, err := NewPermissionTable(map[Role][]Permission{
		RoleAdmin: all,
		RoleUser:  user,
	})
	if err != nil {
		panic(err)
	}
	return t
}

func (t *PermissionTable) PermissionsOf(role Role) (PermissionSet, error) {
	set, ok := t.grants[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return set, nil
}

// HasPermission reports whether role holds perm. An undeclared role is an
// error, never a plain false.
func (t *PermissionTable) HasPermission(role Role, perm Permission) (bool, error) {
	set, err := t.PermissionsOf(role)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}
