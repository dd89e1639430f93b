package model

import "strings"

// ActorKind is the privilege variant of an authenticated caller.  SuperAdmin
// is its own variant and is never treated as a kind of Admin.
type ActorKind uint8

const (
	ActorUnknown ActorKind = iota
	ActorStudent
	ActorAdmin
	ActorSuperAdmin
)

// Role names as stored in users.role and carried in the JWT "role" claim.
const (
	RoleStudent    = "STUDENT"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
)

// KindFromRole maps a stored role name to its ActorKind.  Matching is case
// insensitive; unknown names report false.
func KindFromRole(role string) (ActorKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleStudent:
		return ActorStudent, true
	case RoleAdmin:
		return ActorAdmin, true
	case RoleSuperAdmin:
		return ActorSuperAdmin, true
	}
	return ActorUnknown, false
}

// Role returns the stored role name for k, or "" for ActorUnknown.
func (k ActorKind) Role() string {
	switch k {
	case ActorStudent:
		return RoleStudent
	case ActorAdmin:
		return RoleAdmin
	case ActorSuperAdmin:
		return RoleSuperAdmin
	}
	return ""
}

func (k ActorKind) String() string {
	if r := k.Role(); r != "" {
		return strings.ToLower(r)
	}
	return "unknown"
}

// Actor is the resolved identity making a request.
type Actor struct {
	ID   uint64
	Kind ActorKind
}

func (a Actor) IsStudent() bool    { return a.Kind == ActorStudent }
func (a Actor) IsAdmin() bool      { return a.Kind == ActorAdmin }
func (a Actor) IsSuperAdmin() bool { return a.Kind == ActorSuperAdmin }

// Manages reports whether a may act on p as its owner: a superadmin always
// may, an admin only when p is delegated to that admin.
func (a Actor) Manages(p *Placement) bool {
	if p == nil {
		return false
	}
	if a.IsSuperAdmin() {
		return true
	}
	return a.IsAdmin() && p.AssignedAdminID != nil && *p.AssignedAdminID == a.ID
}
