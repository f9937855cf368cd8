package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionMove   Action = "move"
	ActionExport Action = "export"
	ActionAdmin  Action = "admin"
)

// Rank orders roles viewer < staff < admin. Anything else ranks 0.
func Rank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleStaff:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether have satisfies a route that needs need.
func AtLeast(have, need Role) bool {
	return Rank(have) > 0 && Rank(have) >= Rank(need)
}

func Can(role Role, action Action) bool {
	switch action {
	case ActionRead:
		return AtLeast(role, RoleViewer)
	case ActionMove, ActionExport:
		return AtLeast(role, RoleStaff)
	case ActionAdmin:
		return AtLeast(role, RoleAdmin)
	default:
		return false
	}
}

// Normalize lower-cases a stored role. Unknown values come back empty and
// are denied everything.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleViewer, RoleStaff, RoleAdmin:
		return r
	default:
		return ""
	}
}

func Parse(role string) (Role, bool) {
	r := Normalize(role)
	return r, r != ""
}
