package model

import "time"

// Role is an authorization level. It is independent of BadgeTier.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// BadgeTier is the user-tier marker granted by a successful payment.
type BadgeTier string

const (
	BadgeBronze BadgeTier = "bronze"
	BadgeGold   BadgeTier = "gold"
)

// User represents a registered user account.
//
// Email is the unique key: users are created on first sign-in by an
// insert-if-absent keyed by email. We still generate our own internal
// string ID (xid) so role changes can address a user without exposing the
// email in the URL.
//
// WHY Role IS NOT IN THE JWT:
// An admin can change a role mid-session. Authorization therefore always
// reads the role from the users table, never from token claims.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoURL,omitempty"`
	Role      Role      `json:"role"`
	Badge     BadgeTier `json:"badge"`
	CreatedAt time.Time `json:"createdAt"`
}
