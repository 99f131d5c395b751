// Package roles maintains the role catalog and user-role memberships.
package roles

import "time"

// Role is a named bundle of authority. Roles have no implicit members;
// membership lives in the user_roles relation.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is one user-role membership row.
type Member struct {
	UserEmail  string    `json:"userEmail"`
	RoleID     string    `json:"roleId"`
	AssignedAt time.Time `json:"assignedAt"`
}
