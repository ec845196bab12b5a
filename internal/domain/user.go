package domain

import "time"

// UserRole grants capabilities on the ticketing platform.
type UserRole string

const (
	UserRoleEmployee UserRole = "EMPLOYEE"
	UserRoleHRAdmin  UserRole = "HR_ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleEmployee || r == UserRoleHRAdmin
}

// User is the domain model for people who submit or handle tickets.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Elevated reports whether the user may transition tickets and export reports.
func (u *User) Elevated() bool {
	return u != nil && u.Role == UserRoleHRAdmin
}
