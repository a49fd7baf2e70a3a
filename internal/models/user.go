package models

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	TokenBalance int64     `json:"token_balance"`
	CreatedAt    time.Time `json:"created_at"`
}

func IsValidRole(role UserRole) bool {
	switch role {
	case RoleAdmin, RoleMember:
		return true
	}
	return false
}

// HasAtLeast reports whether the given role satisfies the required tier.
// Admins satisfy every requirement.
func HasAtLeast(role, required UserRole) bool {
	if role == RoleAdmin {
		return true
	}
	return role == required
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
