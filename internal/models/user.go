package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleChapterLead UserRole = "CHAPTER_LEAD"
	RoleInstructor  UserRole = "INSTRUCTOR"
	RoleApplicant   UserRole = "APPLICANT"
	RoleStudent     UserRole = "STUDENT"
)

// User represents a portal user stored in the users table.
type User struct {
	ID           string         `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	FullName     string         `db:"full_name" json:"full_name"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	ChapterID    *string        `db:"chapter_id" json:"chapter_id,omitempty"`
	Active       bool           `db:"active" json:"active"`
	LastLogin    *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// RoleSet converts the stored role strings.
func (u User) RoleSet() []UserRole {
	roles := make([]UserRole, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, UserRole(r))
	}
	return roles
}

// ActingUser is the identity every workflow operation runs as.
type ActingUser struct {
	ID        string     `json:"id"`
	Roles     []UserRole `json:"roles"`
	ChapterID string     `json:"chapter_id,omitempty"`
}

// HasRole reports whether the user carries role.
func (u ActingUser) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsReviewer reports whether the user may act on other people's interviews.
func (u ActingUser) IsReviewer() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleChapterLead)
}
