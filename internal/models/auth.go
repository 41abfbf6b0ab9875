package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Roles     []UserRole `json:"roles"`
	ChapterID *string    `json:"chapter_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID    string     `json:"user_id"`
	Roles     []UserRole `json:"roles"`
	ChapterID string     `json:"chapter_id,omitempty"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	jwt.RegisteredClaims
}

// ActingUser projects the claims onto the workflow identity.
func (c *JWTClaims) ActingUser() ActingUser {
	if c == nil {
		return ActingUser{}
	}
	roles := make([]UserRole, len(c.Roles))
	copy(roles, c.Roles)
	return ActingUser{ID: c.UserID, Roles: roles, ChapterID: c.ChapterID}
}
