package models

import (
	"time"

	"github.com/princinho/studyspark/auth"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose
	Role         auth.Role `json:"role"`
	IsActive     bool      `json:"isActive"`

	RefreshTokenHash      string     `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	ResetCodeHash         string     `json:"-"`
	ResetCodeExpiresAt    *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record projects the fields the session layer works with.
func (u User) Record() auth.UserRecord {
	return auth.UserRecord{
		ID:                    u.ID,
		Email:                 u.Email,
		Role:                  u.Role,
		PasswordHash:          u.PasswordHash,
		IsActive:              u.IsActive,
		RefreshTokenHash:      u.RefreshTokenHash,
		RefreshTokenExpiresAt: u.RefreshTokenExpiresAt,
	}
}

// UserPatch lists the profile fields an update may touch. Nil means unchanged.
type UserPatch struct {
	Name     *string
	Email    *string
	Role     *auth.Role
	IsActive *bool
}

func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Role == nil && p.IsActive == nil
}
