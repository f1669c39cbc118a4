package dto

import (
	"strings"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/models"
)

// RegisterUserDTO is the public sign-up body.
type RegisterUserDTO struct {
	Name            string `json:"name" binding:"required,max=120"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

// CreateUserDTO is used by admins and may pick the role.
type CreateUserDTO struct {
	Name     string `json:"name" binding:"required,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=admin user"`
}

// UpdateUserDTO fields are all optional. Role and IsActive are admin only.
type UpdateUserDTO struct {
	Name     *string `json:"name" binding:"omitempty,max=120"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role" binding:"omitempty,oneof=admin user"`
	IsActive *bool   `json:"isActive"`
}

func (d UpdateUserDTO) Patch() models.UserPatch {
	var p models.UserPatch
	if d.Name != nil {
		name := strings.TrimSpace(*d.Name)
		p.Name = &name
	}
	p.Email = d.Email
	if d.Role != nil {
		role := auth.Role(*d.Role)
		p.Role = &role
	}
	p.IsActive = d.IsActive
	return p
}

// Privileged reports whether the update touches fields only admins may change.
func (d UpdateUserDTO) Privileged() bool {
	return d.Role != nil || d.IsActive != nil
}
