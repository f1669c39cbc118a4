package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/dto"
	"github.com/princinho/studyspark/middleware"
	"github.com/princinho/studyspark/models"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

// selfOrAdmin lets admins act on any account and everyone else on their own.
func selfOrAdmin(c *gin.Context, env *Env, targetID string) (auth.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
		return auth.Identity{}, false
	}
	if id.Role != auth.RoleAdmin && id.UserID != targetID {
		utils.RespondError(c, env.Log, auth.ErrInsufficientPermission)
		return auth.Identity{}, false
	}
	return id, true
}

func (env *Env) createUser(c *gin.Context, name, email, password string, role auth.Role) (models.User, bool) {
	hash, err := utils.HashPassword(password, env.HashCost)
	if err != nil {
		utils.RespondError(c, env.Log, err)
		return models.User{}, false
	}
	user := models.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := env.Users.CreateUser(c.Request.Context(), &user); err != nil {
		utils.RespondError(c, env.Log, err)
		return models.User{}, false
	}
	env.Log.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, true
}

// POST /users
func Register(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, ok := env.createUser(c, body.Name, body.Email, body.Password, auth.RoleUser)
		if !ok {
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
	}
}

// POST /admin/users
func CreateUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.CreateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role := auth.RoleUser
		if body.Role != "" {
			r, err := auth.ParseRole(body.Role)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
				return
			}
			role = r
		}
		user, ok := env.createUser(c, body.Name, body.Email, body.Password, role)
		if !ok {
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
	}
}

// GET /users?limit=&offset=
func ListUsers(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := utils.Pagination(c.Query("limit"), c.Query("offset"), 20, 100)
		users, err := env.Users.ListUsers(c.Request.Context(), limit, offset)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users, "limit": limit, "offset": offset})
	}
}

// GET /users/:id
func GetUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("id")
		if _, ok := selfOrAdmin(c, env, target); !ok {
			return
		}
		user, err := env.Users.GetUser(c.Request.Context(), target)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// PUT /users/:id
func UpdateUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("id")
		id, ok := selfOrAdmin(c, env, target)
		if !ok {
			return
		}

		var body dto.UpdateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.Privileged() && id.Role != auth.RoleAdmin {
			utils.RespondError(c, env.Log, auth.ErrInsufficientPermission)
			return
		}
		patch := body.Patch()
		if patch.Empty() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
			return
		}

		user, err := env.Users.UpdateUser(c.Request.Context(), target, patch)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}

		// A deactivated account loses its refresh chain right away.
		if patch.IsActive != nil && !*patch.IsActive {
			if err := env.Sessions.Logout(c.Request.Context(), target); err != nil {
				utils.RespondError(c, env.Log, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": user})
	}
}

// DELETE /users/:id
func DeleteUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("id")
		id, ok := selfOrAdmin(c, env, target)
		if !ok {
			return
		}
		if err := env.Users.DeleteUser(c.Request.Context(), target); err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if id.UserID == target {
			env.Cookies.Clear(c)
		}
		env.Log.Info("user deleted", zap.String("user_id", target), zap.String("by", id.UserID))
		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully", "userId": target})
	}
}

// POST /users/me/password
func ChangeMyPassword(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		user, err := env.Users.GetUser(c.Request.Context(), id.UserID)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if err := utils.CheckPassword(user.PasswordHash, body.CurrentPassword); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
			return
		}

		newHash, err := utils.HashPassword(body.NewPassword, env.HashCost)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if err := env.Users.UpdatePassword(c.Request.Context(), user.ID, newHash); err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}

		if err := env.Sessions.Logout(c.Request.Context(), user.ID); err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		env.Cookies.Clear(c)

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /admin/users/:id/reset-password
func AdminTriggerReset(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := env.Users.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if _, err := env.Sessions.RequestReset(c.Request.Context(), user.Email); err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Reset code sent", "userId": user.ID})
	}
}
