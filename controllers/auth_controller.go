package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/dto"
	"github.com/princinho/studyspark/middleware"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

const forgotPasswordReply = "If an account exists for that email, a reset code has been sent"

// POST /auth/login
func Login(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := env.Users.GetUserByEmail(c.Request.Context(), body.Email)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				err = auth.ErrAuthenticationFailed
			}
			utils.RespondError(c, env.Log, err)
			return
		}
		if !user.IsActive || utils.CheckPassword(user.PasswordHash, body.Password) != nil {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}

		allowed, err := env.Permissions.HasPermission(user.Role, auth.PermAuthLogin)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		if !allowed {
			utils.RespondError(c, env.Log, auth.ErrInsufficientPermission)
			return
		}

		pair, err := env.Sessions.Login(c.Request.Context(), auth.Identity{UserID: user.ID, Role: user.Role})
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		env.Cookies.Set(c, pair)

		c.JSON(http.StatusOK, gin.H{"message": "Login successful", "user": user})
	}
}

// POST /auth/refresh
func Refresh(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(utils.RefreshCookie)
		if err != nil || token == "" {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		_, pair, err := env.Sessions.Refresh(c.Request.Context(), token)
		if err != nil {
			if auth.IsAuthenticationError(err) {
				env.Cookies.Clear(c)
			}
			utils.RespondError(c, env.Log, err)
			return
		}
		env.Cookies.Set(c, pair)
		c.JSON(http.StatusOK, gin.H{"message": "Token refreshed"})
	}
}

// POST /auth/logout
func Logout(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		if err := env.Sessions.Logout(c.Request.Context(), id.UserID); err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		env.Cookies.Clear(c)
		c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
	}
}

// POST /auth/forgot-password
//
// The reply is identical whether or not the address is known.
func ForgotPassword(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ForgotPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := env.Sessions.RequestReset(c.Request.Context(), body.Email); err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				env.Log.Debug("reset requested for unknown email")
			} else {
				env.Log.Error("reset request failed", zap.Error(err))
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordReply})
	}
}

// POST /auth/reset-password
func ResetPassword(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ResetPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		hash, err := utils.HashPassword(body.Password, env.HashCost)
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}

		err = env.Sessions.CompleteReset(c.Request.Context(), body.Email, body.Code,
			func(ctx context.Context, user auth.UserRecord) error {
				return env.Users.UpdatePassword(ctx, user.ID, hash)
			})
		if err != nil {
			utils.RespondError(c, env.Log, err)
			return
		}
		env.Cookies.Clear(c)
		c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
	}
}

// GET /auth/me
func Me(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, env.Log, auth.ErrAuthenticationFailed)
			return
		}
		user, err := env.Users.GetUser(c.Request.Context(), id.UserID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				err = auth.ErrAuthenticationFailed
			}
			utils.RespondError(c, env.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
