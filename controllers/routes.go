package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/middleware"
)

// Routes mounts every endpoint on r. limiter guards the credential endpoints.
func Routes(r gin.IRouter, env *Env, limiter *middleware.IPRateLimiter) {
	perm := func(p auth.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(env.Permissions, p, env.Log)
	}
	gate := middleware.Authenticate(env.Sessions, env.Cookies, env.Log)
	limited := limiter.Middleware()
	adminOnly := middleware.RequireAnyRole(env.Log, auth.RoleAdmin)

	r.GET("/ping", Ping())
	r.GET("/healthz", Healthz(env))

	r.POST("/users", limited, Register(env))

	a := r.Group("/auth")
	{
		a.POST("/login", limited, Login(env))
		a.POST("/refresh", Refresh(env))
		a.POST("/forgot-password", limited, ForgotPassword(env))
		a.POST("/reset-password", limited, ResetPassword(env))
		a.POST("/logout", gate, perm(auth.PermAuthLogout), Logout(env))
		a.GET("/me", gate, perm(auth.PermUserRead), Me(env))
	}

	u := r.Group("/users", gate)
	{
		u.GET("", perm(auth.PermUserReadAll), ListUsers(env))
		u.POST("/me/password", perm(auth.PermAuthUpdatePass), ChangeMyPassword(env))
		u.GET("/:id", perm(auth.PermUserRead), GetUser(env))
		u.PUT("/:id", perm(auth.PermUserUpdate), UpdateUser(env))
		u.DELETE("/:id", perm(auth.PermUserDelete), DeleteUser(env))
	}

	admin := r.Group("/admin", gate, adminOnly)
	{
		admin.POST("/users", perm(auth.PermUserCreate), CreateUser(env))
		admin.POST("/users/:id/reset-password", perm(auth.PermAuthForgetPass), AdminTriggerReset(env))
	}

	pdf := r.Group("/api/pdf", gate)
	{
		pdf.POST("/upload", perm(auth.PermPDFUpload), UploadPDF(env))
		pdf.GET("", perm(auth.PermUserRead), ListDocuments(env))
		pdf.GET("/:id", perm(auth.PermUserRead), GetDocument(env))
	}
}
