package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

// RequirePermission lets the request through only if the caller's role grants perm.
// Must run after Authenticate.
func RequirePermission(table *auth.PermissionTable, perm auth.Permission, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, log, auth.ErrAuthenticationFailed)
			return
		}
		allowed, err := table.HasPermission(id.Role, perm)
		if err != nil {
			utils.RespondError(c, log, err)
			return
		}
		if !allowed {
			utils.RespondError(c, log, auth.ErrInsufficientPermission)
			return
		}
		c.Next()
	}
}

func RequireAnyRole(log *zap.Logger, roles ...auth.Role) gin.HandlerFunc {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			utils.RespondError(c, log, auth.ErrAuthenticationFailed)
			return
		}
		if !allowed[id.Role] {
			utils.RespondError(c, log, auth.ErrInsufficientPermission)
			return
		}
		c.Next()
	}
}
