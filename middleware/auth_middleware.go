package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

const identityKey = "identity"

// Sessions is what the gate needs from auth.SessionManager.
type Sessions interface {
	VerifyAccess(token string) (auth.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Identity, auth.TokenPair, error)
}

// Authenticate admits a request with a valid access token. When the access
// token is missing or no longer valid it rotates the refresh cookie instead
// and sends the new pair back as cookies.
func Authenticate(sessions Sessions, cookies utils.SessionCookies, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := accessToken(c); token != "" {
			id, err := sessions.VerifyAccess(token)
			if err == nil {
				setIdentity(c, id)
				c.Next()
				return
			}
			log.Debug("access token rejected", zap.Error(err))
		}

		refresh, err := c.Cookie(utils.RefreshCookie)
		if err != nil || refresh == "" {
			utils.RespondError(c, log, auth.ErrAuthenticationFailed)
			return
		}

		id, pair, err := sessions.Refresh(c.Request.Context(), refresh)
		if err != nil {
			if auth.IsAuthenticationError(err) {
				cookies.Clear(c)
			}
			utils.RespondError(c, log, err)
			return
		}
		cookies.Set(c, pair)
		log.Debug("session rotated", zap.String("user_id", id.UserID))

		setIdentity(c, id)
		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if v, err := c.Cookie(utils.AccessCookie); err == nil && v != "" {
		return v
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func setIdentity(c *gin.Context, id auth.Identity) {
	c.Set(identityKey, id)
	c.Request = c.Request.WithContext(auth.ContextWithIdentity(c.Request.Context(), id))
}

// CurrentIdentity returns the identity attached by Authenticate.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id, true
		}
	}
	return auth.IdentityFromContext(c.Request.Context())
}
