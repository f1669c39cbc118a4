package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
)

const (
	AccessCookie  = "auth_token"
	RefreshCookie = "refreshToken"
)

// SessionCookies writes the access and refresh tokens as http-only cookies.
type SessionCookies struct {
	Secure     bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s SessionCookies) Set(c *gin.Context, pair auth.TokenPair) {
	s.write(c, AccessCookie, pair.AccessToken, int(s.AccessTTL.Seconds()))
	s.write(c, RefreshCookie, pair.RefreshToken, int(s.RefreshTTL.Seconds()))
}

func (s SessionCookies) Clear(c *gin.Context) {
	s.write(c, AccessCookie, "", -1)
	s.write(c, RefreshCookie, "", -1)
}

func (s SessionCookies) write(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
