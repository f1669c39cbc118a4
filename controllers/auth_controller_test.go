package controllers

import (
	"net/http"
	"testing"

	"github.com/princinho/studyspark/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_SetsSessionCookies(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "Ada@Example.com", "password123")

	cookies := a.login("ada@example.com", "password123")
	assert.NotEmpty(t, cookieValue(cookies, utils.AccessCookie))
	assert.NotEmpty(t, cookieValue(cookies, utils.RefreshCookie))
	for _, c := range cookies {
		assert.True(t, c.HttpOnly, c.Name)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite, c.Name)
	}

	me := a.json(http.MethodGet, "/auth/me", nil, cookies)
	require.Equal(t, http.StatusOK, me.code)
	user := me.body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "PasswordHash")
}

func TestLogin_FailuresLookAlike(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "ada@example.com", "password123")

	wrong := a.json(http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "nope-nope"}, nil)
	unknown := a.json(http.MethodPost, "/auth/login", map[string]string{"email": "who@example.com", "password": "password123"}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrong.code)
	assert.Equal(t, http.StatusUnauthorized, unknown.code)
	assert.Equal(t, "authentication failed", errorOf(wrong))
	assert.Equal(t, errorOf(wrong), errorOf(unknown))
	assert.Empty(t, wrong.cookies)

	bad := a.json(http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, bad.code)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "ada@example.com", "password123")
	first := a.login("ada@example.com", "password123")

	r := a.json(http.MethodPost, "/auth/refresh", nil, only(first, utils.RefreshCookie))
	require.Equal(t, http.StatusOK, r.code)
	assert.NotEqual(t, cookieValue(first, utils.RefreshCookie), cookieValue(r.cookies, utils.RefreshCookie))

	replay := a.json(http.MethodPost, "/auth/refresh", nil, only(first, utils.RefreshCookie))
	assert.Equal(t, http.StatusUnauthorized, replay.code)
	assert.Equal(t, "authentication failed", errorOf(replay))

	again := a.json(http.MethodPost, "/auth/refresh", nil, only(r.cookies, utils.RefreshCookie))
	assert.Equal(t, http.StatusOK, again.code)

	missing := a.json(http.MethodPost, "/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, missing.code)
}

func TestLogout_RevokesRefreshChain(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "ada@example.com", "password123")
	cookies := a.login("ada@example.com", "password123")

	out := a.json(http.MethodPost, "/auth/logout", nil, cookies)
	require.Equal(t, http.StatusOK, out.code)
	for _, c := range out.cookies {
		assert.Empty(t, c.Value, c.Name)
		assert.Less(t, c.MaxAge, 0, c.Name)
	}

	r := a.json(http.MethodPost, "/auth/refresh", nil, only(cookies, utils.RefreshCookie))
	assert.Equal(t, http.StatusUnauthorized, r.code)

	anon := a.json(http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, anon.code)
}

func TestForgotPassword_SameReplyForUnknownEmail(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "ada@example.com", "password123")

	known := a.json(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ada@example.com"}, nil)
	unknown := a.json(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)

	assert.Equal(t, http.StatusOK, known.code)
	assert.Equal(t, http.StatusOK, unknown.code)
	assert.Equal(t, known.body, unknown.body)
	assert.Equal(t, 1, a.mail.count)
	assert.Len(t, a.mail.last("ada@example.com"), 6)
}

func TestResetPassword_Flow(t *testing.T) {
	a := newApp(t)
	a.register("Ada", "ada@example.com", "password123")
	before := a.login("ada@example.com", "password123")

	require.Equal(t, http.StatusOK,
		a.json(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ada@example.com"}, nil).code)
	code := a.mail.last("ada@example.com")
	require.Len(t, code, 6)

	reset := func(c string) resp {
		return a.json(http.MethodPost, "/auth/reset-password", map[string]string{
			"email": "ada@example.com", "code": c,
			"password": "brand-new-pass", "confirmPassword": "brand-new-pass",
		}, nil)
	}

	bad := reset("000000")
	assert.Equal(t, http.StatusBadRequest, bad.code)
	assert.Equal(t, "invalid or expired reset code", errorOf(bad))

	ok := reset(code)
	require.Equal(t, http.StatusOK, ok.code, ok.body)

	reused := reset(code)
	assert.Equal(t, http.StatusBadRequest, reused.code)

	old := a.json(http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "password123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, old.code)
	a.login("ada@example.com", "brand-new-pass")

	// The reset revoked the chain issued before it.
	r := a.json(http.MethodPost, "/auth/refresh", nil, only(before, utils.RefreshCookie))
	assert.Equal(t, http.StatusUnauthorized, r.code)
}

func TestResetPassword_Validation(t *testing.T) {
	a := newApp(t)
	r := a.json(http.MethodPost, "/auth/reset-password", map[string]string{
		"email": "ada@example.com", "code": "123456",
		"password": "brand-new-pass", "confirmPassword": "different-pass",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, r.code)
}

func TestPing(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, "pong", a.json(http.MethodGet, "/ping", nil, nil).body["message"])
	assert.Equal(t, "ok", a.json(http.MethodGet, "/healthz", nil, nil).body["status"])
}
