package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/middleware"
	"github.com/princinho/studyspark/models"
	"github.com/princinho/studyspark/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func init() { gin.SetMode(gin.TestMode) }

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://files.test/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type mailbox struct {
	mu    sync.Mutex
	codes map[string]string
	count int
}

func (m *mailbox) SendPasswordReset(_ context.Context, to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	m.count++
	return nil
}

func (m *mailbox) last(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type app struct {
	t       *testing.T
	env     *Env
	router  *gin.Engine
	store   *database.MemoryStore
	objects *memObjects
	mail    *mailbox
	admin   models.User
}

const adminPassword = "admin-password"

func newApp(t *testing.T) *app {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	resets, err := auth.NewResetCodeIssuer(15*time.Minute, nil)
	require.NoError(t, err)

	store := database.NewMemoryStore(nil)
	mail := &mailbox{codes: make(map[string]string)}
	sessions, err := auth.NewSessionManager(auth.SessionDeps{
		Store:  store,
		Tokens: codec,
		Resets: resets,
		Hasher: auth.NewSecretHasher(bcrypt.MinCost),
		Mailer: mail,
	})
	require.NoError(t, err)

	objects := &memObjects{objects: make(map[string][]byte)}
	env := &Env{
		Users:       store,
		Documents:   store,
		Sessions:    sessions,
		Permissions: auth.DefaultPermissions(),
		Cookies:     utils.SessionCookies{AccessTTL: codec.AccessTTL(), RefreshTTL: codec.RefreshTTL()},
		HashCost:    bcrypt.MinCost,
		Objects:     objects,
		Validator:   utils.NewFileValidator([]string{".pdf"}, []string{"application/pdf"}, 1),
		Log:         zap.NewNop(),
	}

	hash, err := utils.HashPassword(adminPassword, bcrypt.MinCost)
	require.NoError(t, err)
	admin := models.User{Name: "Admin", Email: "admin@studyspark.dev", PasswordHash: hash}
	_, err = store.EnsureAdmin(context.Background(), &admin)
	require.NoError(t, err)

	r := gin.New()
	Routes(r, env, middleware.NewIPRateLimiter(1000, 1000))

	return &app{t: t, env: env, router: r, store: store, objects: objects, mail: mail, admin: admin}
}

type resp struct {
	code    int
	body    map[string]any
	cookies []*http.Cookie
}

func (a *app) do(method, path string, body io.Reader, contentType string, cookies []*http.Cookie) resp {
	a.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	out := resp{code: rec.Code, cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out.body), rec.Body.String())
	}
	return out
}

func (a *app) json(method, path string, payload any, cookies []*http.Cookie) resp {
	a.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(a.t, err)
		body = bytes.NewReader(b)
	}
	return a.do(method, path, body, "application/json", cookies)
}

func (a *app) login(email, password string) []*http.Cookie {
	a.t.Helper()
	r := a.json(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.Equal(a.t, http.StatusOK, r.code, r.body)
	require.Len(a.t, r.cookies, 2)
	return r.cookies
}

func (a *app) register(name, email, password string) string {
	a.t.Helper()
	r := a.json(http.MethodPost, "/users", map[string]string{
		"name": name, "email": email, "password": password, "confirmPassword": password,
	}, nil)
	require.Equal(a.t, http.StatusCreated, r.code, r.body)
	return r.body["user"].(map[string]any)["id"].(string)
}

func (a *app) upload(cookies []*http.Cookie, fields map[string]string, filename string, file []byte) resp {
	a.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("pdf", filename)
		require.NoError(a.t, err)
		_, err = fw.Write(file)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, w.Close())
	return a.do(http.MethodPost, "/api/pdf/upload", &buf, w.FormDataContentType(), cookies)
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func only(cookies []*http.Cookie, name string) []*http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return []*http.Cookie{{Name: c.Name, Value: c.Value}}
		}
	}
	return nil
}

func errorOf(r resp) string {
	s, _ := r.body["error"].(string)
	return strings.TrimSpace(s)
}
