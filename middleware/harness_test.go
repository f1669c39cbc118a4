package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/models"
	"github.com/princinho/studyspark/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { gin.SetMode(gin.TestMode) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *testClock
	store    *database.MemoryStore
	sessions *auth.SessionManager
	cookies  utils.SessionCookies
	user     models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)
	resets, err := auth.NewResetCodeIssuer(15*time.Minute, clock.Now)
	require.NoError(t, err)

	store := database.NewMemoryStore(clock.Now)
	user := models.User{Name: "Ada", Email: "ada@example.com", Role: auth.RoleUser, IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), &user))

	sessions, err := auth.NewSessionManager(auth.SessionDeps{
		Store:  store,
		Tokens: codec,
		Resets: resets,
		Hasher: auth.NewSecretHasher(bcrypt.MinCost),
		Now:    clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		clock:    clock,
		store:    store,
		sessions: sessions,
		cookies:  utils.SessionCookies{AccessTTL: codec.AccessTTL(), RefreshTTL: codec.RefreshTTL()},
		user:     user,
	}
}

func (h *harness) login(t *testing.T) auth.TokenPair {
	t.Helper()
	pair, err := h.sessions.Login(context.Background(), auth.Identity{UserID: h.user.ID, Role: h.user.Role})
	require.NoError(t, err)
	return pair
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

// withIdentity stands in for Authenticate in guard tests.
func withIdentity(id auth.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		setIdentity(c, id)
		c.Next()
	}
}

func okHandler(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
