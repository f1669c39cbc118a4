package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sessionFixture struct {
	clock    *fakeClock
	store    *memStore
	mailer   *recordingMailer
	sessions *SessionManager
	resets   *ResetCodeIssuer
}

func newSessionFixture(t *testing.T, users ...UserRecord) *sessionFixture {
	t.Helper()
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	resets, err := NewResetCodeIssuer(15*time.Minute, clock.Now)
	require.NoError(t, err)

	store := newMemStore(users...)
	mailer := &recordingMailer{}
	sm, err := NewSessionManager(SessionDeps{
		Store:  store,
		Tokens: codec,
		Resets: resets,
		Hasher: NewSecretHasher(bcrypt.MinCost),
		Mailer: mailer,
		Now:    clock.Now,
	})
	require.NoError(t, err)
	return &sessionFixture{clock: clock, store: store, mailer: mailer, sessions: sm, resets: resets}
}

func alice() UserRecord {
	return UserRecord{ID: "u-1", Email: "a@x.com", Role: RoleUser, IsActive: true}
}

func TestNewSessionManager_RejectsResetLongerThanRefresh(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	resets, err := NewResetCodeIssuer(30*24*time.Hour, clock.Now)
	require.NoError(t, err)

	_, err = NewSessionManager(SessionDeps{Store: newMemStore(), Tokens: codec, Resets: resets})
	assert.Error(t, err)
}

func TestLogin_PersistsOnlyTheHash(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	rec, err := f.store.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rec.RefreshTokenHash)
	assert.NotEmpty(t, rec.RefreshTokenHash)
	require.NotNil(t, rec.RefreshTokenExpiresAt)
	assert.True(t, rec.RefreshTokenExpiresAt.Equal(pair.RefreshExpiresAt))
}

func TestRefresh_SucceedsExactlyOnce(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)

	id, rotated, err := f.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Role: RoleUser}, id)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = f.sessions.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentCallsYieldOneWinner(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := f.sessions.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
}

func TestRefresh_AfterLogoutFails(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)
	require.NoError(t, f.sessions.Logout(ctx, "u-1"))

	rec, err := f.store.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, rec.RefreshTokenHash)
	assert.Nil(t, rec.RefreshTokenExpiresAt)

	// Signature and expiry are still fine; only the store says no.
	_, err = f.sessions.Tokens().VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogin_SecondLoginInvalidatesFirstChain(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()
	id := Identity{UserID: "u-1", Role: RoleUser}

	first, err := f.sessions.Login(ctx, id)
	require.NoError(t, err)
	second, err := f.sessions.Login(ctx, id)
	require.NoError(t, err)

	_, _, err = f.sessions.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = f.sessions.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_PicksUpCurrentRole(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)
	f.store.setRole("u-1", RoleAdmin)

	id, rotated, err := f.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)

	got, err := f.sessions.Tokens().VerifyAccess(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, got.Role)
}

func TestRefresh_RejectsUnknownUserAndExpiredToken(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	ghost, _, err := f.sessions.Tokens().IssueRefresh(Identity{UserID: "ghost", Role: RoleUser})
	require.NoError(t, err)
	_, _, err = f.sessions.Refresh(ctx, ghost)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredRefreshToken)
}

func TestRefresh_StorageFailurePropagates(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)

	f.store.failAll = errors.Join(ErrStorage, errors.New("connection reset"))
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestReset_VerifyBeforeAndAfterExpiry(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	code, err := f.sessions.RequestReset(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, sentMail{to: "a@x.com", code: code, ttl: 15 * time.Minute}, f.mailer.sent[0])

	ok, err := f.sessions.VerifyResetCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, ok)

	wrong := "100000"
	if code == wrong {
		wrong = "100001"
	}
	ok, err = f.sessions.VerifyResetCode(ctx, "a@x.com", wrong)
	require.NoError(t, err)
	assert.False(t, ok)

	// Verification does not consume.
	ok, err = f.sessions.VerifyResetCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Advance(15 * time.Minute)
	ok, err = f.sessions.VerifyResetCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_ConsumeMakesCodeUnusable(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	code, err := f.sessions.RequestReset(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, f.sessions.ConsumeReset(ctx, "a@x.com"))

	ok, err := f.sessions.VerifyResetCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_UnknownEmail(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	_, err := f.sessions.RequestReset(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.mailer.sent)

	ok, err := f.sessions.VerifyResetCode(ctx, "nobody@x.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_MailerFailureIsReported(t *testing.T) {
	f := newSessionFixture(t, alice())
	f.mailer.err = errors.New("smtp down")

	_, err := f.sessions.RequestReset(context.Background(), "a@x.com")
	assert.Error(t, err)
}

func TestScenario_SilentRotationThenStaleRefreshRejected(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	p1, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.sessions.Tokens().VerifyAccess(p1.AccessToken)
	require.ErrorIs(t, err, ErrExpiredAccessToken)

	_, p2, err := f.sessions.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)
	_, err = f.sessions.Tokens().VerifyAccess(p2.AccessToken)
	require.NoError(t, err)

	_, _, err = f.sessions.Refresh(ctx, p1.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestScenario_AdminResetForUser(t *testing.T) {
	f := newSessionFixture(t, alice())
	f.resets.draw = func() (int64, error) { return 482193 - resetCodeMin, nil }
	ctx := context.Background()

	pair, err := f.sessions.Login(ctx, Identity{UserID: "u-1", Role: RoleUser})
	require.NoError(t, err)

	code, err := f.sessions.RequestReset(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "482193", code)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "482193", f.mailer.sent[0].code)

	cred, err := f.store.GetResetCredential(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.NotEqual(t, "482193", cred.Hash)

	f.clock.Advance(5 * time.Minute)
	var updated string
	err = f.sessions.CompleteReset(ctx, "a@x.com", "482193", func(_ context.Context, u UserRecord) error {
		updated = u.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", updated)

	ok, err := f.sessions.VerifyResetCode(ctx, "a@x.com", "482193")
	require.NoError(t, err)
	assert.False(t, ok)

	err = f.sessions.CompleteReset(ctx, "a@x.com", "482193", func(context.Context, UserRecord) error {
		t.Fatal("password must not be updated twice")
		return nil
	})
	assert.ErrorIs(t, err, ErrResetCodeInvalid)

	// Completing a reset revokes the refresh chain.
	_, _, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestCompleteReset_FailedUpdateKeepsCode(t *testing.T) {
	f := newSessionFixture(t, alice())
	ctx := context.Background()

	code, err := f.sessions.RequestReset(ctx, "a@x.com")
	require.NoError(t, err)

	boom := errors.New("write failed")
	err = f.sessions.CompleteReset(ctx, "a@x.com", code, func(context.Context, UserRecord) error { return boom })
	assert.ErrorIs(t, err, boom)

	ok, err := f.sessions.VerifyResetCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, ok)
}
