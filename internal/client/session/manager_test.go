package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabchat/internal/client/credstore"
	"github.com/aussiebroadwan/tabchat/internal/client/domain"
	"github.com/aussiebroadwan/tabchat/internal/client/session"
	"github.com/aussiebroadwan/tabchat/internal/client/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabchat/pkg/authapi"
	"github.com/aussiebroadwan/tabchat/pkg/authapi/authapitest"
	"github.com/aussiebroadwan/tabchat/pkg/slogx"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	m       *session.Manager
	srv     *authapitest.Server
	creds   *credstore.Store
	clock   *clock
	metrics *session.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ApplyMigrations())

	kv, err := credstore.NewEncryptedPreferences(db.Preferences(), []byte("session-test-master-key"))
	require.NoError(t, err)
	creds := credstore.New(kv, slogx.Discard())

	c := &clock{t: time.Now().Truncate(time.Second)}

	srv := authapitest.NewServer(t)
	srv.Now = c.Now
	srv.AddUser("alice", "correct-horse")

	metrics := session.NewMetrics(prometheus.NewRegistry())
	m := session.NewManager(creds, authapi.NewClient(srv.URL, "tabchat-test"), slogx.Discard(), session.Options{
		Now:     c.Now,
		Metrics: metrics,
	})

	return &fixture{m: m, srv: srv, creds: creds, clock: c, metrics: metrics}
}

// signIn stores a profile for alice backed by real tokens from the server.
func (f *fixture) signIn(t *testing.T) *domain.UserProfile {
	t.Helper()

	p, err := f.m.Login(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	return p
}

func TestGetCachedUserAndClearCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.Nil(t, f.m.GetCachedUser(ctx))

	p := &domain.UserProfile{Username: "alice", PublicKey: "pk"}
	require.NoError(t, f.creds.Save(ctx, p))
	require.Equal(t, p, f.m.GetCachedUser(ctx))

	require.NoError(t, f.m.ClearCache(ctx))
	require.Nil(t, f.m.GetCachedUser(ctx))

	require.Equal(t, session.PhaseIdle, f.m.State().Phase, "cache operations do not transition")
	require.Zero(t, testutil.CollectAndCount(f.metrics.Transitions))
}

func TestRefreshAccessToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success updates in place and persists", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.signIn(t)
		p.PublicKey = "pk"
		require.NoError(t, f.creds.Save(ctx, p))
		before := *p

		f.clock.Advance(time.Minute)
		refreshed := f.m.RefreshAccessToken(ctx, p)

		require.Same(t, p, refreshed)
		require.NotEqual(t, before.Token.AccessToken, refreshed.Token.AccessToken)
		require.NotEqual(t, before.Token.AccessTokenSetTime, refreshed.Token.AccessTokenSetTime)
		require.Equal(t, f.clock.Now().UnixMilli(), refreshed.Token.AccessTokenSetTime)
		require.Equal(t, before.Username, refreshed.Username)
		require.Equal(t, before.PublicKey, refreshed.PublicKey)
		require.Equal(t, before.Token.RefreshToken, refreshed.Token.RefreshToken)
		require.Equal(t, refreshed, f.m.GetCachedUser(ctx))
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("ok")))
	})

	t.Run("set time advances on a frozen clock", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.signIn(t)
		before := p.Token.AccessTokenSetTime

		refreshed := f.m.RefreshAccessToken(ctx, p)
		require.NotNil(t, refreshed)
		require.Greater(t, refreshed.Token.AccessTokenSetTime, before)
	})

	t.Run("rotated refresh token is kept", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.srv.RotateRefresh = true
		p := f.signIn(t)
		oldRefresh := p.Token.RefreshToken

		refreshed := f.m.RefreshAccessToken(ctx, p)
		require.NotNil(t, refreshed)
		require.NotEqual(t, oldRefresh, refreshed.Token.RefreshToken)
		require.False(t, f.srv.RefreshTokenValid(oldRefresh))
		require.True(t, f.srv.RefreshTokenValid(refreshed.Token.RefreshToken))
		require.Equal(t, refreshed.Token.RefreshToken, f.m.GetCachedUser(ctx).Token.RefreshToken)
	})

	t.Run("rejected refresh leaves everything untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.signIn(t)
		before := *p
		stored := f.m.GetCachedUser(ctx)
		f.srv.RevokeAllRefreshTokens()

		require.Nil(t, f.m.RefreshAccessToken(ctx, p))
		require.Equal(t, before, *p)
		require.Equal(t, stored, f.m.GetCachedUser(ctx))

		_, err := f.m.TryRefreshAccessToken(ctx, p)
		require.ErrorIs(t, err, session.ErrRefreshRejected)
		require.True(t, authapi.IsAuthError(err))
		require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("rejected")))
	})

	t.Run("nil profile", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.Nil(t, f.m.RefreshAccessToken(ctx, nil))
		_, err := f.m.TryRefreshAccessToken(ctx, nil)
		require.ErrorIs(t, err, session.ErrNoSession)
	})
}

func TestRefreshAccessTokenTransportFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	creds := &memCreds{}
	m := session.NewManager(creds, authapi.NewClient(dead.URL, "tabchat-test"), slogx.Discard(), session.Options{})

	p := &domain.UserProfile{Username: "alice", Token: domain.Token{AccessToken: "a", RefreshToken: "r", AccessTokenSetTime: 1}}
	before := *p

	_, err := m.TryRefreshAccessToken(ctx, p)
	require.Error(t, err)
	require.NotErrorIs(t, err, session.ErrRefreshRejected)
	require.True(t, authapi.IsTransportError(err))
	require.Equal(t, before, *p)
	require.Zero(t, creds.saves)
}

func TestRefreshAccessTokenStorageFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := f.signIn(t)
	before := *p

	failing := &memCreds{saveErr: errors.New("disk full")}
	m := session.NewManager(failing, authapi.NewClient(f.srv.URL, "tabchat-test"), slogx.Discard(), session.Options{Now: f.clock.Now})

	require.Nil(t, m.RefreshAccessToken(ctx, p))
	require.Equal(t, before, *p)

	_, err := m.TryRefreshAccessToken(ctx, p)
	require.ErrorContains(t, err, "disk full")
}

// stubManager builds a Manager whose gateway answers every token request with
// status and body.
func stubManager(t *testing.T, creds session.Credentials, status int, body string) (*session.Manager, *session.Metrics) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	metrics := session.NewMetrics(prometheus.NewRegistry())
	m := session.NewManager(creds, authapi.NewClient(srv.URL, "tabchat-test"), slogx.Discard(), session.Options{Metrics: metrics})
	return m, metrics
}

func TestRefreshAccessTokenMalformedResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	creds := &memCreds{}
	m, metrics := stubManager(t, creds, http.StatusOK, `{"token_type":"Bearer"}`)

	p := &domain.UserProfile{Username: "alice", Token: domain.Token{AccessToken: "old", RefreshToken: "r", AccessTokenSetTime: 1}}
	before := *p

	require.Nil(t, m.RefreshAccessToken(ctx, p))

	_, err := m.TryRefreshAccessToken(ctx, p)
	require.ErrorIs(t, err, authapi.ErrMalformedResponse)
	require.NotErrorIs(t, err, session.ErrRefreshRejected)
	require.Equal(t, before, *p)
	require.Zero(t, creds.saves)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("malformed")))
}

func TestLoginMalformedResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	creds := &memCreds{}
	m, _ := stubManager(t, creds, http.StatusOK, `{"token_type":"Bearer"}`)

	_, err := m.Login(ctx, "alice", "correct-horse")
	require.ErrorIs(t, err, authapi.ErrMalformedResponse)
	require.Zero(t, creds.saves)

	state := m.State()
	require.Equal(t, session.PhaseError, state.Phase)
	require.Equal(t, session.StepLogin, state.Error().Peek().Step)
}

func TestRefreshServerError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	creds := &memCreds{}
	m, metrics := stubManager(t, creds, http.StatusServiceUnavailable, `{"error":"server_error","error_description":"maintenance"}`)

	p := &domain.UserProfile{Username: "alice", Token: domain.Token{AccessToken: "a", RefreshToken: "r", AccessTokenSetTime: 1}}

	_, err := m.TryRefreshAccessToken(ctx, p)
	require.Error(t, err)
	require.NotErrorIs(t, err, session.ErrRefreshRejected)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("server")))
	require.Zero(t, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("transport")))
}

func TestStateSequence(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newFixture(t)

	early := f.m.Subscribe()
	defer early.Close()

	first, ok := early.Next(ctx)
	require.True(t, ok)
	require.Equal(t, session.PhaseIdle, first.Phase)

	userX := &domain.UserProfile{Username: "x", PublicKey: "pk-x"}
	f.m.SetLoading()
	f.m.SetSuccess(userX)

	// The early subscriber may or may not observe Loading, but it always
	// ends on Success(userX).
	var last session.AuthState
	for last.Phase != session.PhaseSuccess {
		last, ok = early.Next(ctx)
		require.True(t, ok)
	}
	require.Equal(t, userX, last.Success().Peek())

	late := f.m.Subscribe()
	defer late.Close()

	got, ok := late.Next(ctx)
	require.True(t, ok)
	require.Equal(t, session.PhaseSuccess, got.Phase, "late subscribers never see Loading")
	require.Equal(t, userX, got.Success().Peek())
}

func TestSuccessSnapshotIsCopied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p := &domain.UserProfile{Username: "x"}
	f.m.SetSuccess(p)
	p.Username = "mutated"

	require.Equal(t, "x", f.m.State().Success().Peek().Username)
}

func TestEventsAreTakenOncePerSubscriber(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newFixture(t)

	f.m.SetError("boom", errors.New("cause"), session.StepUpdate)

	a := f.m.Subscribe()
	defer a.Close()
	b := f.m.Subscribe()
	defer b.Close()

	stateA, ok := a.Next(ctx)
	require.True(t, ok)
	stateB, ok := b.Next(ctx)
	require.True(t, ok)

	failure, ok := stateA.Error().Take(a.ID())
	require.True(t, ok)
	require.Equal(t, "boom", failure.Message)
	require.Equal(t, session.StepUpdate, failure.Step)
	require.EqualError(t, failure.Cause, "cause")

	_, ok = stateA.Error().Take(a.ID())
	require.False(t, ok, "second take by the same subscriber")

	_, ok = stateB.Error().Take(b.ID())
	require.True(t, ok, "other subscribers still get the event")
	require.True(t, stateB.Error().Taken(a.ID()))
}

func TestGetToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	t.Run("bad password is a generic error and no transition", func(t *testing.T) {
		before := f.m.State()

		resp, err := f.m.GetToken(ctx, "alice", "badpass")
		require.Nil(t, resp)

		var gerr *session.GenericError
		require.ErrorAs(t, err, &gerr)
		require.NotEmpty(t, gerr.Message)
		require.True(t, authapi.IsAuthError(err))

		require.Equal(t, before, f.m.State())
		require.Zero(t, testutil.CollectAndCount(f.metrics.Transitions))
	})

	t.Run("valid credentials", func(t *testing.T) {
		resp, err := f.m.GetToken(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, session.PhaseIdle, f.m.State().Phase)
	})
}

func TestSignUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.m.SignUp(ctx, "bob", "long-enough", "fcm", "pk")
	require.NoError(t, err)
	require.Equal(t, "bob", resp.Username)

	_, err = f.m.SignUp(ctx, "alice", "long-enough", "fcm", "pk")
	var gerr *session.GenericError
	require.ErrorAs(t, err, &gerr)
	require.NotEmpty(t, gerr.Message)

	var oauthErr *authapi.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, authapi.ErrorCodeUsernameTaken, oauthErr.Code)
	require.Equal(t, session.PhaseIdle, f.m.State().Phase)
}

func TestUpdateProfileOnServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := f.signIn(t)

	ok, err := f.m.UpdateProfileOnServer(ctx, p.Token.AccessToken, authapi.UpdateRequest{PublicKey: "pk", FCMToken: "fcm"})
	require.NoError(t, err)
	require.True(t, ok)

	pk, fcm, _ := f.srv.Profile("alice")
	require.Equal(t, "pk", pk)
	require.Equal(t, "fcm", fcm)

	ok, err = f.m.UpdateProfileOnServer(ctx, "garbage", authapi.UpdateRequest{})
	require.False(t, ok)
	var gerr *session.GenericError
	require.ErrorAs(t, err, &gerr)
	require.NotEmpty(t, gerr.Message)
}

func TestAccessTokenExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.signIn(t)

	want := f.clock.Now().Add(15 * time.Minute)
	require.True(t, want.Equal(f.m.AccessTokenExpiry(p)), "expiry read from the exp claim")

	opaque := &domain.UserProfile{Token: domain.Token{AccessToken: "opaque", AccessTokenSetTime: f.clock.Now().UnixMilli()}}
	require.True(t, want.Equal(f.m.AccessTokenExpiry(opaque)), "expiry falls back to set time plus ttl")
}

func TestEnsureFresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := f.signIn(t)
	access := p.Token.AccessToken

	got, err := f.m.EnsureFresh(ctx, p, time.Minute)
	require.NoError(t, err)
	require.Equal(t, access, got.Token.AccessToken, "fresh token is kept")
	require.Equal(t, 1, f.srv.Hits("/v1/oauth2/token"))

	f.clock.Advance(14*time.Minute + 30*time.Second)

	got, err = f.m.EnsureFresh(ctx, p, time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, access, got.Token.AccessToken)
	require.Equal(t, 2, f.srv.Hits("/v1/oauth2/token"))

	_, err = f.m.EnsureFresh(ctx, nil, time.Minute)
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestKeepAlive(t *testing.T) {
	t.Parallel()

	t.Run("refreshes until cancelled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.signIn(t)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		// A skew larger than the token lifetime refreshes on every tick.
		require.NoError(t, f.m.KeepAlive(ctx, 20*time.Millisecond, time.Hour))
		require.Greater(t, f.srv.Hits("/v1/oauth2/token"), 2)
	})

	t.Run("stops on rejected refresh", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.signIn(t)
		f.srv.RevokeAllRefreshTokens()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := f.m.KeepAlive(ctx, time.Second, time.Hour)
		require.ErrorIs(t, err, session.ErrRefreshRejected)

		state := f.m.State()
		require.Equal(t, session.PhaseError, state.Phase)
		require.Equal(t, session.StepRefresh, state.Error().Peek().Step)
	})

	t.Run("stops when no refresh token is stored", func(t *testing.T) {
		t.Parallel()
		creds := &memCreds{profile: &domain.UserProfile{
			Username: "alice",
			Token:    domain.Token{AccessToken: "a", AccessTokenSetTime: 1},
		}}
		m, metrics := stubManager(t, creds, http.StatusBadRequest, `{"error":"invalid_request"}`)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := m.KeepAlive(ctx, 10*time.Millisecond, time.Hour)
		require.ErrorIs(t, err, session.ErrRefreshRejected)
		require.Equal(t, session.PhaseError, m.State().Phase)
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("rejected")))
		require.Zero(t, testutil.CollectAndCount(metrics.GatewayErrors))
	})

	t.Run("nobody signed in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		require.NoError(t, f.m.KeepAlive(ctx, 10*time.Millisecond, time.Hour))
		require.Zero(t, f.srv.Hits("/v1/oauth2/token"))
	})
}

// memCreds is an in-memory Credentials with injectable failures.
type memCreds struct {
	profile *domain.UserProfile
	saves   int
	saveErr error
}

func (c *memCreds) Load(context.Context) *domain.UserProfile { return c.profile.Clone() }

func (c *memCreds) Save(_ context.Context, p *domain.UserProfile) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves++
	c.profile = p.Clone()
	return nil
}

func (c *memCreds) Clear(context.Context) error {
	c.profile = nil
	return nil
}
