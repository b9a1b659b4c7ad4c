package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bairro/internal/config"
	"bairro/internal/models"
	"bairro/internal/remote"
	"bairro/internal/store"
)

type fakeAPI struct {
	loginData   *remote.LoginData
	loginErr    error
	refreshData *remote.LoginData
	refreshErr  error
	verifyOK    bool
	verifyErr   error
	logoutErr   error

	refreshCalls int
	logoutCalls  int
}

func (f *fakeAPI) Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginData, error) {
	return f.loginData, f.loginErr
}

func (f *fakeAPI) RefreshToken(ctx context.Context, refreshToken string) (*remote.LoginData, error) {
	f.refreshCalls++
	return f.refreshData, f.refreshErr
}

func (f *fakeAPI) VerifyToken(ctx context.Context, token string) (bool, error) {
	return f.verifyOK, f.verifyErr
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func newTestSession(t *testing.T, api API) (*Session, *store.DB) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zerolog.Nop()
	s := NewSession(db, config.AuthConfig{
		SessionLifetime: config.Duration(24 * time.Hour),
	}, &logger)
	s.SetAPI(api)
	return s, db
}

func validLoginData() *remote.LoginData {
	return &remote.LoginData{
		Token:        "token-1",
		RefreshToken: "refresh-1",
		User:         &models.User{ID: 7, Name: "Ana", Role: "admin"},
	}
}

func TestLoginSuccess(t *testing.T) {
	api := &fakeAPI{loginData: validLoginData()}
	s, db := newTestSession(t, api)
	ctx := context.Background()

	result, err := s.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.User)
	assert.Equal(t, "Ana", result.User.Name)

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "token-1", s.Token())

	stored, err := db.GetValue(ctx, store.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "token-1", stored)
}

func TestLoginFailureClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want LoginFailure
	}{
		{
			name: "invalid credentials",
			err:  &remote.Error{Kind: remote.KindAuthExpired, Status: 401, Message: "bad credentials"},
			want: FailureInvalidCredentials,
		},
		{
			name: "rate limited",
			err:  &remote.Error{Kind: remote.KindTransient, Status: 429, Message: "slow down"},
			want: FailureRateLimited,
		},
		{
			name: "server error",
			err:  &remote.Error{Kind: remote.KindTransient, Status: 500, Message: "boom"},
			want: FailureServerError,
		},
		{
			name: "network unreachable",
			err:  &remote.Error{Kind: remote.KindTransient, Message: "connection refused"},
			want: FailureNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, &fakeAPI{loginErr: tt.err})

			result, err := s.Login(context.Background(), "ana@example.com", "pw")
			require.NoError(t, err, "login failures are results, not errors")
			assert.False(t, result.Success)
			assert.Equal(t, tt.want, result.Reason)
			assert.False(t, s.IsAuthenticated())
		})
	}
}

func TestRestore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		api := &fakeAPI{loginData: validLoginData()}
		s, db := newTestSession(t, api)
		ctx := context.Background()

		_, err := s.Login(ctx, "ana@example.com", "pw")
		require.NoError(t, err)

		logger := zerolog.Nop()
		restored := NewSession(db, config.AuthConfig{SessionLifetime: config.Duration(24 * time.Hour)}, &logger)
		restored.SetAPI(api)
		require.NoError(t, restored.Restore(ctx))

		assert.True(t, restored.IsAuthenticated())
		assert.Equal(t, "token-1", restored.Token())
		require.NotNil(t, restored.CurrentUser())
		assert.Equal(t, int64(7), restored.CurrentUser().ID)
	})

	t.Run("expired session cleared", func(t *testing.T) {
		api := &fakeAPI{loginData: validLoginData()}
		s, db := newTestSession(t, api)
		ctx := context.Background()

		_, err := s.Login(ctx, "ana@example.com", "pw")
		require.NoError(t, err)

		logger := zerolog.Nop()
		restored := NewSession(db, config.AuthConfig{SessionLifetime: config.Duration(time.Millisecond)}, &logger)
		restored.SetAPI(api)
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, restored.Restore(ctx))

		assert.False(t, restored.IsAuthenticated())
		token, err := db.GetValue(ctx, store.KeyAuthToken)
		require.NoError(t, err)
		assert.Empty(t, token, "expired sessions are wiped from storage")
	})

	t.Run("empty storage", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeAPI{})
		require.NoError(t, s.Restore(context.Background()))
		assert.False(t, s.IsAuthenticated())
	})
}

func TestRefresh(t *testing.T) {
	t.Run("success keeps user and refresh token", func(t *testing.T) {
		api := &fakeAPI{
			loginData:   validLoginData(),
			refreshData: &remote.LoginData{Token: "token-2"},
		}
		s, _ := newTestSession(t, api)
		ctx := context.Background()

		_, err := s.Login(ctx, "ana@example.com", "pw")
		require.NoError(t, err)

		assert.True(t, s.Refresh(ctx))
		assert.Equal(t, "token-2", s.Token())
		require.NotNil(t, s.CurrentUser(), "user carried over when refresh response omits it")
		assert.Equal(t, "Ana", s.CurrentUser().Name)
	})

	t.Run("failure invalidates session", func(t *testing.T) {
		api := &fakeAPI{
			loginData:  validLoginData(),
			refreshErr: &remote.Error{Kind: remote.KindAuthExpired, Status: 401},
		}
		s, db := newTestSession(t, api)
		ctx := context.Background()

		_, err := s.Login(ctx, "ana@example.com", "pw")
		require.NoError(t, err)

		assert.False(t, s.Refresh(ctx))
		assert.False(t, s.IsAuthenticated())

		token, err := db.GetValue(ctx, store.KeyAuthToken)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("no refresh token", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeAPI{})
		assert.False(t, s.Refresh(context.Background()))
	})
}

func TestValidate(t *testing.T) {
	t.Run("unreachable keeps session", func(t *testing.T) {
		api := &fakeAPI{
			loginData: validLoginData(),
			verifyErr: &remote.Error{Kind: remote.KindTransient, Message: "timeout"},
		}
		s, _ := newTestSession(t, api)
		_, err := s.Login(context.Background(), "ana@example.com", "pw")
		require.NoError(t, err)

		assert.True(t, s.Validate(context.Background()), "network failure is not a verdict")
	})

	t.Run("rejected token", func(t *testing.T) {
		api := &fakeAPI{loginData: validLoginData(), verifyOK: false}
		s, _ := newTestSession(t, api)
		_, err := s.Login(context.Background(), "ana@example.com", "pw")
		require.NoError(t, err)

		assert.False(t, s.Validate(context.Background()))
	})

	t.Run("no token", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeAPI{verifyOK: true})
		assert.False(t, s.Validate(context.Background()))
	})
}

func TestLogoutClearsLocalEvenWhenRemoteFails(t *testing.T) {
	api := &fakeAPI{
		loginData: validLoginData(),
		logoutErr: &remote.Error{Kind: remote.KindTransient, Message: "offline"},
	}
	s, db := newTestSession(t, api)
	ctx := context.Background()

	_, err := s.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, 1, api.logoutCalls)
	assert.False(t, s.IsAuthenticated())

	user, err := db.GetValue(ctx, store.KeyAuthUser)
	require.NoError(t, err)
	assert.Empty(t, user)
}

func TestIsExpiringSoon(t *testing.T) {
	api := &fakeAPI{loginData: validLoginData()}
	s, _ := newTestSession(t, api)
	ctx := context.Background()

	assert.False(t, s.IsExpiringSoon(30*time.Minute), "unauthenticated session never expires soon")

	_, err := s.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	assert.False(t, s.IsExpiringSoon(30*time.Minute), "fresh 24h session is not near expiry")
	assert.True(t, s.IsExpiringSoon(25*time.Hour), "threshold wider than remaining lifetime")
}

func TestClearTokenKeepsUser(t *testing.T) {
	api := &fakeAPI{loginData: validLoginData()}
	s, db := newTestSession(t, api)
	ctx := context.Background()

	_, err := s.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	s.ClearToken()
	assert.Empty(t, s.Token())
	assert.False(t, s.IsAuthenticated())
	assert.NotNil(t, s.CurrentUser(), "401 drops the token, not the identity")

	token, err := db.GetValue(ctx, store.KeyAuthToken)
	require.NoError(t, err)
	assert.Empty(t, token)
}
