package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bairro/internal/config"
	"bairro/internal/models"
	"bairro/internal/remote"
	"bairro/internal/store"

	"github.com/rs/zerolog"
)

// API is the slice of the remote surface the session needs. It is attached
// after construction because the remote client itself reads tokens from
// the session.
type API interface {
	Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginData, error)
	RefreshToken(ctx context.Context, refreshToken string) (*remote.LoginData, error)
	VerifyToken(ctx context.Context, token string) (bool, error)
	Logout(ctx context.Context) error
}

type LoginFailure string

const (
	FailureNone               LoginFailure = ""
	FailureInvalidCredentials LoginFailure = "invalid_credentials"
	FailureRateLimited        LoginFailure = "rate_limited"
	FailureServerError        LoginFailure = "server_error"
	FailureNetworkError       LoginFailure = "network_error"
)

type LoginResult struct {
	Success bool
	Reason  LoginFailure
	User    *models.User
}

// Session owns the bearer token and user identity. All mutation happens
// here; the remote client only reads tokens through the TokenSource view.
type Session struct {
	db     *store.DB
	api    API
	logger *zerolog.Logger

	lifetime time.Duration

	mu      sync.RWMutex
	token   string
	refresh string
	user    *models.User
	loginAt time.Time
}

func NewSession(db *store.DB, cfg config.AuthConfig, logger *zerolog.Logger) *Session {
	lifetime := cfg.SessionLifetime.Std()
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Session{
		db:       db,
		logger:   logger,
		lifetime: lifetime,
	}
}

// SetAPI wires the remote surface once the client exists.
func (s *Session) SetAPI(api API) {
	s.api = api
}

// Restore loads a persisted session. An expired or partial session is
// cleared rather than restored.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.db.GetValue(ctx, store.KeyAuthToken)
	if err != nil {
		return err
	}
	rawUser, err := s.db.GetValue(ctx, store.KeyAuthUser)
	if err != nil {
		return err
	}
	rawLoginTime, err := s.db.GetValue(ctx, store.KeyAuthLoginTime)
	if err != nil {
		return err
	}
	refresh, err := s.db.GetValue(ctx, store.KeyAuthRefreshToken)
	if err != nil {
		return err
	}

	if token == "" || rawUser == "" || rawLoginTime == "" {
		return s.clearLocal(ctx)
	}

	loginMs, err := strconv.ParseInt(rawLoginTime, 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", rawLoginTime).Msg("invalid stored login time, clearing session")
		return s.clearLocal(ctx)
	}
	loginAt := time.UnixMilli(loginMs)
	if time.Since(loginAt) >= s.lifetime {
		return s.clearLocal(ctx)
	}

	var user models.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Warn().Err(err).Msg("corrupt stored user, clearing session")
		return s.clearLocal(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.refresh = refresh
	s.user = &user
	s.loginAt = loginAt
	s.mu.Unlock()
	return nil
}

// Login authenticates and persists the session. Failures come back as a
// typed result, never as a raw transport error.
func (s *Session) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	data, err := s.api.Login(ctx, remote.LoginRequest{Email: email, Password: password})
	if err != nil {
		return &LoginResult{Success: false, Reason: classifyLoginError(err)}, nil
	}
	if data.Token == "" || data.User == nil {
		return &LoginResult{Success: false, Reason: FailureServerError}, nil
	}

	if err := s.save(ctx, data); err != nil {
		return nil, err
	}
	return &LoginResult{Success: true, User: data.User}, nil
}

func classifyLoginError(err error) LoginFailure {
	switch remote.StatusOf(err) {
	case http.StatusUnauthorized:
		return FailureInvalidCredentials
	case http.StatusTooManyRequests:
		return FailureRateLimited
	case 0:
		if remote.IsTransient(err) {
			return FailureNetworkError
		}
		return FailureServerError
	default:
		return FailureServerError
	}
}

// Refresh exchanges the refresh credential for a new token. On failure the
// session is invalidated; the caller must re-authenticate.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()

	if refresh == "" {
		s.logger.Debug().Msg("no refresh token, invalidating session")
		_ = s.clearLocal(ctx)
		return false
	}

	data, err := s.api.RefreshToken(ctx, refresh)
	if err != nil || data == nil || data.Token == "" {
		s.logger.Warn().Err(err).Msg("token refresh failed, invalidating session")
		_ = s.clearLocal(ctx)
		return false
	}

	if data.User == nil {
		s.mu.RLock()
		data.User = s.user
		s.mu.RUnlock()
	}
	if data.RefreshToken == "" {
		data.RefreshToken = refresh
	}

	if err := s.save(ctx, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist refreshed session")
		return false
	}
	return true
}

// Validate asks the API whether the current token is still accepted.
func (s *Session) Validate(ctx context.Context) bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return false
	}
	ok, err := s.api.VerifyToken(ctx, token)
	if err != nil {
		// Can't tell; keep the session and let a real 401 decide later.
		s.logger.Debug().Err(err).Msg("token verification unreachable")
		return true
	}
	return ok
}

// Logout invalidates remotely best-effort and always clears local state.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" && s.api != nil {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
		}
	}
	return s.clearLocal(ctx)
}

func (s *Session) save(ctx context.Context, data *remote.LoginData) error {
	loginAt := time.Now()

	rawUser, err := json.Marshal(data.User)
	if err != nil {
		return err
	}

	if err := s.db.SetValue(ctx, store.KeyAuthToken, data.Token); err != nil {
		return err
	}
	if err := s.db.SetValue(ctx, store.KeyAuthUser, string(rawUser)); err != nil {
		return err
	}
	if err := s.db.SetValue(ctx, store.KeyAuthLoginTime, strconv.FormatInt(loginAt.UnixMilli(), 10)); err != nil {
		return err
	}
	if data.RefreshToken != "" {
		if err := s.db.SetValue(ctx, store.KeyAuthRefreshToken, data.RefreshToken); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.token = data.Token
	s.user = data.User
	s.loginAt = loginAt
	if data.RefreshToken != "" {
		s.refresh = data.RefreshToken
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) clearLocal(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.refresh = ""
	s.user = nil
	s.loginAt = time.Time{}
	s.mu.Unlock()

	return s.db.DeleteValues(ctx,
		store.KeyAuthToken, store.KeyAuthUser, store.KeyAuthRefreshToken, store.KeyAuthLoginTime)
}

// IsAuthenticated holds iff both token and user are present.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IsExpiringSoon reports whether the session will pass its lifetime within
// the threshold. A session already expired is not "expiring soon".
func (s *Session) IsExpiringSoon(threshold time.Duration) bool {
	s.mu.RLock()
	loginAt := s.loginAt
	token := s.token
	s.mu.RUnlock()

	if token == "" || loginAt.IsZero() {
		return false
	}
	left := s.lifetime - time.Since(loginAt)
	return left > 0 && left < threshold
}

// Token implements remote.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ClearToken implements remote.TokenSource. Called by the client on 401;
// only the in-memory and persisted token go, the user record stays until
// an explicit logout or failed refresh.
func (s *Session) ClearToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.DeleteValues(ctx, store.KeyAuthToken); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear persisted token")
	}
}
