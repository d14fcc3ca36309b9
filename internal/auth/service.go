package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cookwithme/internal/redis"
	"cookwithme/internal/storage"
)

// ErrNotAuthenticated is returned whenever a session token is missing,
// unknown, or expired. Handlers map it to 401.
var ErrNotAuthenticated = errors.New("not authenticated")

const sessionCachePrefix = "session:"

// Service is the session manager: it binds opaque tokens to authenticated
// users. Sessions are rows in the durable store so they survive process
// restarts; the redis cache, when present, only short-circuits lookups.
// Identity is always derived from the resolved token, never from request
// body fields.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	sessionTTL     time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs a session manager with the supplied session lifetime.
// cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		sessionTTL:     ttl,
		cookieName:     "session_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// Create mints a new random session token for the user and persists it.
func (s *Service) Create(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		)
		if err == nil {
			s.cacheSession(ctx, token, userID)
			return token, nil
		}
		// Only a token collision warrants minting another token.
		if !storage.IsUniqueViolation(err) {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	return "", errors.New("create session: token space exhausted")
}

// Resolve verifies the token and returns the owning user id. The cache is
// consulted first; the durable row is authoritative on a miss.
func (s *Service) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrNotAuthenticated
	}
	if s.cache.Enabled() {
		if cached, err := s.cache.Get(ctx, sessionCachePrefix+token); err == nil {
			if userID, convErr := strconv.ParseInt(cached, 10, 64); convErr == nil && userID > 0 {
				return userID, nil
			}
		}
	}
	var userID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotAuthenticated
		}
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
		s.dropCachedSession(ctx, token)
		return 0, ErrNotAuthenticated
	}
	s.cacheSession(ctx, token, userID)
	return userID, nil
}

// Destroy deletes a single session.
func (s *Service) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	s.dropCachedSession(ctx, token)
	return nil
}

func (s *Service) cacheSession(ctx context.Context, token string, userID int64) {
	if !s.cache.Enabled() {
		return
	}
	// Cache writes are best effort; the sessions table is the source of truth.
	_ = s.cache.Set(ctx, sessionCachePrefix+token, strconv.FormatInt(userID, 10), s.sessionTTL)
}

func (s *Service) dropCachedSession(ctx context.Context, token string) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Del(ctx, sessionCachePrefix+token)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SessionCookieName returns the cookie name storing session tokens.
func (s *Service) SessionCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// SessionTTL reports the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}
