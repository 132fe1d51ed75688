package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidUserID is returned when issuing a token without a user identifier.
	ErrInvalidUserID = errors.New("userID is required")
	// ErrTokenInvalid is returned when a token fails signature or shape checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTTL bounds token lifetime when no explicit TTL is configured.
const DefaultTTL = 24 * time.Hour

type claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Option configures a Manager instance.
type Option func(*Manager)

// WithClock overrides the time source used for issue and verification,
// primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager issues and verifies signed, time-bounded bearer tokens binding a
// request to a user identity. Tokens are verified statelessly: no datastore
// round trip is involved.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager constructs a Manager with the provided signing key and TTL. The
// key is process-wide configuration and must not be empty.
func NewManager(secret []byte, ttl time.Duration, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	manager := &Manager{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Issue produces a signed token for the provided user identifier along with
// its expiry time.
func (m *Manager) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	now := m.now()
	expiresAt := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the user identity the token
// was issued for.
func (m *Manager) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	parsedClaims, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || parsedClaims.UserID == "" {
		return "", ErrTokenInvalid
	}
	return parsedClaims.UserID, nil
}
