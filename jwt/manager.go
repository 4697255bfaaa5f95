// Package jwt implements the signed-token codec used for access and
// refresh credentials. Access and refresh tokens are signed with
// independent symmetric secrets so that leaking one class can never
// forge the other.
package jwt

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures are collapsed into three classes; callers map all
// of them to a generic unauthenticated response before reaching clients.
var (
	ErrExpired   = errors.New("token expired")
	ErrSignature = errors.New("token signature invalid")
	ErrMalformed = errors.New("token malformed")
)

// Kind selects which secret and TTL a token is issued and verified under.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

// Config holds the codec secrets and expiry policies. Instances are
// validated once by NewManager and treated as immutable afterwards.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration

	// KeyID is stamped into the kid header of every issued token so a
	// future multi-key codec can verify old tokens after a rotation.
	KeyID string
}

// Claims carried by both token classes. A pair issued together always
// shares SID and Ver.
type Claims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	Ver uint32 `json:"ver"`
	jwt.RegisteredClaims
}

// Manager signs and verifies both token classes.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("jwt secrets must be at least 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token of the given kind. Refresh tokens additionally get a
// random jti so two tokens issued in the same second never hash equal.
func (m *Manager) Issue(uid, sid string, ver uint32, kind Kind) (string, error) {
	now := time.Now()
	claims := Claims{
		UID: uid,
		SID: sid,
		Ver: ver,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if kind == KindRefresh {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	return token.SignedString(m.secret(kind))
}

// Verify parses and validates a token of the given kind and returns its
// claims. Failures are classified as ErrExpired, ErrSignature, or
// ErrMalformed.
func (m *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret(kind), nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func (m *Manager) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

func (m *Manager) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}
