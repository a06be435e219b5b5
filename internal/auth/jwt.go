// Package auth resolves chat credentials to identities.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized covers every way a credential can fail. The relay
	// does not distinguish between them.
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmptySecret  = errors.New("jwt secret is empty")
)

const DefaultTTL = 7 * 24 * time.Hour

// Verifier maps an opaque credential to an identity or rejects it.
type Verifier interface {
	Verify(credential string) (domain.Identity, error)
}

type VerifierFunc func(credential string) (domain.Identity, error)

func (f VerifierFunc) Verify(credential string) (domain.Identity, error) { return f(credential) }

// Claims carries the subject as a decimal string in "sub" and the display
// name in "username".
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTVerifier(secret, issuer string, ttl time.Duration) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (v *JWTVerifier) Verify(credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, ErrUnauthorized
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrUnauthorized
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: bad subject %q", ErrUnauthorized, claims.Subject)
	}
	ident, err := domain.NewIdentity(domain.SubjectID(id), claims.Username)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return ident, nil
}

// Issue signs a token for the given subject. ttl <= 0 uses the verifier's
// configured lifetime.
func (v *JWTVerifier) Issue(id domain.SubjectID, username string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = v.ttl
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   strconv.FormatInt(int64(id), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
