package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"github.com/kelpcommercial/kelp-transfers/internal/errs"
)

// Verifier turns a bearer token into an opaque caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier accepts HS256 tokens signed with Key; the subject claim is the caller id.
type JWTVerifier struct {
	Key    []byte
	Leeway time.Duration
}

// NewJWTVerifier constructs a verifier with a 30s clock leeway.
func NewJWTVerifier(key []byte) *JWTVerifier {
	return &JWTVerifier{Key: key, Leeway: 30 * time.Second}
}

// Verify checks signature, algorithm and time claims.
func (v *JWTVerifier) Verify(_ context.Context, tok string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.Key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", errs.ErrUnauthenticated)
	}

	val := jwt.NewValidator(jwt.WithLeeway(v.Leeway), jwt.WithExpirationRequired())
	if err := val.Validate(&claims); err != nil {
		return "", fmt.Errorf("%w: token expired or not valid yet", errs.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", errs.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// IssueToken signs an HS256 token for subject. Used by tooling and tests; production tokens
// come from the identity provider.
func IssueToken(key []byte, subject string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	return signed, exp, err
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
