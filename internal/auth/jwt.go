package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAudience is the audience the identity service stamps on user tokens.
const DefaultAudience = "authenticated"

// TokenVerifier checks session access tokens locally with the identity
// service's shared HS256 secret, avoiding a network round trip per request.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &TokenVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: DefaultAudience,
		now:      time.Now,
	}, nil
}

/* ===================== VERIFY ===================== */

func (v *TokenVerifier) Verify(_ context.Context, accessToken string) (SessionClaim, error) {
	claims, err := v.parse(accessToken)
	if err != nil {
		return SessionClaim{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return SessionClaim{Valid: true, UserID: claims.Subject}, nil
}

func (v *TokenVerifier) parse(tokenString string) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("sub missing")
	}
	return claims, nil
}

/* ===================== ISSUE ===================== */

// Issue mints an access token the verifier accepts. The identity service is
// the issuer in production; this exists for local stacks and tests.
func (v *TokenVerifier) Issue(now time.Time, userID, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email:     email,
		Role:      DefaultAudience,
		SessionID: uuid.NewString(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(v.secret)
}
