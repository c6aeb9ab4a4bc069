package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	tokenIssuer   = "minishop"
	keyInfo       = "minishop session cookie v1"
	signingKeyLen = 32
)

var ErrInvalidToken = errors.New("invalid session token")

// TokenMaker signs and verifies session cookie values. The HMAC key is
// derived from the configured secret, never the secret itself.
type TokenMaker struct {
	key []byte
}

func NewTokenMaker(secret []byte) (*TokenMaker, error) {
	key := make([]byte, signingKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &TokenMaker{key: key}, nil
}

type Claims struct {
	jwt.RegisteredClaims
}

func (t *TokenMaker) New(sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Parse returns the session id and expiry carried by a valid token.
func (t *TokenMaker) Parse(tokenStr string) (string, time.Time, error) {
	var c Claims

	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || token == nil || !token.Valid || c.Subject == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	return c.Subject, c.ExpiresAt.Time, nil
}
