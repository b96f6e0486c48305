package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every way a handshake token can fail: bad
// signature, wrong algorithm, expired, or missing subject.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. The user id rides in the registered
// subject claim; username is ours.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTValidator checks HMAC-signed bearer tokens minted by the identity
// service. It implements collab.TokenValidator.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and verifies a token, returning the embedded identity.
func (v *JWTValidator) Validate(token string) (string, string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return claims.Subject, username, nil
}

// Sign mints a token for the given identity. The server never issues
// tokens in production; this backs tests and local development.
func Sign(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// InsecureValidator accepts any token and defers to the user id claimed
// in the handshake. Development only; the server refuses to start with
// it unless explicitly asked.
type InsecureValidator struct{}

func (InsecureValidator) Validate(string) (string, string, error) {
	return "", "", nil
}
