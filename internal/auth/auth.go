package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier resolves a bearer token to a user id. The session gateway
// depends on this interface only, never on the signing details.
type TokenVerifier interface {
	Verify(tokenString string) (int, error)
}

type JwtTokenService struct {
	signingKey []byte
}

func NewJwtTokenService(signingKey []byte) *JwtTokenService {
	return &JwtTokenService{signingKey: signingKey}
}

func (s *JwtTokenService) Issue(userId int, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *JwtTokenService) Verify(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	return int(userId), nil
}
