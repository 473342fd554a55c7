package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/errors"
)

// Claims holds the JWT claims issued to presenters.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	jwt.RegisteredClaims
}

// JWTAuthorizer verifies HS256 bearer tokens and implements domain.Authorizer.
type JWTAuthorizer struct {
	secret []byte
}

func NewJWTAuthorizer(secret string) *JWTAuthorizer {
	return &JWTAuthorizer{secret: []byte(secret)}
}

func (a *JWTAuthorizer) Authorize(_ context.Context, tokenString string) (*domain.Identity, error) {
	if tokenString == "" {
		return nil, errors.AuthorizationError("missing bearer token")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.AuthorizationError("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.AuthorizationError("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.AuthorizationError("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.AuthorizationError("token missing user id")
	}

	return &domain.Identity{UserID: claims.UserID, Name: claims.Name}, nil
}

// Issue signs a presenter token. Used by tests and local tooling.
func (a *JWTAuthorizer) Issue(userID uuid.UUID, name string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
