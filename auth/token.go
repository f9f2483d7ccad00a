package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuthenticator issues and validates HS256 tokens.
// It is the auth collaborator of the session manager.
type TokenAuthenticator struct {
	secret   []byte
	duration time.Duration
}

func NewTokenAuthenticator(secret string, duration time.Duration) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific user.
func (a *TokenAuthenticator) GenerateToken(identity domain.Identity) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: string(identity.UserID),
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Validate parses and validates the signature and expiration of a JWT string,
// then returns the identity it carries.
func (a *TokenAuthenticator) Validate(_ context.Context, tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is missing", errors.ErrUnauthenticated)
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, jwt.ErrSignatureInvalid)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: malformed claims", errors.ErrUnauthenticated)
	}
	return domain.Identity{UserID: domain.UserID(claims.UserID), Role: role}, nil
}

// SubjectOf reads the user id of a token without checking its signature.
// Clients use it to recognise their own messages, never to authorise.
func SubjectOf(tokenString string) (domain.UserID, error) {
	claims := &CustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: malformed claims", errors.ErrUnauthenticated)
	}
	return domain.UserID(claims.UserID), nil
}
