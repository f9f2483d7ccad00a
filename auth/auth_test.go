package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "DobarDan-Instruktor-42"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	// Wrong password
	match, err = ComparePassword("WrongPassword1!", hash)
	req.NoError(err)
	req.False(match)

	// Corrupted hash
	_, err = ComparePassword(password, "$bcrypt$nope")
	req.Error(err)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid candidate", RegisterRequest{Email: "ana@example.com", Password: "ComplexPass123!", Role: "candidate"}, false},
		{"Valid instructor", RegisterRequest{Email: "marko@example.com", Password: "ComplexPass123!", Role: "instructor"}, false},
		{"Unknown role", RegisterRequest{Email: "ana@example.com", Password: "ComplexPass123!", Role: "admin"}, true},
		{"Invalid email", RegisterRequest{Email: "notanemail", Password: "ComplexPass123!", Role: "candidate"}, true},
		{"Password too short", RegisterRequest{Email: "ana@example.com", Password: "Short1!", Role: "candidate"}, true},
		{"Missing digit", RegisterRequest{Email: "ana@example.com", Password: "NoDigitPass!", Role: "candidate"}, true},
		{"Missing special char", RegisterRequest{Email: "ana@example.com", Password: "NoSpecialChar123", Role: "candidate"}, true},
		{"Password too long", RegisterRequest{Email: "ana@example.com", Password: strings.Repeat("a", 73), Role: "candidate"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestTokenAuthenticator_RoundTrip(t *testing.T) {
	req := require.New(t)
	authenticator := NewTokenAuthenticator("test-secret-with-enough-entropy", time.Hour)
	identity := domain.Identity{UserID: "instructor-1", Role: domain.RoleInstructor}

	token, err := authenticator.GenerateToken(identity)
	req.NoError(err)

	got, err := authenticator.Validate(context.Background(), token)
	req.NoError(err)
	req.Equal(identity, got)
}

func TestTokenAuthenticator_Rejects(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	authenticator := NewTokenAuthenticator("test-secret-with-enough-entropy", time.Hour)
	other := NewTokenAuthenticator("another-secret", time.Hour)
	expired := NewTokenAuthenticator("test-secret-with-enough-entropy", -time.Minute)
	identity := domain.Identity{UserID: "candidate-1", Role: domain.RoleCandidate}

	// Given a token signed with another secret
	forged, err := other.GenerateToken(identity)
	req.NoError(err)
	_, err = authenticator.Validate(ctx, forged)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Given an expired token
	old, err := expired.GenerateToken(identity)
	req.NoError(err)
	_, err = authenticator.Validate(ctx, old)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Given no token
	_, err = authenticator.Validate(ctx, "")
	req.ErrorIs(err, errors.ErrUnauthenticated)

	// Given a token without a chat role
	claims := &CustomClaims{UserID: "x", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-with-enough-entropy"))
	req.NoError(err)
	_, err = authenticator.Validate(ctx, raw)
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	authenticator := NewTokenAuthenticator("test-secret-with-enough-entropy", time.Hour)
	identity := domain.Identity{UserID: "candidate-9", Role: domain.RoleCandidate}
	token, err := authenticator.GenerateToken(identity)
	req.NoError(err)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		got, ok := IdentityFrom(c)
		req.True(ok)
		return c.String(http.StatusOK, string(got.UserID))
	}, Middleware(authenticator))

	// With a bearer token
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("candidate-9", rec.Body.String())

	// With the query parameter used by websocket clients
	r = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)

	// Without token
	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}

func TestSubjectOf(t *testing.T) {
	req := require.New(t)
	authenticator := NewTokenAuthenticator("a-secret-of-enough-length", time.Hour)
	token, err := authenticator.GenerateToken(domain.Identity{UserID: "x", Role: domain.RoleCandidate})
	req.NoError(err)

	// Given any well-formed token, the subject is readable without the secret
	subject, err := SubjectOf(token)
	req.NoError(err)
	req.Equal(domain.UserID("x"), subject)

	_, err = SubjectOf("not-a-token")
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
