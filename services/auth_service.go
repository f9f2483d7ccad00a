package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
)

type IAuthService interface {
	Login(email, password string) (Token, error)
	Register(req auth.RegisterRequest) (Token, error)
}

type ITokenIssuer interface {
	GenerateToken(identity domain.Identity) (string, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	issuer         ITokenIssuer
}

type Token string

func NewAuthService(repo repositories.IUserRepository, issuer ITokenIssuer) *AuthService {
	return &AuthService{userRepository: repo, issuer: issuer}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Token, error) {
	// Business rules are checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	role := domain.Role(req.Role)
	userID, err := s.userRepository.CreateUser(req.Email, hashedPassword, role, req.DisplayName)
	if err != nil {
		return "", err
	}
	return s.issue(domain.Identity{UserID: domain.UserID(userID), Role: role})
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}
	return s.issue(domain.Identity{UserID: user.ID, Role: user.Role})
}

func (s *AuthService) issue(identity domain.Identity) (Token, error) {
	token, err := s.issuer.GenerateToken(identity)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}
