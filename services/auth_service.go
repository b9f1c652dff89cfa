package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (Session, error)
	Login(req auth.LoginRequest) (Session, error)
}

// Session is what a client needs to call protected routes and open a stream.
type Session struct {
	Token  string        `json:"token"`
	UserID domain.UserID `json:"userId"`
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Session, error) {
	// Business rules first, before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return Session{}, err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	// Propagates ErrUsernameExists or ErrEmailExists
	user, err := s.userRepository.CreateUser(req.Username, req.Email, hashedPassword)
	if err != nil {
		return Session{}, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(req auth.LoginRequest) (Session, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return Session{}, err
	}

	var user domain.User
	var err error
	if req.Email != "" {
		user, err = s.userRepository.GetUserByEmail(req.Email)
	} else {
		user, err = s.userRepository.GetUserByUsername(req.Username)
	}
	if err != nil {
		// Generic error to prevent user enumeration
		if errors.Is(err, errors.ErrUserNotFound) {
			return Session{}, errors.ErrInvalidCredentials
		}
		return Session{}, err
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *AuthService) issue(user domain.User) (Session, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: user.ID}, nil
}
