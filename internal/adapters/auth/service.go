package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = store.ErrUsernameTaken
)

type UserRepo interface {
	Create(ctx context.Context, username, passwordHash string) (*store.User, error)
	FindByUsername(ctx context.Context, username string) (*store.User, error)
}

type Service struct {
	Users  UserRepo
	Tokens *Tokens
}

func (s *Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.Create(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	du := u.Domain()
	return &du, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	u, err := s.Users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.Tokens.Issue(domain.Identity(u.Username))
}
