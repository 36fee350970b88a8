// Package auth provides email/password sessions over the local user mirror.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/logger"
)

var (
	// ErrBadCredentials covers both unknown emails and wrong passwords.
	ErrBadCredentials = errors.New("invalid email or password")

	// ErrNoSession is returned when a token does not map to a signed-in user.
	ErrNoSession = errors.New("not signed in")

	// ErrInvalidInput is returned for malformed sign-up fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Service authenticates users and tracks their sessions in memory.
type Service struct {
	users *dao.Users
	log   *logger.Logger

	mu       sync.RWMutex
	sessions map[string]domain.User
}

func NewService(users *dao.Users, log *logger.Logger) *Service {
	return &Service{
		users:    users,
		log:      log.WithComponent("auth"),
		sessions: make(map[string]domain.User),
	}
}

// SignUp registers a new user. The email UNIQUE constraint is the final word
// on duplicates; the EmailExists call only produces a friendlier early error.
func (s *Service) SignUp(name, email, password string, birthday time.Time) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))

	if name == "" || password == "" {
		return nil, fmt.Errorf("%w: name and password are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email %q", ErrInvalidInput, email)
	}

	if exists, err := s.users.EmailExists(email); err == nil && exists {
		return nil, fmt.Errorf("%w: %s", dao.ErrEmailTaken, email)
	}

	user := dao.NewUser(name, email, password, birthday)
	if err := s.users.Insert(user); err != nil {
		return nil, err
	}

	s.log.Info("user signed up", "user", email)
	return &user, nil
}

// SignIn validates credentials and returns a session token.
func (s *Service) SignIn(email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.Validate(email, password)
	if err != nil {
		if errors.Is(err, dao.ErrUserNotFound) {
			return "", ErrBadCredentials
		}
		return "", err
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.sessions[token] = *user
	s.mu.Unlock()

	s.log.Info("user signed in", "user", email)
	return token, nil
}

// SignOut invalidates a session token. Unknown tokens are a no-op.
func (s *Service) SignOut(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// UserFor resolves the user behind a session token.
func (s *Service) UserFor(token string) (*domain.User, error) {
	s.mu.RLock()
	user, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	return &user, nil
}
