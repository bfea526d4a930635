package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/session"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

// AuthAPI is the part of the chat API used for authentication.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, in httpdto.RegisterRequest) error
	Me(ctx context.Context) (domain.User, error)
}

// Notifier surfaces failures and confirmations to the user.
type Notifier interface {
	Error(op string, err error)
	Success(text string) string
}

type AuthService struct {
	api      AuthAPI
	sessions *session.Manager
	notifier Notifier
	log      *logger.Logger
}

func NewAuthService(api AuthAPI, sessions *session.Manager, notifier Notifier, l *logger.Logger) *AuthService {
	if l == nil {
		l = logger.Nop()
	}
	return &AuthService{api: api, sessions: sessions, notifier: notifier, log: l.Named("auth")}
}

type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
}

var (
	passwordChars = regexp.MustCompile(`^[A-Za-z\d]{8,}$`)
	passwordDigit = regexp.MustCompile(`\d`)
)

func validateRegister(in RegisterInput) error {
	if in.Username == "" || in.DisplayName == "" || in.Email == "" || in.Password == "" {
		return dmchat_errors.ErrInvalidInput
	}
	if !passwordChars.MatchString(in.Password) || !passwordDigit.MatchString(in.Password) {
		return dmchat_errors.ErrWeakPassword
	}
	return nil
}

func validateLogin(username, password string) error {
	if username == "" || password == "" {
		return dmchat_errors.ErrInvalidInput
	}
	return nil
}

// Login exchanges credentials for a token, starts the session and loads the
// identity behind it.
func (s *AuthService) Login(ctx context.Context, username, password string) (session.Session, error) {
	username = strings.TrimSpace(username)
	if err := validateLogin(username, password); err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpLogin, err)
	}

	token, err := s.api.Login(ctx, username, password)
	if err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpLogin, err)
	}
	if _, err := s.sessions.Begin(ctx, token, domain.User{Username: username}); err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpLogin, err)
	}

	me, err := s.api.Me(ctx)
	if err != nil {
		_ = s.sessions.Clear(ctx)
		return session.Session{}, s.fail(dmchat_errors.OpLogin, err)
	}
	if err := s.sessions.SetUser(ctx, me); err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpLogin, err)
	}

	current, _ := s.sessions.Current()
	s.log.Logger.Info("logged in", zap.String("username", me.Username))
	return current, nil
}

// Register creates the account and logs straight into it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (session.Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegister(in); err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpRegister, err)
	}

	err := s.api.Register(ctx, httpdto.RegisterRequest{
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Password:    in.Password,
	})
	if err != nil {
		return session.Session{}, s.fail(dmchat_errors.OpRegister, err)
	}
	s.log.Logger.Info("registered", zap.String("username", in.Username))
	return s.Login(ctx, in.Username, in.Password)
}

// Restore resumes the persisted session and refreshes its identity. A
// token the server rejects ends the session with ErrUnauthorized.
func (s *AuthService) Restore(ctx context.Context) (session.Session, error) {
	if _, err := s.sessions.Restore(ctx); err != nil {
		return session.Session{}, err
	}

	me, err := s.api.Me(ctx)
	if err != nil {
		if errors.Is(err, dmchat_errors.ErrUnauthorized) {
			_ = s.sessions.Clear(ctx)
			s.log.Logger.Info("stored session rejected")
			return session.Session{}, fmt.Errorf("restore session: %w", dmchat_errors.ErrUnauthorized)
		}
		// Keep the stored identity while the server is unreachable.
		s.log.Logger.Warn("refresh identity failed", zap.Error(err))
		current, _ := s.sessions.Current()
		return current, nil
	}
	if err := s.sessions.SetUser(ctx, me); err != nil {
		return session.Session{}, err
	}
	current, _ := s.sessions.Current()
	return current, nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.sessions.Clear(ctx)
}

// Current returns the signed in user.
func (s *AuthService) Current() (domain.User, bool) {
	sess, ok := s.sessions.Current()
	return sess.User, ok
}

func (s *AuthService) fail(op string, err error) error {
	if s.notifier != nil {
		s.notifier.Error(op, err)
	}
	return err
}
