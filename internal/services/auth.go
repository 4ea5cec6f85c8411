package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	confirmationCodeBytes   = 16
	defaultConfirmationTTL  = 24 * time.Hour
	defaultConfirmationCost = bcrypt.DefaultCost
)

// ConfirmationSender delivers a freshly issued confirmation code to a user.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, user types.User, code string) error
}

// SignupInput requests a confirmation code for a username/email pair.
type SignupInput struct {
	Username string `json:"username" validate:"required,max=150,username,notreserved"`
	Email    string `json:"email" validate:"required,max=254,email"`
}

// TokenInput exchanges a confirmation code for an access token.
type TokenInput struct {
	Username         string `json:"username" validate:"required,max=150"`
	ConfirmationCode string `json:"confirmation_code" validate:"required"`
}

// AuthService implements the confirmation-code signup and token exchange.
type AuthService struct {
	users    UserRepository
	sender   ConfirmationSender
	tokens   *TokenIssuer
	codeTTL  time.Duration
	codeCost int
	now      func() time.Time
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithCodeCost sets the bcrypt cost used to hash confirmation codes.
func WithCodeCost(cost int) AuthOption {
	return func(s *AuthService) {
		s.codeCost = cost
	}
}

// WithClock replaces time.Now for code expiry and token timestamps.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		s.now = now
		s.tokens.now = now
	}
}

func NewAuthService(users UserRepository, sender ConfirmationSender, cfg config.AuthConfig, opts ...AuthOption) *AuthService {
	codeTTL := cfg.ConfirmationCodeTTL
	if codeTTL <= 0 {
		codeTTL = defaultConfirmationTTL
	}
	s := &AuthService{
		users:    users,
		sender:   sender,
		tokens:   NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		codeTTL:  codeTTL,
		codeCost: defaultConfirmationCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates the user when the username is new, issues a fresh code and
// mails it. The username decides which account is meant: an existing
// username must come with its registered email, and a new username cannot
// claim an email that is already bound to someone else.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (types.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if err := validateInput(input); err != nil {
		return types.User{}, err
	}

	user, err := s.resolveSignupUser(ctx, input)
	if err != nil {
		return types.User{}, err
	}

	code, hash, err := s.newCode()
	if err != nil {
		return types.User{}, err
	}
	if err := s.users.SetConfirmationCode(ctx, user.ID, hash, s.now().Add(s.codeTTL)); err != nil {
		return types.User{}, fmt.Errorf("store confirmation code: %w", err)
	}

	if err := s.sender.SendConfirmation(ctx, user, code); err != nil {
		return types.User{}, fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}
	return user, nil
}

func (s *AuthService) resolveSignupUser(ctx context.Context, input SignupInput) (types.User, error) {
	user, err := s.users.GetByUsername(ctx, input.Username)
	if err == nil {
		if user.Email != input.Email {
			return types.User{}, fieldError("email", "This username is registered with a different email.")
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, fieldError("email", "This email is already registered to another username.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	user, err = s.users.Create(ctx, types.User{
		Username: input.Username,
		Email:    input.Email,
		Role:     types.RoleUser,
	})
	if err != nil {
		return types.User{}, userConflict(err)
	}
	return user, nil
}

// ExchangeToken verifies the pending code and returns an access token. A
// matching code is rotated before the token is issued, so each code works
// once. Unknown usernames yield store.ErrNotFound.
func (s *AuthService) ExchangeToken(ctx context.Context, input TokenInput) (string, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.ConfirmationCode = strings.TrimSpace(input.ConfirmationCode)
	if err := validateInput(input); err != nil {
		return "", err
	}

	user, err := s.users.GetByUsername(ctx, input.Username)
	if err != nil {
		return "", err
	}
	if !s.codeMatches(user, input.ConfirmationCode) {
		return "", ErrAuthentication
	}

	_, newHash, err := s.newCode()
	if err != nil {
		return "", err
	}
	err = s.users.RotateConfirmationCode(ctx, user.ID, user.ConfirmationCodeHash, newHash, s.now().Add(s.codeTTL))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrAuthentication
		}
		return "", fmt.Errorf("rotate confirmation code: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (s *AuthService) codeMatches(user types.User, code string) bool {
	if user.ConfirmationCodeHash == "" {
		return false
	}
	if user.ConfirmationCodeExpiresAt != nil && !s.now().Before(*user.ConfirmationCodeExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.ConfirmationCodeHash), []byte(code)) == nil
}

// Authenticate resolves a bearer token to the user it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.User, error) {
	userID, err := s.tokens.Subject(token)
	if err != nil {
		return types.User{}, ErrAuthentication
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrAuthentication
		}
		return types.User{}, err
	}
	return user, nil
}

// IssueToken mints an access token without a code exchange. Used by tooling.
func (s *AuthService) IssueToken(user types.User) (string, error) {
	return s.tokens.Issue(user.ID)
}

func (s *AuthService) newCode() (code, hash string, err error) {
	raw := make([]byte, confirmationCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate confirmation code: %w", err)
	}
	code = hex.EncodeToString(raw)
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), s.codeCost)
	if err != nil {
		return "", "", fmt.Errorf("hash confirmation code: %w", err)
	}
	return code, string(hashed), nil
}
