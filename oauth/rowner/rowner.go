// Package rowner authenticates resource owners for the password grant.
// Several factors can be configured (password, SMS confirmation code, TOTP);
// a request is authenticated by exactly one of them.
package rowner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/soteria-id/soteria/oauth"
)

// ResourceOwner is an authenticated end user with the claims that flow into
// identity tokens.
type ResourceOwner struct {
	Subject  string
	Username string
	Claims   map[string]any
}

// ErrNoMatch signals the factor does not apply or the credential is wrong;
// the chain moves on to the next factor.
var ErrNoMatch = errors.New("rowner: credentials do not match")

// Authenticator is one resource-owner authentication factor.
type Authenticator interface {
	Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error)
}

// User is the stored resource-owner record the factors verify against.
type User struct {
	Subject      string         `json:"subject" bson:"subject"`
	Username     string         `json:"username" bson:"username"`
	PasswordHash []byte         `json:"-" bson:"password_hash"`
	TOTPSecret   string         `json:"-" bson:"totp_secret,omitempty"`
	Claims       map[string]any `json:"claims,omitempty" bson:"claims,omitempty"`
}

// UserStore resolves users by username or subject.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*User, error)
}

// PasswordAuthenticator verifies a bcrypt password hash.
type PasswordAuthenticator struct {
	users UserStore
}

func NewPasswordAuthenticator(users UserStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{users: users}
}

func (p *PasswordAuthenticator) Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error) {
	user, err := p.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, ErrNoMatch
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(credential)); err != nil {
		return nil, ErrNoMatch
	}
	return owner(user), nil
}

// ConfirmationCodeAuthenticator verifies a one-time SMS code. The code is
// consumed on success and cannot be replayed.
type ConfirmationCodeAuthenticator struct {
	users UserStore
	codes oauth.ConfirmationCodeStore
}

func NewConfirmationCodeAuthenticator(users UserStore, codes oauth.ConfirmationCodeStore) *ConfirmationCodeAuthenticator {
	return &ConfirmationCodeAuthenticator{users: users, codes: codes}
}

func (c *ConfirmationCodeAuthenticator) Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error) {
	user, err := c.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, ErrNoMatch
		}
		return nil, err
	}
	code, err := c.codes.ConsumeConfirmationCode(ctx, credential)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, ErrNoMatch
		}
		return nil, err
	}
	if time.Now().After(code.ExpiresAt) {
		return nil, ErrNoMatch
	}
	if code.Subject != user.Subject {
		// Someone else's live code: put it back so its owner can still
		// redeem it.
		if err := c.codes.SaveConfirmationCode(ctx, code); err != nil {
			return nil, err
		}
		return nil, ErrNoMatch
	}
	return owner(user), nil
}

// TOTPAuthenticator verifies a time-based one-time code against the user's
// enrolled secret.
type TOTPAuthenticator struct {
	users UserStore
}

func NewTOTPAuthenticator(users UserStore) *TOTPAuthenticator {
	return &TOTPAuthenticator{users: users}
}

func (t *TOTPAuthenticator) Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error) {
	user, err := t.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, ErrNoMatch
		}
		return nil, err
	}
	if user.TOTPSecret == "" || !totp.Validate(credential, user.TOTPSecret) {
		return nil, ErrNoMatch
	}
	return owner(user), nil
}

// Chain tries each configured factor in order; the first success wins.
type Chain struct {
	factors []Authenticator
}

func NewChain(factors ...Authenticator) *Chain {
	return &Chain{factors: factors}
}

func (c *Chain) Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error) {
	for _, f := range c.factors {
		ro, err := f.Authenticate(ctx, username, credential)
		if err == nil {
			return ro, nil
		}
		if !errors.Is(err, ErrNoMatch) {
			return nil, err
		}
	}
	slog.Debug("resource owner authentication failed", "username", username)
	return nil, ErrNoMatch
}

func owner(user *User) *ResourceOwner {
	return &ResourceOwner{Subject: user.Subject, Username: user.Username, Claims: user.Claims}
}

// MockAuthenticator provides a customizable hook for testing.
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, username, credential string) (*ResourceOwner, error)
}

var _ Authenticator = (*MockAuthenticator)(nil)

func (m *MockAuthenticator) Authenticate(ctx context.Context, username, credential string) (*ResourceOwner, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, username, credential)
	}
	return nil, ErrNoMatch
}
