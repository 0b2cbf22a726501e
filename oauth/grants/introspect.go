package grants

import (
	"context"
	"errors"
	"time"

	"github.com/soteria-id/soteria/oauth"
)

// Introspection is the RFC 7662-shaped view of a token.
type Introspection struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Subject  string `json:"sub,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
	Iat      int64  `json:"iat,omitempty"`
}

// Introspect reports the active state and claims of a token value. Unknown
// and expired values come back inactive rather than erroring.
func (s *Service) Introspect(ctx context.Context, tokenValue string) (*Introspection, error) {
	t, err := s.tokens.GetByAccessToken(ctx, tokenValue)
	if errors.Is(err, oauth.ErrNotFound) {
		t, err = s.tokens.GetByRefreshToken(ctx, tokenValue)
	}
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return &Introspection{Active: false}, nil
		}
		return nil, err
	}
	if t.Expired(time.Now()) {
		return &Introspection{Active: false}, nil
	}
	return &Introspection{
		Active:   true,
		Scope:    t.Scope,
		ClientID: t.ClientID,
		Subject:  t.Subject,
		Exp:      t.ExpiresAt.Unix(),
		Iat:      t.CreatedAt.Unix(),
	}, nil
}

// TokenInfo returns the stored grant behind a live access token. Unlike
// Introspect it is for internal callers and fails on unknown or expired
// values.
func (s *Service) TokenInfo(ctx context.Context, accessToken string) (*oauth.GrantedToken, error) {
	t, err := s.tokens.GetByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidToken, "the token was not found")
		}
		return nil, err
	}
	if t.Expired(time.Now()) {
		return nil, oauth.NewError(oauth.ErrInvalidToken, "the token is expired")
	}
	return t, nil
}
