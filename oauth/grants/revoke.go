package grants

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/authn"
)

// Revoke locates the presented value as an access token first, then as a
// refresh token, and removes it. Revoking a refresh token first removes the
// access tokens chained to it through ParentTokenID. A value that matches
// nothing fails invalid_token.
func (s *Service) Revoke(ctx context.Context, tokenValue string, m authn.Material) error {
	client, err := s.authn.Authenticate(ctx, m)
	if err != nil {
		return err
	}
	if tokenValue == "" {
		return oauth.NewError(oauth.ErrInvalidRequest, "missing token parameter")
	}

	if t, err := s.tokens.GetByAccessToken(ctx, tokenValue); err == nil {
		if t.ClientID != client.ClientID {
			return oauth.NewError(oauth.ErrInvalidToken, "the token was not found")
		}
		if err := s.tokens.DeleteToken(ctx, t.ID); err != nil && !errors.Is(err, oauth.ErrNotFound) {
			return err
		}
		slog.Info("access token revoked", "client_id", client.ClientID)
		return nil
	} else if !errors.Is(err, oauth.ErrNotFound) {
		return err
	}

	if t, err := s.tokens.GetByRefreshToken(ctx, tokenValue); err == nil {
		if t.ClientID != client.ClientID {
			return oauth.NewError(oauth.ErrInvalidToken, "the token was not found")
		}
		// Cascade: descendants first, then the refresh record itself.
		if err := s.tokens.DeleteByParent(ctx, t.ID); err != nil {
			return err
		}
		if err := s.tokens.DeleteToken(ctx, t.ID); err != nil && !errors.Is(err, oauth.ErrNotFound) {
			return err
		}
		slog.Info("refresh token revoked", "client_id", client.ClientID)
		return nil
	} else if !errors.Is(err, oauth.ErrNotFound) {
		return err
	}

	return oauth.NewError(oauth.ErrInvalidToken, "the token was not found")
}
