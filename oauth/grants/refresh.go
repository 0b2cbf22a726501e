package grants

import (
	"context"
	"errors"

	"github.com/soteria-id/soteria/oauth"
)

// refreshToken exchanges a refresh token for a new access token. The new
// token is linked to the refresh record through ParentTokenID so revoking
// the refresh token cascades to it.
func (s *Service) refreshToken(ctx context.Context, client *oauth.Client, req Request) (*grantResult, error) {
	if req.RefreshToken == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing refresh_token parameter")
	}
	parent, err := s.tokens.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidGrant, "the refresh token is not valid")
		}
		return nil, err
	}
	if parent.ClientID != client.ClientID {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "the refresh token can be used only by the same issuer")
	}
	return &grantResult{
		subject:       parent.Subject,
		scopes:        parent.ScopeList(),
		idClaims:      parent.IDTokenClaims,
		userClaims:    parent.UserClaims,
		parentTokenID: parent.ID,
	}, nil
}
