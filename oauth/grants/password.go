package grants

import (
	"context"
	"errors"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/rowner"
)

// password authenticates the resource owner through the configured factor
// chain and issues a token carrying the owner's claims.
func (s *Service) password(ctx context.Context, client *oauth.Client, req Request) (*grantResult, error) {
	if s.owners == nil {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "resource owner authentication is not configured")
	}
	if req.Username == "" || req.Password == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing username or password parameter")
	}
	owner, err := s.owners.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, rowner.ErrNoMatch) {
			return nil, oauth.NewError(oauth.ErrInvalidCredentials, "resource owner authentication failed")
		}
		return nil, err
	}
	scopes := oauth.ParseScope(req.Scope)
	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	if !client.ScopesAllowed(scopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the scopes allowed for client %q", client.ClientID)
	}

	idClaims := map[string]any{"sub": owner.Subject}
	for k, v := range owner.Claims {
		idClaims[k] = v
	}
	return &grantResult{
		subject:      owner.Subject,
		scopes:       scopes,
		idClaims:     idClaims,
		userClaims:   owner.Claims,
		issueRefresh: client.SupportsGrantType(oauth.GrantTypeRefreshToken),
		allowReuse:   true,
	}, nil
}
