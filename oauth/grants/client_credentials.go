package grants

import (
	"context"

	"github.com/soteria-id/soteria/oauth"
)

// clientCredentials issues a token carrying the client identity only.
func (s *Service) clientCredentials(_ context.Context, client *oauth.Client, req Request) (*grantResult, error) {
	scopes := oauth.ParseScope(req.Scope)
	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	if !client.ScopesAllowed(scopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the scopes allowed for client %q", client.ClientID)
	}
	return &grantResult{
		scopes:     scopes,
		allowReuse: true,
	}, nil
}
