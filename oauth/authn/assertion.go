package authn

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/sign"
)

// verifyAssertion authenticates a client from a signed JWT (private_key_jwt).
// The assertion names the client in iss/sub; the signature is verified
// against the client's registered JWKS, and the audience must be this
// server's issuer.
func (a *Authenticator) verifyAssertion(ctx context.Context, assertion string) (*oauth.Client, error) {
	// First pass without verification to learn which client's keys to use.
	unverified, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return nil, oauth.NewError(oauth.ErrInvalidClient, "malformed client assertion")
	}
	clientID, err := unverified.Claims.GetIssuer()
	if err != nil || clientID == "" {
		return nil, oauth.NewError(oauth.ErrInvalidClient, "client assertion missing issuer")
	}
	client, err := a.lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}

	keyfunc := func(t *jwt.Token) (any, error) {
		set, err := sign.ClientKeySet(ctx, a.remote, client)
		if err != nil {
			return nil, err
		}
		if kid, ok := t.Header["kid"].(string); ok && kid != "" {
			if keys := set.Key(kid); len(keys) > 0 {
				return keys[0].Key, nil
			}
			return nil, fmt.Errorf("authn: no key %q in client jwks", kid)
		}
		if len(set.Keys) > 0 {
			return set.Keys[0].Key, nil
		}
		return nil, fmt.Errorf("authn: client jwks is empty")
	}

	parsed, err := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256"}),
		jwt.WithAudience(a.issuer),
		jwt.WithExpirationRequired(),
	).Parse(assertion, keyfunc)
	if err != nil || !parsed.Valid {
		return nil, oauth.NewError(oauth.ErrInvalidClient, "client assertion verification failed")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub != clientID {
		return nil, oauth.NewError(oauth.ErrInvalidClient, "client assertion subject does not match issuer")
	}
	return client, nil
}
