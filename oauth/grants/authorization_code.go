package grants

import (
	"context"
	"errors"
	"time"

	"github.com/soteria-id/soteria/oauth"
)

// authorizationCode redeems a single-use code. The code is consumed through
// the store's compare-and-delete before any token is issued, so a concurrent
// double redemption loses at the store and fails invalid_grant.
func (s *Service) authorizationCode(ctx context.Context, client *oauth.Client, req Request) (*grantResult, error) {
	if req.Code == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing code parameter")
	}
	code, err := s.codes.ConsumeCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidGrant, "the authorization code is not correct")
		}
		return nil, err
	}
	if code.ClientID != client.ClientID {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "the authorization code was not issued to this client")
	}
	if client.RequirePKCE || code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing code_verifier parameter")
		}
		if !oauth.VerifyCodeChallenge(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
			return nil, oauth.NewError(oauth.ErrInvalidRequest, "the code_verifier does not match the code_challenge")
		}
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "the redirect_uri does not match the authorization request")
	}
	if time.Since(code.CreatedAt) > s.opts.CodeValidity {
		return nil, oauth.NewError(oauth.ErrExpiredAuthCode, "the authorization code is expired")
	}

	idClaims := map[string]any{"sub": code.Subject}
	if code.Nonce != "" {
		idClaims["nonce"] = code.Nonce
	}
	return &grantResult{
		subject:      code.Subject,
		scopes:       code.Scopes,
		idClaims:     idClaims,
		issueRefresh: client.SupportsGrantType(oauth.GrantTypeRefreshToken),
	}, nil
}
