// Package grants implements the token issuance orchestrator and the
// per-grant validation pipelines behind the token endpoint.
package grants

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soteria-id/soteria/events"
	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/authn"
	"github.com/soteria-id/soteria/oauth/rowner"
	"github.com/soteria-id/soteria/oauth/sign"
)

// Request carries the form parameters of one token-endpoint call.
type Request struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	Scope        string
	Username     string
	Password     string
	RefreshToken string
	DeviceCode   string
}

// Options bound the validity windows and polling behavior.
type Options struct {
	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL time.Duration
	// IDTokenTTL is the lifetime of issued identity tokens.
	IDTokenTTL time.Duration
	// CodeValidity is the authorization-code validity window.
	CodeValidity time.Duration
	// DeviceMaxPolls bounds the in-handler device polling retries.
	DeviceMaxPolls int
	// DeviceCodeTTL is the device/user code lifetime.
	DeviceCodeTTL time.Duration
	// DeviceInterval is the advertised polling interval in seconds.
	DeviceInterval int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.AccessTokenTTL <= 0 {
		out.AccessTokenTTL = time.Hour
	}
	if out.IDTokenTTL <= 0 {
		out.IDTokenTTL = out.AccessTokenTTL
	}
	if out.CodeValidity <= 0 {
		out.CodeValidity = 10 * time.Minute
	}
	if out.DeviceMaxPolls <= 0 {
		out.DeviceMaxPolls = 3
	}
	if out.DeviceCodeTTL <= 0 {
		out.DeviceCodeTTL = 10 * time.Minute
	}
	if out.DeviceInterval <= 0 {
		out.DeviceInterval = 5
	}
	return out
}

// Service is the single entry point for token issuance and revocation.
type Service struct {
	clients oauth.ClientStore
	tokens  oauth.TokenStore
	codes   oauth.AuthorizationCodeStore
	devices oauth.DeviceStore
	authn   *authn.Authenticator
	owners  rowner.Authenticator
	signer  *sign.Signer
	pub     events.Publisher
	opts    Options

	// sleep is swapped in tests to avoid real device-poll waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(
	clients oauth.ClientStore,
	tokens oauth.TokenStore,
	codes oauth.AuthorizationCodeStore,
	devices oauth.DeviceStore,
	clientAuth *authn.Authenticator,
	owners rowner.Authenticator,
	signer *sign.Signer,
	pub events.Publisher,
	opts Options,
) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		clients: clients,
		tokens:  tokens,
		codes:   codes,
		devices: devices,
		authn:   clientAuth,
		owners:  owners,
		signer:  signer,
		pub:     pub,
		opts:    opts.withDefaults(),
		sleep:   sleepCtx,
	}
}

// grantResult is what a grant handler hands back to the shared issuance path.
type grantResult struct {
	subject    string
	scopes     []string
	idClaims   map[string]any
	userClaims map[string]any
	// parentTokenID links the new access token to the refresh token record
	// that spawned it.
	parentTokenID string
	// issueRefresh mints a refresh token alongside the access token.
	issueRefresh bool
	// allowReuse lets the shared path return an existing valid token with
	// matching scope and claims instead of minting.
	allowReuse bool
}

// GetToken authenticates the caller, runs the shared grant pre-checks,
// dispatches to the grant handler, persists the result and publishes a
// TokenGranted event.
func (s *Service) GetToken(ctx context.Context, issuer string, req Request, m authn.Material) (*oauth.GrantedToken, error) {
	client, err := s.authn.Authenticate(ctx, m)
	if err != nil {
		return nil, err
	}
	grantType := oauth.GrantType(req.GrantType)
	if !client.SupportsGrantType(grantType) {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "grant type %q is not supported by client %q", req.GrantType, client.ClientID)
	}
	if !client.SupportsResponseType(grantType.ImpliedResponseType()) {
		return nil, oauth.NewError(oauth.ErrInvalidResponse, "response type %q is not enabled for client %q", grantType.ImpliedResponseType(), client.ClientID)
	}

	var res *grantResult
	switch grantType {
	case oauth.GrantTypeAuthorizationCode:
		res, err = s.authorizationCode(ctx, client, req)
	case oauth.GrantTypeClientCredentials:
		res, err = s.clientCredentials(ctx, client, req)
	case oauth.GrantTypePassword:
		res, err = s.password(ctx, client, req)
	case oauth.GrantTypeRefreshToken:
		res, err = s.refreshToken(ctx, client, req)
	case oauth.GrantTypeDeviceCode:
		res, err = s.deviceCode(ctx, client, req)
	default:
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "unsupported grant_type %q", req.GrantType)
	}
	if err != nil {
		return nil, err
	}
	return s.mint(ctx, issuer, client, grantType, res)
}

func (s *Service) mint(ctx context.Context, issuer string, client *oauth.Client, grantType oauth.GrantType, res *grantResult) (*oauth.GrantedToken, error) {
	scope := oauth.JoinScope(res.scopes)
	if res.allowReuse {
		existing, err := s.tokens.FindActive(ctx, client.ClientID, scope, res.idClaims, res.userClaims)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, oauth.ErrNotFound) {
			return nil, err
		}
	}

	accessToken, err := s.signer.SignAccessToken(ctx, issuer, client.ClientID, res.subject, scope, s.opts.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	token := &oauth.GrantedToken{
		ID:            uuid.NewString(),
		ClientID:      client.ClientID,
		Subject:       res.subject,
		AccessToken:   accessToken,
		Scope:         scope,
		GrantType:     string(grantType),
		ParentTokenID: res.parentTokenID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.opts.AccessTokenTTL),
		IDTokenClaims: res.idClaims,
		UserClaims:    res.userClaims,
	}
	if res.issueRefresh {
		token.RefreshToken = sign.NewOpaqueToken()
	}
	if wantsIDToken(res.scopes, client) {
		idToken, err := s.signer.SignIDToken(ctx, issuer, client, res.idClaims, s.opts.IDTokenTTL)
		if err != nil {
			return nil, err
		}
		token.IDToken = idToken
	}
	if err := s.tokens.SaveToken(ctx, token); err != nil {
		return nil, err
	}
	s.pub.TokenGranted(ctx, events.TokenGranted{
		TokenID:   token.ID,
		ClientID:  token.ClientID,
		Subject:   token.Subject,
		Scope:     token.Scope,
		GrantType: token.GrantType,
		IssuedAt:  token.CreatedAt,
	})
	slog.Info("token granted", "client_id", token.ClientID, "grant_type", token.GrantType, "scope", token.Scope)
	return token, nil
}

func wantsIDToken(scopes []string, client *oauth.Client) bool {
	if !client.SupportsResponseType(oauth.ResponseTypeIDToken) {
		return false
	}
	for _, s := range scopes {
		if s == "openid" {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
