// Package authorize validates authorization-endpoint requests and produces
// the redirect instruction carrying a code, implicit tokens, or a hybrid
// combination. Every terminal failure carries the caller's state value.
package authorize

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/sign"
)

// Request is one authorization-endpoint call.
type Request struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
	IDTokenHint         string
}

// Principal is the current end-user session as established by the host's
// login and consent screens.
type Principal struct {
	Subject       string
	Authenticated bool
	// ConsentedScopes is the consent record for this client, nil when the
	// user was never asked.
	ConsentedScopes []string
	Claims          map[string]any
}

// Redirect is the terminal instruction: where to send the user agent and
// which artifacts ride along. Fragment delivery is used whenever a token is
// present.
type Redirect struct {
	RedirectURI string
	Code        string
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int64
	State       string
	UseFragment bool
}

// Location renders the full redirect URL.
func (r *Redirect) Location() string {
	u, err := url.Parse(r.RedirectURI)
	if err != nil {
		return r.RedirectURI
	}
	v := url.Values{}
	if r.Code != "" {
		v.Set("code", r.Code)
	}
	if r.AccessToken != "" {
		v.Set("access_token", r.AccessToken)
		v.Set("token_type", r.TokenType)
		v.Set("expires_in", strconv.FormatInt(r.ExpiresIn, 10))
	}
	if r.IDToken != "" {
		v.Set("id_token", r.IDToken)
	}
	if r.State != "" {
		v.Set("state", r.State)
	}
	if r.UseFragment {
		// Appending the encoded pairs directly keeps percent escapes
		// intact; going through u.Fragment would re-escape them.
		return u.String() + "#" + v.Encode()
	}
	q := u.Query()
	for k, vals := range v {
		q.Set(k, vals[0])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Options bound token and code lifetimes for the implicit and hybrid
// terminals.
type Options struct {
	AccessTokenTTL time.Duration
	IDTokenTTL     time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.AccessTokenTTL <= 0 {
		out.AccessTokenTTL = time.Hour
	}
	if out.IDTokenTTL <= 0 {
		out.IDTokenTTL = out.AccessTokenTTL
	}
	return out
}

// Processor runs the authorization request state machine.
type Processor struct {
	clients oauth.ClientStore
	codes   oauth.AuthorizationCodeStore
	tokens  oauth.TokenStore
	signer  *sign.Signer
	opts    Options
}

func NewProcessor(clients oauth.ClientStore, codes oauth.AuthorizationCodeStore, tokens oauth.TokenStore, signer *sign.Signer, opts Options) *Processor {
	return &Processor{clients: clients, codes: codes, tokens: tokens, signer: signer, opts: opts.withDefaults()}
}

// Authorize walks the request through client, scope, redirect and prompt
// validation, then mints the artifacts the response type asks for.
func (p *Processor) Authorize(ctx context.Context, issuer string, req Request, principal Principal) (*Redirect, error) {
	responseTypes := strings.Fields(req.ResponseType)
	if len(responseTypes) == 0 {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing response_type parameter").WithState(req.State)
	}
	client, err := p.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidClient, "unknown client %q", req.ClientID).WithState(req.State)
		}
		return nil, err
	}
	for _, rt := range responseTypes {
		if !client.SupportsResponseType(oauth.ResponseType(rt)) {
			return nil, oauth.NewError(oauth.ErrInvalidResponse, "response type %q is not enabled for client %q", rt, client.ClientID).WithState(req.State)
		}
	}

	scopes := oauth.ParseScope(req.Scope)
	if !client.ScopesAllowed(scopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the scopes allowed for client %q", client.ClientID).WithState(req.State)
	}
	if contains(responseTypes, string(oauth.ResponseTypeIDToken)) && !contains(scopes, "openid") {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "the openid scope is required when requesting an id_token").WithState(req.State)
	}

	if err := validateRedirectURI(client, req.RedirectURI); err != nil {
		return nil, err.WithState(req.State)
	}

	if req.CodeChallenge != "" {
		switch req.CodeChallengeMethod {
		case "", oauth.CodeChallengeMethodS256, oauth.CodeChallengeMethodPlain:
		default:
			return nil, oauth.NewError(oauth.ErrInvalidRequest, "unsupported code_challenge_method %q", req.CodeChallengeMethod).WithState(req.State)
		}
	} else if client.RequirePKCE {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "client %q requires a code_challenge", client.ClientID).WithState(req.State)
	}

	if err := p.evaluatePrompt(req, principal, scopes); err != nil {
		return nil, err.WithState(req.State)
	}

	hybrid := len(responseTypes) > 1
	wantToken := contains(responseTypes, string(oauth.ResponseTypeToken))
	wantIDToken := contains(responseTypes, string(oauth.ResponseTypeIDToken))
	if (hybrid || wantIDToken) && req.Nonce == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "the nonce parameter is required for this response type").WithState(req.State)
	}

	redirect := &Redirect{
		RedirectURI: req.RedirectURI,
		State:       req.State,
		UseFragment: wantToken || wantIDToken,
	}

	if contains(responseTypes, string(oauth.ResponseTypeCode)) {
		code, err := p.mintCode(ctx, client, req, principal, scopes)
		if err != nil {
			return nil, err
		}
		redirect.Code = code
	}
	if wantToken {
		accessToken, expiresIn, err := p.mintImplicitToken(ctx, issuer, client, principal, scopes)
		if err != nil {
			return nil, err
		}
		redirect.AccessToken = accessToken
		redirect.TokenType = "Bearer"
		redirect.ExpiresIn = expiresIn
	}
	if wantIDToken {
		idToken, err := p.mintIDToken(ctx, issuer, client, req, principal)
		if err != nil {
			return nil, err
		}
		redirect.IDToken = idToken
	}
	slog.Info("authorization request granted", "client_id", client.ClientID, "response_type", req.ResponseType)
	return redirect, nil
}

// evaluatePrompt enforces prompt=none: a session must already exist and, when
// the client requires consent, a consent record must cover the request.
func (p *Processor) evaluatePrompt(req Request, principal Principal, scopes []string) *oauth.Error {
	if req.Prompt == "none" {
		if !principal.Authenticated {
			return oauth.NewError(oauth.ErrLoginRequired, "no end-user session and prompt=none was requested")
		}
		if !consentCovers(principal.ConsentedScopes, scopes) {
			return oauth.NewError(oauth.ErrInteractionRequired, "consent is required and prompt=none was requested")
		}
		return nil
	}
	if !principal.Authenticated {
		return oauth.NewError(oauth.ErrLoginRequired, "end-user authentication is required")
	}
	return nil
}

func (p *Processor) mintCode(ctx context.Context, client *oauth.Client, req Request, principal Principal, scopes []string) (string, error) {
	code := &oauth.AuthorizationCode{
		Code:                uuid.NewString(),
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		Subject:             principal.Subject,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           time.Now().UTC(),
	}
	if err := p.codes.SaveCode(ctx, code); err != nil {
		return "", err
	}
	return code.Code, nil
}

func (p *Processor) mintImplicitToken(ctx context.Context, issuer string, client *oauth.Client, principal Principal, scopes []string) (string, int64, error) {
	scope := oauth.JoinScope(scopes)
	accessToken, err := p.signer.SignAccessToken(ctx, issuer, client.ClientID, principal.Subject, scope, p.opts.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	now := time.Now().UTC()
	token := &oauth.GrantedToken{
		ID:          uuid.NewString(),
		ClientID:    client.ClientID,
		Subject:     principal.Subject,
		AccessToken: accessToken,
		Scope:       scope,
		GrantType:   "implicit",
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.opts.AccessTokenTTL),
	}
	if err := p.tokens.SaveToken(ctx, token); err != nil {
		return "", 0, err
	}
	return accessToken, int64(p.opts.AccessTokenTTL.Seconds()), nil
}

func (p *Processor) mintIDToken(ctx context.Context, issuer string, client *oauth.Client, req Request, principal Principal) (string, error) {
	claims := map[string]any{"sub": principal.Subject}
	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}
	for k, v := range principal.Claims {
		claims[k] = v
	}
	return p.signer.SignIDToken(ctx, issuer, client, claims, p.opts.IDTokenTTL)
}

func validateRedirectURI(client *oauth.Client, redirectURI string) *oauth.Error {
	if redirectURI == "" {
		return oauth.NewError(oauth.ErrInvalidRedirectURI, "missing redirect_uri parameter")
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return oauth.NewError(oauth.ErrInvalidRedirectURI, "malformed redirect_uri")
	}
	if u.Fragment != "" {
		return oauth.NewError(oauth.ErrInvalidRedirectURI, "the redirect_uri must not contain a fragment")
	}
	if !client.HasRedirectURI(redirectURI) {
		return oauth.NewError(oauth.ErrInvalidRedirectURI, "the redirect_uri is not registered for client %q", client.ClientID)
	}
	return nil
}

func consentCovers(consented, requested []string) bool {
	if consented == nil {
		return false
	}
	for _, r := range requested {
		if !contains(consented, r) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
