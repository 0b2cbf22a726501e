package authorize

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/url"
	"strings"
	"testing"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/sign"
)

const testIssuer = "https://auth.example.com"

func newTestProcessor(t *testing.T, clients ...*oauth.Client) (*Processor, *oauth.MemoryStore) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	repo, err := sign.NewStaticKeyRepository(key, "")
	if err != nil {
		t.Fatalf("NewStaticKeyRepository: %v", err)
	}
	store := oauth.NewMemoryStore()
	for _, c := range clients {
		if err := store.RegisterClient(context.Background(), c); err != nil {
			t.Fatalf("RegisterClient: %v", err)
		}
	}
	return NewProcessor(store, store, store, sign.NewSigner(repo, nil), Options{}), store
}

func spaClient() *oauth.Client {
	return &oauth.Client{
		ClientID:      "spa",
		RedirectURIs:  []string{"https://app.example.com/cb"},
		AllowedScopes: []string{"openid", "read", "write"},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code", "token", "id_token"},
	}
}

func alice() Principal {
	return Principal{Subject: "alice", Authenticated: true, ConsentedScopes: []string{"openid", "read"}}
}

func wantErrorCode(t *testing.T, err error, code oauth.ErrorCode, state string) {
	t.Helper()
	oe, ok := oauth.AsError(err)
	if !ok {
		t.Fatalf("error = %v, want *oauth.Error", err)
	}
	if oe.Code != code {
		t.Fatalf("error code = %q (%s), want %q", oe.Code, oe.Description, code)
	}
	if oe.State != state {
		t.Errorf("error state = %q, want %q", oe.State, state)
	}
}

func TestAuthorize_CodeFlow(t *testing.T) {
	p, store := newTestProcessor(t, spaClient())

	redirect, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid read",
		State:        "xyz",
		Nonce:        "n-1",
	}, alice())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if redirect.Code == "" {
		t.Fatal("no code minted")
	}
	if redirect.UseFragment {
		t.Error("code-only response must use query delivery")
	}

	loc, err := url.Parse(redirect.Location())
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := loc.Query()
	if q.Get("code") != redirect.Code || q.Get("state") != "xyz" {
		t.Errorf("location query = %v", q)
	}

	// the minted code is stored with the session's subject and the nonce
	code, err := store.ConsumeCode(context.Background(), redirect.Code)
	if err != nil {
		t.Fatalf("ConsumeCode: %v", err)
	}
	if code.Subject != "alice" || code.Nonce != "n-1" {
		t.Errorf("stored code = %+v", code)
	}
}

func TestAuthorize_ImplicitToken(t *testing.T) {
	p, store := newTestProcessor(t, spaClient())

	redirect, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "token",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "read",
		State:        "s1",
	}, alice())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if redirect.AccessToken == "" || !redirect.UseFragment {
		t.Fatalf("redirect = %+v, want fragment-delivered access token", redirect)
	}

	loc := redirect.Location()
	frag := loc[strings.Index(loc, "#")+1:]
	v, err := url.ParseQuery(frag)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	if v.Get("access_token") == "" || v.Get("token_type") != "Bearer" || v.Get("expires_in") == "" {
		t.Errorf("fragment = %v", v)
	}

	// implicit tokens are persisted and revocable
	if _, err := store.GetByAccessToken(context.Background(), redirect.AccessToken); err != nil {
		t.Errorf("implicit token not persisted: %v", err)
	}
}

func TestAuthorize_HybridRequiresNonce(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())

	_, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code id_token",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid read",
		State:        "s2",
	}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidRequest, "s2")
}

func TestAuthorize_HybridFlow(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())

	redirect, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code id_token",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid read",
		Nonce:        "n-2",
	}, alice())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if redirect.Code == "" || redirect.IDToken == "" {
		t.Errorf("hybrid redirect = %+v, want code and id_token", redirect)
	}
	if !redirect.UseFragment {
		t.Error("hybrid response must use fragment delivery")
	}
}

func TestAuthorize_IDTokenRequiresOpenIDScope(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())

	_, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "id_token",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "read",
		Nonce:        "n-3",
		State:        "s3",
	}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidScope, "s3")
}

func TestAuthorize_UnknownClient(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code",
		ClientID:     "nope",
		RedirectURI:  "https://app.example.com/cb",
		State:        "s4",
	}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidClient, "s4")
}

func TestAuthorize_RedirectURIValidation(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())
	base := Request{
		ResponseType: "code",
		ClientID:     "spa",
		Scope:        "read",
		State:        "s5",
	}

	for name, uri := range map[string]string{
		"unregistered": "https://evil.example.com/cb",
		"fragment":     "https://app.example.com/cb#frag",
		"missing":      "",
	} {
		t.Run(name, func(t *testing.T) {
			req := base
			req.RedirectURI = uri
			_, err := p.Authorize(context.Background(), testIssuer, req, alice())
			wantErrorCode(t, err, oauth.ErrInvalidRedirectURI, "s5")
		})
	}
}

func TestAuthorize_PKCE(t *testing.T) {
	p, store := newTestProcessor(t, spaClient())

	verifier, err := oauth.GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	redirect, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType:        "code",
		ClientID:            "spa",
		RedirectURI:         "https://app.example.com/cb",
		Scope:               "read",
		CodeChallenge:       oauth.GenerateCodeChallenge(verifier),
		CodeChallengeMethod: oauth.CodeChallengeMethodS256,
	}, alice())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	code, err := store.ConsumeCode(context.Background(), redirect.Code)
	if err != nil {
		t.Fatalf("ConsumeCode: %v", err)
	}
	if code.CodeChallenge == "" || code.CodeChallengeMethod != oauth.CodeChallengeMethodS256 {
		t.Errorf("stored PKCE = %q/%q", code.CodeChallenge, code.CodeChallengeMethod)
	}

	// unknown method is rejected up front
	_, err = p.Authorize(context.Background(), testIssuer, Request{
		ResponseType:        "code",
		ClientID:            "spa",
		RedirectURI:         "https://app.example.com/cb",
		Scope:               "read",
		CodeChallenge:       "x",
		CodeChallengeMethod: "S999",
		State:               "s6",
	}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidRequest, "s6")
}

func TestAuthorize_RequirePKCE(t *testing.T) {
	c := spaClient()
	c.RequirePKCE = true
	p, _ := newTestProcessor(t, c)

	_, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "read",
		State:        "s7",
	}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidRequest, "s7")
}

func TestAuthorize_PromptNone(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())
	base := Request{
		ResponseType: "code",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid read",
		Prompt:       "none",
		State:        "s8",
	}

	// no session at all
	_, err := p.Authorize(context.Background(), testIssuer, base, Principal{})
	wantErrorCode(t, err, oauth.ErrLoginRequired, "s8")

	// session exists but consent does not cover the request
	_, err = p.Authorize(context.Background(), testIssuer, base, Principal{
		Subject:         "alice",
		Authenticated:   true,
		ConsentedScopes: []string{"openid"},
	})
	wantErrorCode(t, err, oauth.ErrInteractionRequired, "s8")

	// consent covers the request
	if _, err := p.Authorize(context.Background(), testIssuer, base, alice()); err != nil {
		t.Fatalf("Authorize with covering consent: %v", err)
	}
}

func TestAuthorize_UnauthenticatedWithoutPromptNone(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())

	_, err := p.Authorize(context.Background(), testIssuer, Request{
		ResponseType: "code",
		ClientID:     "spa",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "read",
		State:        "s9",
	}, Principal{})
	wantErrorCode(t, err, oauth.ErrLoginRequired, "s9")
}

func TestAuthorize_MissingResponseType(t *testing.T) {
	p, _ := newTestProcessor(t, spaClient())
	_, err := p.Authorize(context.Background(), testIssuer, Request{ClientID: "spa", State: "s10"}, alice())
	wantErrorCode(t, err, oauth.ErrInvalidRequest, "s10")
}
