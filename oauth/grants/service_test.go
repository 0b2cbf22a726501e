package grants

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soteria-id/soteria/events"
	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/authn"
	"github.com/soteria-id/soteria/oauth/rowner"
	"github.com/soteria-id/soteria/oauth/sign"
)

const testIssuer = "https://auth.example.com"

type testEnv struct {
	svc    *Service
	store  *oauth.MemoryStore
	pub    *events.ChannelPublisher
	owners *rowner.MockAuthenticator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
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
	pub := events.NewChannelPublisher(8)
	owners := &rowner.MockAuthenticator{}
	svc := NewService(
		store, store, store, store,
		authn.New(store, nil, testIssuer),
		owners,
		sign.NewSigner(repo, nil),
		pub,
		opts,
	)
	return &testEnv{svc: svc, store: store, pub: pub, owners: owners}
}

func (e *testEnv) registerClient(t *testing.T, c *oauth.Client) {
	t.Helper()
	if err := e.store.RegisterClient(context.Background(), c); err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
}

func webAppClient() *oauth.Client {
	return &oauth.Client{
		ClientID: "web-app",
		Secrets:  []oauth.Secret{{Kind: oauth.SecretKindShared, Value: "s3cret"}},
		RedirectURIs: []string{
			"https://app.example.com/cb",
		},
		AllowedScopes: []string{"openid", "read", "write"},
		GrantTypes: []string{
			"authorization_code", "client_credentials", "password", "refresh_token",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		ResponseTypes: []string{"code", "token", "id_token"},
	}
}

func webAppMaterial() authn.Material {
	return authn.Material{
		AuthorizationHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("web-app:s3cret")),
	}
}

func wantErrorCode(t *testing.T, err error, code oauth.ErrorCode) {
	t.Helper()
	oe, ok := oauth.AsError(err)
	if !ok {
		t.Fatalf("error = %v, want *oauth.Error", err)
	}
	if oe.Code != code {
		t.Fatalf("error code = %q (%s), want %q", oe.Code, oe.Description, code)
	}
}

func TestGetToken_ClientCredentials(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())

	tok, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType: "client_credentials",
		Scope:     "read write",
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.AccessToken == "" {
		t.Error("access token missing")
	}
	if tok.Scope != "read write" {
		t.Errorf("Scope = %q", tok.Scope)
	}
	if tok.RefreshToken != "" {
		t.Errorf("client_credentials should not mint a refresh token")
	}

	select {
	case e := <-env.pub.Events():
		if e.TokenID != tok.ID || e.GrantType != "client_credentials" {
			t.Errorf("published event = %+v", e)
		}
	default:
		t.Error("no TokenGranted event published")
	}
}

func TestGetToken_ClientCredentialsReusesActiveToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	first, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "read"}, webAppMaterial())
	if err != nil {
		t.Fatalf("first GetToken: %v", err)
	}
	second, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "read"}, webAppMaterial())
	if err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the active token to be reused, got %q then %q", first.ID, second.ID)
	}

	// a different scope must mint a fresh token
	third, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "write"}, webAppMaterial())
	if err != nil {
		t.Fatalf("third GetToken: %v", err)
	}
	if third.ID == first.ID {
		t.Errorf("different scope should not reuse the token")
	}
}

func TestGetToken_GrantTypeNotAllowed(t *testing.T) {
	env := newTestEnv(t, Options{})
	c := webAppClient()
	c.GrantTypes = []string{"authorization_code"}
	env.registerClient(t, c)

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{GrantType: "client_credentials"}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestGetToken_ResponseTypeNotEnabled(t *testing.T) {
	env := newTestEnv(t, Options{})
	c := webAppClient()
	c.ResponseTypes = []string{"code"} // no "token"
	env.registerClient(t, c)

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{GrantType: "client_credentials"}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidResponse)
}

func TestGetToken_InvalidScope(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType: "client_credentials",
		Scope:     "admin",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidScope)
}

func saveCode(t *testing.T, env *testEnv, code *oauth.AuthorizationCode) {
	t.Helper()
	if err := env.store.SaveCode(context.Background(), code); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
}

func TestGetToken_AuthorizationCode(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	verifier, err := oauth.GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	saveCode(t, env, &oauth.AuthorizationCode{
		Code:                "code-1",
		ClientID:            "web-app",
		RedirectURI:         "https://app.example.com/cb",
		Scopes:              []string{"openid", "read"},
		Subject:             "alice",
		Nonce:               "n-0S6_WzA2Mj",
		CodeChallenge:       oauth.GenerateCodeChallenge(verifier),
		CodeChallengeMethod: oauth.CodeChallengeMethodS256,
		CreatedAt:           time.Now(),
	})

	tok, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "authorization_code",
		Code:         "code-1",
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Subject != "alice" {
		t.Errorf("Subject = %q", tok.Subject)
	}
	if tok.RefreshToken == "" {
		t.Error("refresh token missing: the client supports refresh_token")
	}
	if tok.IDToken == "" {
		t.Error("id token missing: openid scope requested and id_token enabled")
	}
	if tok.IDTokenClaims["nonce"] != "n-0S6_WzA2Mj" {
		t.Errorf("nonce claim = %v", tok.IDTokenClaims["nonce"])
	}

	// the code was consumed: redeeming it again is invalid_grant
	_, err = env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "authorization_code",
		Code:         "code-1",
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestGetToken_AuthorizationCodePKCEMismatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())

	verifier, _ := oauth.GenerateCodeVerifier()
	saveCode(t, env, &oauth.AuthorizationCode{
		Code:                "code-pkce",
		ClientID:            "web-app",
		RedirectURI:         "https://app.example.com/cb",
		Scopes:              []string{"read"},
		Subject:             "alice",
		CodeChallenge:       oauth.GenerateCodeChallenge(verifier),
		CodeChallengeMethod: oauth.CodeChallengeMethodS256,
		CreatedAt:           time.Now(),
	})

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType:    "authorization_code",
		Code:         "code-pkce",
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: "completely-wrong-verifier-padded-to-minimum-len",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidRequest)
}

func TestGetToken_AuthorizationCodeExpired(t *testing.T) {
	env := newTestEnv(t, Options{CodeValidity: 10 * time.Minute})
	env.registerClient(t, webAppClient())

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-old",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now().Add(-time.Hour),
	})

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType:   "authorization_code",
		Code:        "code-old",
		RedirectURI: "https://app.example.com/cb",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrExpiredAuthCode)
}

func TestGetToken_AuthorizationCodeRedirectMismatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-redir",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now(),
	})

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType:   "authorization_code",
		Code:        "code-redir",
		RedirectURI: "https://evil.example.com/cb",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestGetToken_ConcurrentCodeRedemption(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-race",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now(),
	})

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.GetToken(ctx, testIssuer, Request{
				GrantType:   "authorization_code",
				Code:        "code-race",
				RedirectURI: "https://app.example.com/cb",
			}, webAppMaterial())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		oe, ok := oauth.AsError(err)
		if !ok || oe.Code != oauth.ErrInvalidGrant {
			t.Errorf("loser got %v, want invalid_grant", err)
		}
	}
	if wins != 1 {
		t.Errorf("redemption succeeded %d times, want exactly 1", wins)
	}
}

func TestGetToken_Password(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	env.owners.AuthenticateFunc = func(ctx context.Context, username, credential string) (*rowner.ResourceOwner, error) {
		if username == "alice" && credential == "hunter2" {
			return &rowner.ResourceOwner{Subject: "sub-alice", Username: "alice", Claims: map[string]any{"name": "Alice"}}, nil
		}
		return nil, rowner.ErrNoMatch
	}

	tok, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType: "password",
		Username:  "alice",
		Password:  "hunter2",
		Scope:     "openid read",
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Subject != "sub-alice" {
		t.Errorf("Subject = %q", tok.Subject)
	}
	if tok.UserClaims["name"] != "Alice" {
		t.Errorf("UserClaims = %v", tok.UserClaims)
	}
	if tok.RefreshToken == "" {
		t.Error("refresh token missing")
	}

	_, err = env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType: "password",
		Username:  "alice",
		Password:  "wrong",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidCredentials)
}

func TestGetToken_RefreshToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-r",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now(),
	})
	parent, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:   "authorization_code",
		Code:        "code-r",
		RedirectURI: "https://app.example.com/cb",
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("authorization_code exchange: %v", err)
	}

	child, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "refresh_token",
		RefreshToken: parent.RefreshToken,
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("refresh exchange: %v", err)
	}
	if child.ParentTokenID != parent.ID {
		t.Errorf("ParentTokenID = %q, want %q", child.ParentTokenID, parent.ID)
	}
	if child.Subject != "alice" || child.Scope != "read" {
		t.Errorf("subject/scope = %q/%q", child.Subject, child.Scope)
	}
	if child.RefreshToken != "" {
		t.Errorf("refresh exchange should not mint another refresh token")
	}

	_, err = env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "refresh_token",
		RefreshToken: "no-such-token",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestGetToken_RefreshTokenCrossClient(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	other := webAppClient()
	other.ClientID = "other-app"
	other.Secrets = []oauth.Secret{{Kind: oauth.SecretKindShared, Value: "other-secret"}}
	env.registerClient(t, other)
	ctx := context.Background()

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-x",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now(),
	})
	parent, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:   "authorization_code",
		Code:        "code-x",
		RedirectURI: "https://app.example.com/cb",
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("authorization_code exchange: %v", err)
	}

	otherMaterial := authn.Material{
		AuthorizationHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("other-app:other-secret")),
	}
	_, err = env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "refresh_token",
		RefreshToken: parent.RefreshToken,
	}, otherMaterial)
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	tok, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "read"}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}

	if err := env.svc.Revoke(ctx, tok.AccessToken, webAppMaterial()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	info, err := env.svc.Introspect(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if info.Active {
		t.Error("token should be inactive after revocation")
	}

	// the value no longer matches anything
	err = env.svc.Revoke(ctx, tok.AccessToken, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidToken)
}

func TestRevoke_RefreshTokenCascades(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	saveCode(t, env, &oauth.AuthorizationCode{
		Code:        "code-c",
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
		Subject:     "alice",
		CreatedAt:   time.Now(),
	})
	parent, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:   "authorization_code",
		Code:        "code-c",
		RedirectURI: "https://app.example.com/cb",
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("authorization_code exchange: %v", err)
	}
	child, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:    "refresh_token",
		RefreshToken: parent.RefreshToken,
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("refresh exchange: %v", err)
	}

	if err := env.svc.Revoke(ctx, parent.RefreshToken, webAppMaterial()); err != nil {
		t.Fatalf("Revoke refresh: %v", err)
	}

	// the cascade removed the derived access token too
	if _, err := env.store.GetByAccessToken(ctx, child.AccessToken); !errors.Is(err, oauth.ErrNotFound) {
		t.Errorf("derived token survived the cascade: %v", err)
	}
	if _, err := env.store.GetByAccessToken(ctx, parent.AccessToken); !errors.Is(err, oauth.ErrNotFound) {
		t.Errorf("refresh record survived revocation: %v", err)
	}
}

func TestRevoke_OtherClientsToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	other := webAppClient()
	other.ClientID = "other-app"
	other.Secrets = []oauth.Secret{{Kind: oauth.SecretKindShared, Value: "other-secret"}}
	env.registerClient(t, other)
	ctx := context.Background()

	tok, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "read"}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}

	otherMaterial := authn.Material{
		AuthorizationHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("other-app:other-secret")),
	}
	err = env.svc.Revoke(ctx, tok.AccessToken, otherMaterial)
	wantErrorCode(t, err, oauth.ErrInvalidToken)

	// the token is still alive
	info, err := env.svc.Introspect(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !info.Active {
		t.Error("token should still be active")
	}
}

func TestIntrospect(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	tok, err := env.svc.GetToken(ctx, testIssuer, Request{GrantType: "client_credentials", Scope: "read"}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}

	info, err := env.svc.Introspect(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !info.Active || info.ClientID != "web-app" || info.Scope != "read" {
		t.Errorf("introspection = %+v", info)
	}

	info, err = env.svc.Introspect(ctx, "unknown-value")
	if err != nil {
		t.Fatalf("Introspect unknown: %v", err)
	}
	if info.Active {
		t.Error("unknown token should be inactive, not an error")
	}
}

func TestGetToken_DeviceFlow(t *testing.T) {
	env := newTestEnv(t, Options{DeviceMaxPolls: 3})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	device, err := env.svc.RequestDeviceAuthorization(ctx, "web-app", []string{"read"})
	if err != nil {
		t.Fatalf("RequestDeviceAuthorization: %v", err)
	}
	if len(device.UserCode) != 9 || device.UserCode[4] != '-' {
		t.Errorf("UserCode = %q, want XXXX-XXXX", device.UserCode)
	}

	// approval arrives while the handler is waiting between polls
	env.svc.sleep = func(ctx context.Context, d time.Duration) error {
		return env.svc.ApproveDeviceAuthorization(ctx, device.UserCode, "alice")
	}

	tok, err := env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:  string(oauth.GrantTypeDeviceCode),
		DeviceCode: device.DeviceCode,
	}, webAppMaterial())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Subject != "alice" {
		t.Errorf("Subject = %q", tok.Subject)
	}

	// the device authorization is single-use
	if _, err := env.store.GetDevice(ctx, "web-app", device.DeviceCode); !errors.Is(err, oauth.ErrNotFound) {
		t.Errorf("device entry survived the exchange: %v", err)
	}
}

func TestGetToken_DevicePending(t *testing.T) {
	env := newTestEnv(t, Options{DeviceMaxPolls: 2})
	env.registerClient(t, webAppClient())
	ctx := context.Background()

	device, err := env.svc.RequestDeviceAuthorization(ctx, "web-app", []string{"read"})
	if err != nil {
		t.Fatalf("RequestDeviceAuthorization: %v", err)
	}

	env.svc.sleep = func(context.Context, time.Duration) error { return nil }

	_, err = env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:  string(oauth.GrantTypeDeviceCode),
		DeviceCode: device.DeviceCode,
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrAuthorizationPending)
}

func TestGetToken_DeviceUnknownCode(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.registerClient(t, webAppClient())

	_, err := env.svc.GetToken(context.Background(), testIssuer, Request{
		GrantType:  string(oauth.GrantTypeDeviceCode),
		DeviceCode: "no-such-device",
	}, webAppMaterial())
	wantErrorCode(t, err, oauth.ErrInvalidGrant)
}

func TestGetToken_DevicePollAbortsOnCancel(t *testing.T) {
	env := newTestEnv(t, Options{DeviceMaxPolls: 5})
	env.registerClient(t, webAppClient())

	device, err := env.svc.RequestDeviceAuthorization(context.Background(), "web-app", []string{"read"})
	if err != nil {
		t.Fatalf("RequestDeviceAuthorization: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env.svc.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err = env.svc.GetToken(ctx, testIssuer, Request{
		GrantType:  string(oauth.GrantTypeDeviceCode),
		DeviceCode: device.DeviceCode,
	}, webAppMaterial())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestApproveDeviceAuthorization_UnknownUserCode(t *testing.T) {
	env := newTestEnv(t, Options{})
	err := env.svc.ApproveDeviceAuthorization(context.Background(), "XXXX-XXXX", "alice")
	wantErrorCode(t, err, oauth.ErrInvalidRequest)
}
