// Package authn resolves and verifies the caller identity of token-endpoint
// requests. Four credential schemes are supported, tried in a fixed priority
// order: Basic header, posted secret, signed JWT assertion, mutual-TLS
// certificate thumbprint. A request uses exactly one scheme.
package authn

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/sign"
)

// ClientAssertionTypeJWTBearer is the only client_assertion_type accepted.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Material is the raw credential material extracted from a request.
type Material struct {
	// AuthorizationHeader is the raw Authorization header value, if any.
	AuthorizationHeader string
	// Form fields.
	ClientID            string
	ClientSecret        string
	ClientAssertion     string
	ClientAssertionType string
	// Certificate is the client TLS certificate, when terminated upstream
	// and forwarded.
	Certificate *x509.Certificate
}

// Authenticator verifies client credentials against the client store.
type Authenticator struct {
	clients oauth.ClientStore
	remote  *sign.RemoteJWKS
	issuer  string
}

func New(clients oauth.ClientStore, remote *sign.RemoteJWKS, issuer string) *Authenticator {
	return &Authenticator{clients: clients, remote: remote, issuer: issuer}
}

type scheme int

const (
	schemeNone scheme = iota
	schemeBasic
	schemePost
	schemeAssertion
	schemeCertificate
)

func (m *Material) scheme() scheme {
	switch {
	case strings.HasPrefix(m.AuthorizationHeader, "Basic "):
		return schemeBasic
	case m.ClientSecret != "":
		return schemePost
	case m.ClientAssertion != "":
		return schemeAssertion
	case m.Certificate != nil:
		return schemeCertificate
	default:
		return schemeNone
	}
}

// Authenticate resolves the caller to a registered client or fails with
// invalid_client. Pure lookup and verify; no side effects.
func (a *Authenticator) Authenticate(ctx context.Context, m Material) (*oauth.Client, error) {
	switch m.scheme() {
	case schemeBasic:
		id, secret, ok := decodeBasic(m.AuthorizationHeader)
		if !ok {
			return nil, oauth.NewError(oauth.ErrInvalidClient, "malformed Basic authorization header")
		}
		return a.verifySharedSecret(ctx, id, secret)
	case schemePost:
		return a.verifySharedSecret(ctx, m.ClientID, m.ClientSecret)
	case schemeAssertion:
		if m.ClientAssertionType != ClientAssertionTypeJWTBearer {
			return nil, oauth.NewError(oauth.ErrInvalidClient, "unsupported client_assertion_type %q", m.ClientAssertionType)
		}
		return a.verifyAssertion(ctx, m.ClientAssertion)
	case schemeCertificate:
		return a.verifyCertificate(ctx, m.ClientID, m.Certificate)
	default:
		return nil, oauth.NewError(oauth.ErrInvalidClient, "no client credentials supplied")
	}
}

func (a *Authenticator) lookup(ctx context.Context, clientID string) (*oauth.Client, error) {
	if clientID == "" {
		return nil, oauth.NewError(oauth.ErrInvalidClient, "missing client_id")
	}
	client, err := a.clients.GetClient(ctx, clientID)
	if err != nil {
		if err == oauth.ErrNotFound {
			return nil, oauth.NewError(oauth.ErrInvalidClient, "unknown client %q", clientID)
		}
		return nil, err
	}
	return client, nil
}

func (a *Authenticator) verifySharedSecret(ctx context.Context, clientID, secret string) (*oauth.Client, error) {
	client, err := a.lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, s := range client.Secrets {
		if s.Kind != oauth.SecretKindShared {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(s.Value), []byte(secret)) == 1 {
			return client, nil
		}
	}
	slog.Debug("client secret mismatch", "client_id", clientID)
	return nil, oauth.NewError(oauth.ErrInvalidClient, "client authentication failed")
}

func (a *Authenticator) verifyCertificate(ctx context.Context, clientID string, cert *x509.Certificate) (*oauth.Client, error) {
	client, err := a.lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(cert.Raw)
	thumbprint := base64.RawURLEncoding.EncodeToString(sum[:])
	for _, s := range client.Secrets {
		if s.Kind != oauth.SecretKindThumbprint {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(s.Value), []byte(thumbprint)) == 1 {
			return client, nil
		}
	}
	return nil, oauth.NewError(oauth.ErrInvalidClient, "certificate thumbprint does not match any registered secret")
}

func decodeBasic(header string) (id, secret string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return "", "", false
	}
	id, secret, ok = strings.Cut(string(raw), ":")
	return id, secret, ok
}
