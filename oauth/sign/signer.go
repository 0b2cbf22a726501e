package sign

import (
	"context"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/soteria-id/soteria/oauth"
)

// Signer builds the signed (and optionally encrypted) JWTs issued by the
// grant handlers: access tokens and identity tokens.
type Signer struct {
	keys   KeyRepository
	remote *RemoteJWKS
}

func NewSigner(keys KeyRepository, remote *RemoteJWKS) *Signer {
	return &Signer{keys: keys, remote: remote}
}

// AccessTokenClaims is the registered claim set carried by access tokens.
type AccessTokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// SignAccessToken signs an access token with the repository key.
func (s *Signer) SignAccessToken(ctx context.Context, issuer, clientID, subject, scope string, ttl time.Duration) (string, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := AccessTokenClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(key.Algorithm), claims)
	token.Header["kid"] = key.KeyID
	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("sign: access token: %w", err)
	}
	return signed, nil
}

// SignIDToken signs an identity token following the client's configured
// signing algorithm and, when the client configured an encryption algorithm,
// wraps it in a JWE against the client's registered key set.
func (s *Signer) SignIDToken(ctx context.Context, issuer string, client *oauth.Client, payload map[string]any, ttl time.Duration) (string, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", err
	}
	alg := client.IDTokenSignedResponseAlg
	if alg == "" {
		alg = key.Algorithm
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": issuer,
		"aud": client.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	for k, v := range payload {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(alg), claims)
	token.Header["kid"] = key.KeyID
	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", fmt.Errorf("sign: id token: %w", err)
	}
	if client.IDTokenEncryptedResponseAlg == "" {
		return signed, nil
	}
	return s.encryptIDToken(ctx, client, signed)
}

func (s *Signer) encryptIDToken(ctx context.Context, client *oauth.Client, signed string) (string, error) {
	set, err := ClientKeySet(ctx, s.remote, client)
	if err != nil {
		return "", err
	}
	encKey, ok := encryptionKey(set)
	if !ok {
		return "", fmt.Errorf("sign: client %s has no encryption key registered", client.ClientID)
	}
	enc := client.IDTokenEncryptedResponseEnc
	if enc == "" {
		enc = string(jose.A128CBC_HS256)
	}
	encrypter, err := jose.NewEncrypter(
		jose.ContentEncryption(enc),
		jose.Recipient{Algorithm: jose.KeyAlgorithm(client.IDTokenEncryptedResponseAlg), Key: encKey},
		(&jose.EncrypterOptions{}).WithContentType("JWT").WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("sign: build encrypter: %w", err)
	}
	obj, err := encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", fmt.Errorf("sign: encrypt id token: %w", err)
	}
	return obj.CompactSerialize()
}

func encryptionKey(set *jose.JSONWebKeySet) (any, bool) {
	for _, k := range set.Keys {
		if k.Use == "enc" {
			return k.Key, true
		}
	}
	// fall back to the first key when none is marked for encryption
	if len(set.Keys) > 0 {
		return set.Keys[0].Key, true
	}
	return nil, false
}

// ClientKeySet resolves a client's registered JWKS, inline set first, then
// the jwks_uri through the memoized remote fetcher.
func ClientKeySet(ctx context.Context, remote *RemoteJWKS, client *oauth.Client) (*jose.JSONWebKeySet, error) {
	if client.JWKS != "" {
		return ParseJWKS(client.JWKS)
	}
	if client.JWKSURI != "" {
		if remote == nil {
			return nil, errors.New("sign: no remote jwks fetcher configured")
		}
		return remote.Fetch(ctx, client.JWKSURI)
	}
	return nil, fmt.Errorf("sign: client %s has no jwks registered", client.ClientID)
}

// NewOpaqueToken mints an opaque token value for refresh tokens and other
// non-JWT artifacts.
func NewOpaqueToken() string {
	return uuid.NewString()
}
