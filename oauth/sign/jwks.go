package sign

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

// KeyRepository is the engine's only view of key management: the current
// signing key and the public set served at the JWKS endpoint.
type KeyRepository interface {
	SigningKey(ctx context.Context) (*SigningKey, error)
	PublicJWKS(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// SigningKey bundles a private key with its derived identifier and algorithm.
type SigningKey struct {
	Key       crypto.Signer
	KeyID     string
	Algorithm string
}

// StaticKeyRepository serves a fixed private key. The key ID is the RFC 7638
// JWK thumbprint unless one is supplied.
type StaticKeyRepository struct {
	key *SigningKey
}

var _ KeyRepository = (*StaticKeyRepository)(nil)

func NewStaticKeyRepository(key crypto.Signer, keyID string) (*StaticKeyRepository, error) {
	if keyID == "" {
		derived, err := deriveKeyID(key)
		if err != nil {
			return nil, err
		}
		keyID = derived
	}
	alg, err := deriveAlgorithm(key)
	if err != nil {
		return nil, err
	}
	return &StaticKeyRepository{key: &SigningKey{Key: key, KeyID: keyID, Algorithm: alg}}, nil
}

func (r *StaticKeyRepository) SigningKey(context.Context) (*SigningKey, error) {
	return r.key, nil
}

func (r *StaticKeyRepository) PublicJWKS(context.Context) (*jose.JSONWebKeySet, error) {
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       r.key.Key.Public(),
		KeyID:     r.key.KeyID,
		Algorithm: r.key.Algorithm,
		Use:       "sig",
	}}}, nil
}

// deriveKeyID computes base64url(SHA-256(JWK canonical form)) per RFC 7638.
func deriveKeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("sign: key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

func deriveAlgorithm(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256", nil
		case elliptic.P384():
			return "ES384", nil
		case elliptic.P521():
			return "ES512", nil
		default:
			return "", fmt.Errorf("sign: unsupported EC curve %s", k.Curve.Params().Name)
		}
	default:
		return "", fmt.Errorf("sign: unsupported key type %T", key)
	}
}

type cachedJWKS struct {
	set       *jose.JSONWebKeySet
	fetchedAt time.Time
}

// RemoteJWKS fetches and memoizes JWKS documents from client jwks_uri
// endpoints. Concurrent first fetches for the same URI collapse into one
// request; the cached value is idempotent so last write wins.
type RemoteJWKS struct {
	client *http.Client
	ttl    time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedJWKS
}

func NewRemoteJWKS(client *http.Client, ttl time.Duration) *RemoteJWKS {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RemoteJWKS{client: client, ttl: ttl, cache: make(map[string]cachedJWKS)}
}

// Fetch returns the key set at uri, from cache when fresh.
func (r *RemoteJWKS) Fetch(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
	r.mu.RLock()
	entry, ok := r.cache[uri]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.set, nil
	}

	v, err, _ := r.group.Do(uri, func() (any, error) {
		set, err := r.fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[uri] = cachedJWKS{set: set, fetchedAt: time.Now()}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*jose.JSONWebKeySet), nil
}

func (r *RemoteJWKS) fetch(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign: fetch jwks %s: %w", uri, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sign: fetch jwks %s: status %d", uri, resp.StatusCode)
	}
	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("sign: decode jwks %s: %w", uri, err)
	}
	return &set, nil
}

// Reset drops all cached documents. Tests reinitialize without a restart.
func (r *RemoteJWKS) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]cachedJWKS)
	r.mu.Unlock()
}

// ParseJWKS decodes an inline JWKS document, as registered on a client.
func ParseJWKS(raw string) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("sign: parse jwks: %w", err)
	}
	return &set, nil
}
