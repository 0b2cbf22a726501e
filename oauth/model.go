package oauth

import (
	"reflect"
	"strings"
	"time"
)

type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypePassword          GrantType = "password"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypeDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

type ResponseType string

const (
	ResponseTypeCode    ResponseType = "code"
	ResponseTypeToken   ResponseType = "token"
	ResponseTypeIDToken ResponseType = "id_token"
)

// ImpliedResponseType maps a grant type to the response type the client must
// have enabled for the grant to make sense.
func (g GrantType) ImpliedResponseType() ResponseType {
	switch g {
	case GrantTypeAuthorizationCode:
		return ResponseTypeCode
	default:
		return ResponseTypeToken
	}
}

// SecretKind discriminates the credential kinds a client may be configured
// with. A client can hold several secrets of different kinds.
type SecretKind string

const (
	SecretKindShared     SecretKind = "shared_secret"
	SecretKindJWKS       SecretKind = "jwks"
	SecretKindThumbprint SecretKind = "x5t#S256"
)

type Secret struct {
	Kind  SecretKind `json:"kind" bson:"kind"`
	Value string     `json:"value,omitempty" bson:"value,omitempty"`
}

// Client stores registered client metadata. Immutable during a request;
// mutated only by the management API.
type Client struct {
	ClientID      string   `json:"client_id" bson:"client_id"`
	Name          string   `json:"name,omitempty" bson:"name,omitempty"`
	Secrets       []Secret `json:"secrets,omitempty" bson:"secrets,omitempty"`
	RedirectURIs  []string `json:"redirect_uris" bson:"redirect_uris"`
	AllowedScopes []string `json:"scopes" bson:"scopes"`
	GrantTypes    []string `json:"grant_types" bson:"grant_types"`
	ResponseTypes []string `json:"response_types" bson:"response_types"`
	RequirePKCE   bool     `json:"require_pkce,omitempty" bson:"require_pkce,omitempty"`

	// JWKS registered for private_key_jwt client authentication. Either an
	// inline JSON document or a URI to fetch it from.
	JWKS    string `json:"jwks,omitempty" bson:"jwks,omitempty"`
	JWKSURI string `json:"jwks_uri,omitempty" bson:"jwks_uri,omitempty"`

	// ID-token algorithm preferences. Signing defaults to RS256 when empty;
	// encryption is applied only when an encryption alg is configured.
	IDTokenSignedResponseAlg    string `json:"id_token_signed_response_alg,omitempty" bson:"id_token_signed_response_alg,omitempty"`
	IDTokenEncryptedResponseAlg string `json:"id_token_encrypted_response_alg,omitempty" bson:"id_token_encrypted_response_alg,omitempty"`
	IDTokenEncryptedResponseEnc string `json:"id_token_encrypted_response_enc,omitempty" bson:"id_token_encrypted_response_enc,omitempty"`
}

func (c *Client) SupportsGrantType(g GrantType) bool {
	for _, gt := range c.GrantTypes {
		if gt == string(g) {
			return true
		}
	}
	return false
}

func (c *Client) SupportsResponseType(rt ResponseType) bool {
	for _, r := range c.ResponseTypes {
		if r == string(rt) {
			return true
		}
	}
	return false
}

// ScopesAllowed reports whether every requested scope is in the client's
// allowed set.
func (c *Client) ScopesAllowed(requested []string) bool {
	for _, s := range requested {
		ok := false
		for _, a := range c.AllowedScopes {
			if a == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *Client) HasRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode is a single-use code minted by the authorization
// endpoint and consumed exactly once by the authorization_code grant.
type AuthorizationCode struct {
	Code                string    `json:"code" bson:"code"`
	ClientID            string    `json:"client_id" bson:"client_id"`
	RedirectURI         string    `json:"redirect_uri" bson:"redirect_uri"`
	Scopes              []string  `json:"scopes" bson:"scopes"`
	Subject             string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Nonce               string    `json:"nonce,omitempty" bson:"nonce,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty" bson:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty" bson:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at" bson:"created_at"`
}

// GrantedToken is an issued access token with its optional refresh and
// identity tokens. Access and refresh tokens are independently revocable;
// ParentTokenID links an access token to the refresh token that spawned it
// so revocation can cascade.
type GrantedToken struct {
	ID            string         `json:"id" bson:"_id"`
	ClientID      string         `json:"client_id" bson:"client_id"`
	Subject       string         `json:"subject,omitempty" bson:"subject,omitempty"`
	AccessToken   string         `json:"access_token" bson:"access_token"`
	RefreshToken  string         `json:"refresh_token,omitempty" bson:"refresh_token,omitempty"`
	IDToken       string         `json:"id_token,omitempty" bson:"id_token,omitempty"`
	IDTokenClaims map[string]any `json:"id_token_claims,omitempty" bson:"id_token_claims,omitempty"`
	UserClaims    map[string]any `json:"user_claims,omitempty" bson:"user_claims,omitempty"`
	Scope         string         `json:"scope" bson:"scope"`
	GrantType     string         `json:"grant_type" bson:"grant_type"`
	ParentTokenID string         `json:"parent_token_id,omitempty" bson:"parent_token_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at" bson:"expires_at"`
}

func (t *GrantedToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *GrantedToken) ScopeList() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// MatchesClaims reports whether every claim in the stored payloads is also
// present and equal in the candidate payloads. Used for the idempotent
// token-reuse lookup before minting.
func (t *GrantedToken) MatchesClaims(idClaims, userClaims map[string]any) bool {
	return subsetClaims(t.IDTokenClaims, idClaims) && subsetClaims(t.UserClaims, userClaims)
}

func subsetClaims(stored, candidate map[string]any) bool {
	for k, v := range stored {
		cv, ok := candidate[k]
		// Claims decoded from JSON or BSON can carry slices and nested
		// documents, which == cannot compare.
		if !ok || !reflect.DeepEqual(cv, v) {
			return false
		}
	}
	return true
}

// DeviceAuthorization tracks one device-flow session from the device
// authorization request until the code is exchanged or expires.
type DeviceAuthorization struct {
	DeviceCode string    `json:"device_code" bson:"device_code"`
	UserCode   string    `json:"user_code" bson:"user_code"`
	ClientID   string    `json:"client_id" bson:"client_id"`
	Scopes     []string  `json:"scopes,omitempty" bson:"scopes,omitempty"`
	Approved   bool      `json:"approved" bson:"approved"`
	Subject    string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Interval   int       `json:"interval" bson:"interval"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"`
}

// ConfirmationCode is a one-time code (SMS delivered) consumed once during
// resource-owner authentication.
type ConfirmationCode struct {
	Code      string    `json:"code" bson:"code"`
	Subject   string    `json:"subject" bson:"subject"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

type ScopeType string

const (
	ScopeTypeIdentity ScopeType = "identity"
	ScopeTypeResource ScopeType = "resource"
	ScopeTypeAPI      ScopeType = "api"
)

// Scope is referenced by name from clients and tokens, never embedded.
type Scope struct {
	Name        string    `json:"name" bson:"name"`
	Type        ScopeType `json:"type" bson:"type"`
	IsDisplayed bool      `json:"is_displayed" bson:"is_displayed"`
}

// ParseScope splits a space-delimited scope parameter.
func ParseScope(s string) []string {
	return strings.Fields(s)
}

// JoinScope renders a scope list as the wire parameter.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}
