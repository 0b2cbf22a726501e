package server

import "net/http"

// openidConfiguration is the discovery document served at
// /.well-known/openid-configuration.
type openidConfiguration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

// umaConfiguration is the discovery document served at
// /.well-known/uma2-configuration.
type umaConfiguration struct {
	Issuer                       string `json:"issuer"`
	AuthorizationEndpoint        string `json:"authorization_endpoint"`
	TokenEndpoint                string `json:"token_endpoint"`
	JWKSURI                      string `json:"jwks_uri"`
	PermissionEndpoint           string `json:"permission_endpoint"`
	ResourceRegistrationEndpoint string `json:"resource_registration_endpoint"`
	IntrospectionEndpoint        string `json:"introspection_endpoint"`
}

// OpenIDConfiguration serves the OIDC discovery document. Endpoint URLs
// follow the externally-visible issuer so the document stays correct behind a
// reverse proxy.
func (h *Handler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	issuer := h.issuerOf(r)
	writeJSON(w, http.StatusOK, openidConfiguration{
		Issuer:                      issuer,
		AuthorizationEndpoint:       issuer + "/authorize",
		TokenEndpoint:               issuer + "/token",
		RevocationEndpoint:          issuer + "/revoke",
		IntrospectionEndpoint:       issuer + "/introspect",
		DeviceAuthorizationEndpoint: issuer + "/device_authorization",
		JWKSURI:                     issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:      []string{"code", "token", "id_token", "code id_token", "token id_token"},
		GrantTypesSupported: []string{
			"authorization_code",
			"client_credentials",
			"password",
			"refresh_token",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"private_key_jwt",
			"tls_client_auth",
		},
		IDTokenSigningAlgValuesSupported: []string{"RS256", "ES256", "ES384", "ES512"},
		SubjectTypesSupported:            []string{"public"},
	})
}

// UMAConfiguration serves the UMA2 discovery document.
func (h *Handler) UMAConfiguration(w http.ResponseWriter, r *http.Request) {
	issuer := h.issuerOf(r)
	writeJSON(w, http.StatusOK, umaConfiguration{
		Issuer:                       issuer,
		AuthorizationEndpoint:        issuer + "/authorize",
		TokenEndpoint:                issuer + "/token",
		JWKSURI:                      issuer + "/.well-known/jwks.json",
		PermissionEndpoint:           issuer + "/uma/perm",
		ResourceRegistrationEndpoint: issuer + "/uma/resource_set",
		IntrospectionEndpoint:        issuer + "/introspect",
	})
}
