// Package server is the thin HTTP layer over the engine: it deserializes
// requests, calls the services, and serializes the discriminated results.
package server

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/authn"
	"github.com/soteria-id/soteria/oauth/authorize"
	"github.com/soteria-id/soteria/oauth/grants"
	"github.com/soteria-id/soteria/uma"
)

// PrincipalFunc resolves the current end-user session for the authorization
// endpoint. Login and consent screens are the host's concern.
type PrincipalFunc func(r *http.Request) authorize.Principal

// Handler exposes the protocol endpoints.
type Handler struct {
	grants    *grants.Service
	authorize *authorize.Processor
	uma       *uma.Engine
	jwks      JWKSProvider
	principal PrincipalFunc
	metrics   *Metrics
	// issuer overrides forwarded-header derivation when set.
	issuer string
}

// JWKSProvider serves the public key set.
type JWKSProvider interface {
	PublicJWKSJSON(r *http.Request) ([]byte, error)
}

func NewHandler(grantSvc *grants.Service, authorizeSvc *authorize.Processor, umaEngine *uma.Engine, jwks JWKSProvider, principal PrincipalFunc, metrics *Metrics, issuer string) *Handler {
	if principal == nil {
		principal = func(*http.Request) authorize.Principal { return authorize.Principal{} }
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Handler{
		grants:    grantSvc,
		authorize: authorizeSvc,
		uma:       umaEngine,
		jwks:      jwks,
		principal: principal,
		metrics:   metrics,
		issuer:    issuer,
	}
}

// Routes mounts every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", h.Token)
	mux.HandleFunc("GET /authorize", h.Authorize)
	mux.HandleFunc("POST /revoke", h.Revoke)
	mux.HandleFunc("POST /introspect", h.Introspect)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKs)
	mux.HandleFunc("GET /.well-known/openid-configuration", h.OpenIDConfiguration)
	mux.HandleFunc("GET /.well-known/uma2-configuration", h.UMAConfiguration)
	mux.HandleFunc("POST /device_authorization", h.DeviceAuthorization)
	mux.HandleFunc("POST /device", h.ApproveDevice)
	mux.HandleFunc("GET /device/qr", h.DeviceQR)
	mux.HandleFunc("POST /uma/resource_set", h.RegisterResourceSet)
	mux.HandleFunc("GET /uma/resource_set", h.SearchResourceSets)
	mux.HandleFunc("GET /uma/resource_set/{id}", h.GetResourceSet)
	mux.HandleFunc("PUT /uma/resource_set/{id}", h.UpdateResourceSet)
	mux.HandleFunc("DELETE /uma/resource_set/{id}", h.DeleteResourceSet)
	mux.HandleFunc("POST /uma/perm", h.RequestPermission)
	mux.HandleFunc("GET /uma/perm/{id}", h.IntrospectTicket)
	mux.HandleFunc("POST /uma/perm/{id}/approve", h.ApproveTicket)
	mux.Handle("GET /metrics", h.metrics.HTTPHandler())
	return mux
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token handles the token endpoint POST.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	req := grants.Request{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		Scope:        r.PostForm.Get("scope"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		DeviceCode:   r.PostForm.Get("device_code"),
	}
	token, err := h.grants.GetToken(r.Context(), h.issuerOf(r), req, materialFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.TokenIssued(token.GrantType)
	resp := TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(token.ExpiresAt.Sub(token.CreatedAt).Seconds()),
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		Scope:        token.Scope,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Authorize handles the authorization endpoint GET. Success and protocol
// failures both redirect back to the client when the redirect URI has been
// validated; otherwise the error is returned directly.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := authorize.Request{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Prompt:              q.Get("prompt"),
		IDTokenHint:         q.Get("id_token_hint"),
	}
	redirect, err := h.authorize.Authorize(r.Context(), h.issuerOf(r), req, h.principal(r))
	if err != nil {
		oe, ok := oauth.AsError(err)
		if !ok {
			h.writeFault(w, err)
			return
		}
		// Redirect-safe failures go back to the client with state echoed.
		switch oe.Code {
		case oauth.ErrInvalidClient, oauth.ErrInvalidRedirectURI, oauth.ErrInvalidRequest:
			h.writeError(w, oe)
		default:
			http.Redirect(w, r, errorRedirect(req.RedirectURI, oe, wantsFragmentDelivery(req.ResponseType)), http.StatusFound)
		}
		return
	}
	http.Redirect(w, r, redirect.Location(), http.StatusFound)
}

// Revoke handles the revocation endpoint POST. Success is a 200 with an
// empty body.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	if err := h.grants.Revoke(r.Context(), r.PostForm.Get("token"), materialFrom(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.TokenRevoked()
	w.WriteHeader(http.StatusOK)
}

// Introspect handles the introspection endpoint POST.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	info, err := h.grants.Introspect(r.Context(), r.PostForm.Get("token"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// JWKs serves the public key set.
func (h *Handler) JWKs(w http.ResponseWriter, r *http.Request) {
	data, err := h.jwks.PublicJWKSJSON(r)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

// materialFrom extracts every supported credential scheme from a request.
func materialFrom(r *http.Request) authn.Material {
	m := authn.Material{
		AuthorizationHeader: r.Header.Get("Authorization"),
		ClientID:            r.PostForm.Get("client_id"),
		ClientSecret:        r.PostForm.Get("client_secret"),
		ClientAssertion:     r.PostForm.Get("client_assertion"),
		ClientAssertionType: r.PostForm.Get("client_assertion_type"),
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		m.Certificate = r.TLS.PeerCertificates[0]
	} else if raw := r.Header.Get("X-Forwarded-Tls-Client-Cert"); raw != "" {
		if der, err := base64.StdEncoding.DecodeString(raw); err == nil {
			if cert, err := x509.ParseCertificate(der); err == nil {
				m.Certificate = cert
			}
		}
	}
	return m
}

// issuerOf derives the externally-visible issuer from forwarded headers,
// unless a fixed issuer was configured.
func (h *Handler) issuerOf(r *http.Request) string {
	if h.issuer != "" {
		return h.issuer
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

// wantsFragmentDelivery reports whether the response type returns its
// artifacts in the URI fragment; errors then travel the same way.
func wantsFragmentDelivery(responseType string) bool {
	for _, rt := range strings.Fields(responseType) {
		if rt == "token" || rt == "id_token" {
			return true
		}
	}
	return false
}

func errorRedirect(redirectURI string, oe *oauth.Error, useFragment bool) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	v := url.Values{}
	v.Set("error", string(oe.Code))
	if oe.Description != "" {
		v.Set("error_description", oe.Description)
	}
	if oe.State != "" {
		v.Set("state", oe.State)
	}
	// Registered redirect URIs never carry a fragment, so appending one is
	// safe and avoids re-escaping the encoded pairs.
	if useFragment {
		return u.String() + "#" + v.Encode()
	}
	q := u.Query()
	for k, vals := range v {
		q.Set(k, vals[0])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	oe, ok := oauth.AsError(err)
	if !ok {
		h.writeFault(w, err)
		return
	}
	status := http.StatusBadRequest
	if oe.Code == oauth.ErrInvalidClient {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, oe)
}

func (h *Handler) writeFault(w http.ResponseWriter, err error) {
	slog.Error("unexpected failure", "err", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// decodeJSON decodes a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
