// Package soteria wires the authorization server: stores, client
// authentication, token issuance, the authorization endpoint and the UMA
// permission layer behind a single HTTP handler.
package soteria

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soteria-id/soteria/events"
	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/oauth/authn"
	"github.com/soteria-id/soteria/oauth/authorize"
	"github.com/soteria-id/soteria/oauth/grants"
	"github.com/soteria-id/soteria/oauth/rowner"
	"github.com/soteria-id/soteria/oauth/sign"
	"github.com/soteria-id/soteria/server"
	"github.com/soteria-id/soteria/uma"
)

// Config selects the stores and services behind the server. Every nil store
// falls back to the shared in-memory implementation, which is what the tests
// and local development use.
type Config struct {
	Clients oauth.ClientStore
	Tokens  oauth.TokenStore
	Codes   oauth.AuthorizationCodeStore
	Devices oauth.DeviceStore

	Resources uma.ResourceSetStore
	Tickets   uma.TicketStore

	// Keys signs access and identity tokens and serves the public JWKS.
	Keys sign.KeyRepository
	// Owners authenticates resource owners for the password grant. Nil
	// disables the grant.
	Owners rowner.Authenticator
	// Publisher receives token-granted events. Nil drops them.
	Publisher events.Publisher
	// Principal resolves the end-user session on the authorization and
	// device-verification endpoints.
	Principal server.PrincipalFunc

	// Issuer pins the issuer URL. Empty derives it per request from
	// forwarded headers.
	Issuer string
	// HTTPClient fetches remote client JWKS documents.
	HTTPClient *http.Client
	// JWKSCacheTTL bounds the remote JWKS cache.
	JWKSCacheTTL time.Duration
	// Registry receives the prometheus instruments. Nil gets a private one.
	Registry *prometheus.Registry

	Grants    grants.Options
	Authorize authorize.Options
	UMA       uma.Options
}

// Server is the assembled authorization server.
type Server struct {
	Grants    *grants.Service
	Authorize *authorize.Processor
	UMA       *uma.Engine

	keys    sign.KeyRepository
	handler *server.Handler
}

// New assembles a server from the config.
func New(cfg Config) *Server {
	mem := oauth.NewMemoryStore()
	if cfg.Clients == nil {
		cfg.Clients = mem
	}
	if cfg.Tokens == nil {
		cfg.Tokens = mem
	}
	if cfg.Codes == nil {
		cfg.Codes = mem
	}
	if cfg.Devices == nil {
		cfg.Devices = mem
	}
	if cfg.Resources == nil || cfg.Tickets == nil {
		umaMem := uma.NewMemoryStore()
		if cfg.Resources == nil {
			cfg.Resources = umaMem
		}
		if cfg.Tickets == nil {
			cfg.Tickets = umaMem
		}
	}

	remote := sign.NewRemoteJWKS(cfg.HTTPClient, cfg.JWKSCacheTTL)
	signer := sign.NewSigner(cfg.Keys, remote)
	clientAuth := authn.New(cfg.Clients, remote, cfg.Issuer)

	grantSvc := grants.NewService(
		cfg.Clients, cfg.Tokens, cfg.Codes, cfg.Devices,
		clientAuth, cfg.Owners, signer, cfg.Publisher, cfg.Grants,
	)
	authorizeSvc := authorize.NewProcessor(cfg.Clients, cfg.Codes, cfg.Tokens, signer, cfg.Authorize)
	umaEngine := uma.NewEngine(cfg.Resources, cfg.Tickets, cfg.UMA)

	s := &Server{
		Grants:    grantSvc,
		Authorize: authorizeSvc,
		UMA:       umaEngine,
		keys:      cfg.Keys,
	}
	s.handler = server.NewHandler(
		grantSvc, authorizeSvc, umaEngine,
		jwksProvider{keys: cfg.Keys},
		cfg.Principal,
		server.NewMetrics(cfg.Registry),
		cfg.Issuer,
	)
	return s
}

// Handler returns the HTTP handler with every protocol endpoint mounted.
func (s *Server) Handler() http.Handler {
	return s.handler.Routes()
}

// StartSweeper starts the background ticket garbage collector; it stops when
// the context is cancelled.
func (s *Server) StartSweeper(ctx context.Context) {
	s.UMA.StartSweeper(ctx)
}

type jwksProvider struct {
	keys sign.KeyRepository
}

func (p jwksProvider) PublicJWKSJSON(r *http.Request) ([]byte, error) {
	set, err := p.keys.PublicJWKS(r.Context())
	if err != nil {
		return nil, err
	}
	return json.Marshal(set)
}
