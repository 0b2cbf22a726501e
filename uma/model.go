// Package uma implements the User-Managed-Access permission layer: resource
// set registration, policy-filtered search, and the permission ticket
// lifecycle from request to resource-owner approval.
package uma

import (
	"time"

	"github.com/soteria-id/soteria/oauth"
)

// UMA-specific error codes, carried on the shared protocol error type.
const (
	ErrInvalidResourceSetID oauth.ErrorCode = "invalid_resource_set_id"
	ErrInvalidResourceScope oauth.ErrorCode = "invalid_scope"
	ErrInvalidTicket        oauth.ErrorCode = "invalid_ticket"
)

// PolicyRule grants access when every condition holds: the caller's client
// is listed (or the list is empty), the caller's issuer matches (or none is
// pinned), and the rule carries the scopes being exercised.
type PolicyRule struct {
	ID               string   `json:"id" bson:"id"`
	ClientIDsAllowed []string `json:"clients_allowed,omitempty" bson:"clients_allowed,omitempty"`
	OpenIDProvider   string   `json:"openid_provider,omitempty" bson:"openid_provider,omitempty"`
	Scopes           []string `json:"scopes,omitempty" bson:"scopes,omitempty"`
}

// Policy groups rules; a caller satisfying any one rule passes.
type Policy struct {
	ID    string       `json:"id" bson:"id"`
	Rules []PolicyRule `json:"rules" bson:"rules"`
}

// ResourceSet is a registered protected resource owned by a resource owner
// subject.
type ResourceSet struct {
	ID       string   `json:"_id" bson:"_id"`
	Name     string   `json:"name" bson:"name"`
	Type     string   `json:"type,omitempty" bson:"type,omitempty"`
	Scopes   []string `json:"scopes" bson:"scopes"`
	IconURI  string   `json:"icon_uri,omitempty" bson:"icon_uri,omitempty"`
	Owner    string   `json:"owner" bson:"owner"`
	Policies []Policy `json:"policies,omitempty" bson:"policies,omitempty"`
}

func (r *ResourceSet) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TicketLine is one (resource set, scopes) pair inside a ticket. A bulk
// permission request batches several lines into a single ticket.
type TicketLine struct {
	ResourceSetID string   `json:"resource_set_id" bson:"resource_set_id"`
	Scopes        []string `json:"scopes" bson:"scopes"`
}

// Ticket is a pending or approved permission request. It yields a requesting
// party token only once IsAuthorizedByRo is true.
type Ticket struct {
	ID               string         `json:"_id" bson:"_id"`
	Lines            []TicketLine   `json:"lines" bson:"lines"`
	RequesterClaims  map[string]any `json:"requester_claims,omitempty" bson:"requester_claims,omitempty"`
	OwnerSubject     string         `json:"owner" bson:"owner"`
	IsAuthorizedByRo bool           `json:"is_authorized_by_ro" bson:"is_authorized_by_ro"`
	CreatedAt        time.Time      `json:"created_at" bson:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at" bson:"expires_at"`
}

func (t *Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// PermissionRequest is one requested (resource set, scopes) pair.
type PermissionRequest struct {
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// Requester describes the caller of a search or permission request as seen
// through its access token.
type Requester struct {
	ClientID string
	Issuer   string
	Scopes   []string
	Claims   map[string]any
}
