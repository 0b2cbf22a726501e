package oauth

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when the requested document does not
// exist. Services translate it into the protocol error taxonomy.
var ErrNotFound = errors.New("oauth: not found")

// ClientStore looks up and manages registered clients.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	RegisterClient(ctx context.Context, client *Client) error
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	ListClients(ctx context.Context) ([]*Client, error)
}

// TokenStore persists granted tokens. Lookups by value cover both access and
// refresh tokens; FindActive backs the idempotent reuse optimization.
type TokenStore interface {
	SaveToken(ctx context.Context, token *GrantedToken) error
	GetByAccessToken(ctx context.Context, value string) (*GrantedToken, error)
	GetByRefreshToken(ctx context.Context, value string) (*GrantedToken, error)
	// FindActive returns a non-expired token for (clientID, scope) whose
	// stored identity and user-info claims are a subset of the candidate
	// claims, or ErrNotFound.
	FindActive(ctx context.Context, clientID, scope string, idClaims, userClaims map[string]any) (*GrantedToken, error)
	DeleteToken(ctx context.Context, id string) error
	// DeleteByParent removes every token spawned by the given parent token.
	DeleteByParent(ctx context.Context, parentID string) error
}

// AuthorizationCodeStore persists single-use authorization codes.
type AuthorizationCodeStore interface {
	SaveCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeCode atomically fetches and deletes the code. The second of two
	// concurrent redemptions must observe ErrNotFound; the store provides
	// the compare-and-delete primitive, not the caller.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// DeviceStore persists device-flow authorizations keyed by device code.
type DeviceStore interface {
	SaveDevice(ctx context.Context, d *DeviceAuthorization) error
	GetDevice(ctx context.Context, clientID, deviceCode string) (*DeviceAuthorization, error)
	GetDeviceByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error)
	// ApproveDevice flips the approval flag after the out-of-band user
	// action, binding the authenticated subject.
	ApproveDevice(ctx context.Context, userCode, subject string) error
	DeleteDevice(ctx context.Context, deviceCode string) error
}

// ConfirmationCodeStore holds one-time confirmation codes (SMS factor).
type ConfirmationCodeStore interface {
	SaveConfirmationCode(ctx context.Context, c *ConfirmationCode) error
	// ConsumeConfirmationCode atomically fetches and deletes the code.
	ConsumeConfirmationCode(ctx context.Context, code string) (*ConfirmationCode, error)
}

// ScopeStore resolves scope definitions by name.
type ScopeStore interface {
	GetScopes(ctx context.Context, names ...string) ([]*Scope, error)
	SaveScope(ctx context.Context, s *Scope) error
}
