// Package session provides the signed-cookie session the authorization and
// device-verification endpoints read the end user from. Hosts with their own
// login stack can skip it and supply their own principal resolver.
package session

const sessionCookieName = "session"

// Data is what the cookie carries about the signed-in resource owner.
type Data struct {
	Subject  string `json:"subject"`
	Username string `json:"username,omitempty"`
	// ConsentedScopes records which scopes the user has approved for this
	// session. Nil means consent was never asked.
	ConsentedScopes []string       `json:"consented_scopes,omitempty"`
	Claims          map[string]any `json:"claims,omitempty"`
	ExpiresAt       int64          `json:"expires_at"`
}
