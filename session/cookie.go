package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soteria-id/soteria/oauth/authorize"
)

// Manager signs and verifies the session cookie.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret []byte, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: secret, ttl: ttl}
}

// Issue serializes the session, signs it, and sets it as an HTTP cookie.
func (m *Manager) Issue(w http.ResponseWriter, d *Data) error {
	if d.ExpiresAt == 0 {
		d.ExpiresAt = time.Now().Add(m.ttl).Unix()
	}
	jsonData, err := json.Marshal(d)
	if err != nil {
		return err
	}
	value := base64.URLEncoding.EncodeToString(jsonData)
	sig := computeHMAC(value, m.secret)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    fmt.Sprintf("%s|%s", value, sig),
		Path:     "/",
		Expires:  time.Unix(d.ExpiresAt, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest reads and verifies the session cookie.
func (m *Manager) FromRequest(r *http.Request) (*Data, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, err
	}
	return m.decode(c)
}

// Principal resolves the request session into the shape the authorization
// endpoint consumes. Missing, tampered or expired cookies yield an
// unauthenticated principal rather than an error.
func (m *Manager) Principal(r *http.Request) authorize.Principal {
	d, err := m.FromRequest(r)
	if err != nil {
		return authorize.Principal{}
	}
	return authorize.Principal{
		Subject:         d.Subject,
		Authenticated:   true,
		ConsentedScopes: d.ConsentedScopes,
		Claims:          d.Claims,
	}
}

func (m *Manager) decode(c *http.Cookie) (*Data, error) {
	parts := strings.Split(c.Value, "|")
	if len(parts) != 2 {
		return nil, errors.New("invalid session cookie format")
	}
	value, sig := parts[0], parts[1]
	if !validateHMAC(value, sig, m.secret) {
		return nil, errors.New("invalid session signature")
	}
	jsonData, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var d Data
	if err := json.Unmarshal(jsonData, &d); err != nil {
		return nil, err
	}
	if time.Now().Unix() > d.ExpiresAt {
		return nil, errors.New("session expired")
	}
	return &d, nil
}

func computeHMAC(message string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func validateHMAC(message, sig string, secret []byte) bool {
	expected := computeHMAC(message, secret)
	return hmac.Equal([]byte(sig), []byte(expected))
}
