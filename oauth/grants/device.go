package grants

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/soteria-id/soteria/oauth"
)

// RequestDeviceAuthorization starts a device flow: it validates the client,
// mints the device and user codes and persists the pending authorization.
func (s *Service) RequestDeviceAuthorization(ctx context.Context, clientID string, scopes []string) (*oauth.DeviceAuthorization, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidClient, "unknown client %q", clientID)
		}
		return nil, err
	}
	if !client.SupportsGrantType(oauth.GrantTypeDeviceCode) {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "grant type %q is not supported by client %q", oauth.GrantTypeDeviceCode, clientID)
	}
	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	if !client.ScopesAllowed(scopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the scopes allowed for client %q", clientID)
	}
	userCode, err := newUserCode()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d := &oauth.DeviceAuthorization{
		DeviceCode: uuid.NewString(),
		UserCode:   userCode,
		ClientID:   clientID,
		Scopes:     scopes,
		Interval:   s.opts.DeviceInterval,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.opts.DeviceCodeTTL),
	}
	if err := s.devices.SaveDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ApproveDeviceAuthorization records the out-of-band resource-owner approval
// entered against the user code.
func (s *Service) ApproveDeviceAuthorization(ctx context.Context, userCode, subject string) error {
	err := s.devices.ApproveDevice(ctx, userCode, subject)
	if errors.Is(err, oauth.ErrNotFound) {
		return oauth.NewError(oauth.ErrInvalidRequest, "unknown user code")
	}
	return err
}

// deviceCode exchanges an approved device authorization for a token. While
// the entry is still pending it waits the advertised interval between polls,
// bounded by DeviceMaxPolls; the wait aborts promptly on cancellation.
func (s *Service) deviceCode(ctx context.Context, client *oauth.Client, req Request) (*grantResult, error) {
	if req.DeviceCode == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "missing device_code parameter")
	}
	var d *oauth.DeviceAuthorization
	for attempt := 0; ; attempt++ {
		found, err := s.devices.GetDevice(ctx, client.ClientID, req.DeviceCode)
		if err != nil {
			if errors.Is(err, oauth.ErrNotFound) {
				return nil, oauth.NewError(oauth.ErrInvalidGrant, "the device code is not correct")
			}
			return nil, err
		}
		if time.Now().After(found.ExpiresAt) {
			return nil, oauth.NewError(oauth.ErrInvalidGrant, "the device code is expired")
		}
		if found.Approved {
			d = found
			break
		}
		if attempt >= s.opts.DeviceMaxPolls-1 {
			return nil, oauth.NewError(oauth.ErrAuthorizationPending, "the end user has not yet approved the request")
		}
		if err := s.sleep(ctx, time.Duration(found.Interval)*time.Second); err != nil {
			return nil, err
		}
	}
	// The entry is single-use: delete it as part of the exchange.
	if err := s.devices.DeleteDevice(ctx, d.DeviceCode); err != nil && !errors.Is(err, oauth.ErrNotFound) {
		return nil, err
	}
	return &grantResult{
		subject:      d.Subject,
		scopes:       d.Scopes,
		idClaims:     map[string]any{"sub": d.Subject},
		issueRefresh: client.SupportsGrantType(oauth.GrantTypeRefreshToken),
		allowReuse:   true,
	}, nil
}

const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// newUserCode builds a short code the user types on a secondary device,
// rendered XXXX-XXXX from an alphabet without vowels or easily-confused
// glyphs.
func newUserCode() (string, error) {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("grants: generate user code: %w", err)
		}
		buf[i] = userCodeAlphabet[n.Int64()]
	}
	return string(buf[:4]) + "-" + string(buf[4:]), nil
}
