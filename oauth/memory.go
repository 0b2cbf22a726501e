package oauth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory implementation of every store
// contract in this package. It backs tests and single-process deployments;
// production uses the mongo and redis stores.
type MemoryStore struct {
	mu       sync.Mutex
	clients  map[string]*Client
	tokens   map[string]*GrantedToken
	codes    map[string]*AuthorizationCode
	devices  map[string]*DeviceAuthorization
	confirms map[string]*ConfirmationCode
	scopes   map[string]*Scope
}

var (
	_ ClientStore            = (*MemoryStore)(nil)
	_ TokenStore             = (*MemoryStore)(nil)
	_ AuthorizationCodeStore = (*MemoryStore)(nil)
	_ DeviceStore            = (*MemoryStore)(nil)
	_ ConfirmationCodeStore  = (*MemoryStore)(nil)
	_ ScopeStore             = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:  make(map[string]*Client),
		tokens:   make(map[string]*GrantedToken),
		codes:    make(map[string]*AuthorizationCode),
		devices:  make(map[string]*DeviceAuthorization),
		confirms: make(map[string]*ConfirmationCode),
		scopes:   make(map[string]*Scope),
	}
}

func (m *MemoryStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) RegisterClient(_ context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *client
	m.clients[client.ClientID] = &cp
	return nil
}

func (m *MemoryStore) UpdateClient(_ context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ClientID]; !ok {
		return ErrNotFound
	}
	cp := *client
	m.clients[client.ClientID] = &cp
	return nil
}

func (m *MemoryStore) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[clientID]; !ok {
		return ErrNotFound
	}
	delete(m.clients, clientID)
	return nil
}

func (m *MemoryStore) ListClients(_ context.Context) ([]*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SaveToken(_ context.Context, token *GrantedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByAccessToken(_ context.Context, value string) (*GrantedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.AccessToken == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetByRefreshToken(_ context.Context, value string) (*GrantedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.RefreshToken == value && t.RefreshToken != "" {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindActive(_ context.Context, clientID, scope string, idClaims, userClaims map[string]any) (*GrantedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.ClientID != clientID || t.Scope != scope || t.Expired(now) {
			continue
		}
		if !t.MatchesClaims(idClaims, userClaims) {
			continue
		}
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeleteToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStore) DeleteByParent(_ context.Context, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.ParentTokenID == parentID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *MemoryStore) SaveCode(_ context.Context, code *AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *code
	m.codes[code.Code] = &cp
	return nil
}

// ConsumeCode deletes under the lock so a concurrent double redemption
// observes ErrNotFound on the second attempt.
func (m *MemoryStore) ConsumeCode(_ context.Context, code string) (*AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.codes, code)
	return c, nil
}

func (m *MemoryStore) SaveDevice(_ context.Context, d *DeviceAuthorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.devices[d.DeviceCode] = &cp
	return nil
}

func (m *MemoryStore) GetDevice(_ context.Context, clientID, deviceCode string) (*DeviceAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceCode]
	if !ok || d.ClientID != clientID {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetDeviceByUserCode(_ context.Context, userCode string) (*DeviceAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.UserCode == userCode {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ApproveDevice(_ context.Context, userCode, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.UserCode == userCode {
			d.Approved = true
			d.Subject = subject
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteDevice(_ context.Context, deviceCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[deviceCode]; !ok {
		return ErrNotFound
	}
	delete(m.devices, deviceCode)
	return nil
}

func (m *MemoryStore) SaveConfirmationCode(_ context.Context, c *ConfirmationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.confirms[c.Code] = &cp
	return nil
}

func (m *MemoryStore) ConsumeConfirmationCode(_ context.Context, code string) (*ConfirmationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confirms[code]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.confirms, code)
	return c, nil
}

func (m *MemoryStore) GetScopes(_ context.Context, names ...string) ([]*Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Scope
	for _, n := range names {
		if s, ok := m.scopes[n]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveScope(_ context.Context, s *Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.scopes[s.Name] = &cp
	return nil
}
