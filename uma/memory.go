package uma

import (
	"context"
	"sync"
	"time"

	"github.com/soteria-id/soteria/oauth"
)

// MemoryStore is the in-memory implementation of both UMA store contracts.
type MemoryStore struct {
	mu        sync.Mutex
	resources map[string]*ResourceSet
	tickets   map[string]*Ticket
}

var (
	_ ResourceSetStore = (*MemoryStore)(nil)
	_ TicketStore      = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string]*ResourceSet),
		tickets:   make(map[string]*Ticket),
	}
}

func (m *MemoryStore) SaveResourceSet(_ context.Context, rs *ResourceSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rs
	m.resources[rs.ID] = &cp
	return nil
}

func (m *MemoryStore) GetResourceSet(_ context.Context, id string) (*ResourceSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.resources[id]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

func (m *MemoryStore) UpdateResourceSet(_ context.Context, rs *ResourceSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[rs.ID]; !ok {
		return oauth.ErrNotFound
	}
	cp := *rs
	m.resources[rs.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteResourceSet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; !ok {
		return oauth.ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

func (m *MemoryStore) ListResourceSets(_ context.Context, owner string) ([]*ResourceSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ResourceSet
	for _, rs := range m.resources {
		if owner != "" && rs.Owner != owner {
			continue
		}
		cp := *rs
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SaveTicket(_ context.Context, t *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTicket(_ context.Context, id string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) UpdateTicket(_ context.Context, t *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; !ok {
		return oauth.ErrNotFound
	}
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteTicket(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[id]; !ok {
		return oauth.ErrNotFound
	}
	delete(m.tickets, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tickets {
		if t.Expired(now) {
			delete(m.tickets, id)
			n++
		}
	}
	return n, nil
}
