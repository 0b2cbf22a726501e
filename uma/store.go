package uma

import (
	"context"
	"time"
)

// ResourceSetStore persists registered resource sets.
type ResourceSetStore interface {
	SaveResourceSet(ctx context.Context, rs *ResourceSet) error
	GetResourceSet(ctx context.Context, id string) (*ResourceSet, error)
	UpdateResourceSet(ctx context.Context, rs *ResourceSet) error
	DeleteResourceSet(ctx context.Context, id string) error
	ListResourceSets(ctx context.Context, owner string) ([]*ResourceSet, error)
}

// TicketStore persists permission tickets.
type TicketStore interface {
	SaveTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) error
	DeleteTicket(ctx context.Context, id string) error
	// DeleteExpired removes every ticket expired at the given instant and
	// reports how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
