package uma

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soteria-id/soteria/oauth"
)

// Options bound ticket lifetime and the sweep cadence.
type Options struct {
	TicketTTL     time.Duration
	SweepInterval time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.TicketTTL <= 0 {
		out.TicketTTL = time.Hour
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = 5 * time.Minute
	}
	return out
}

// Engine negotiates resource-access permission tickets.
type Engine struct {
	resources ResourceSetStore
	tickets   TicketStore
	opts      Options
}

func NewEngine(resources ResourceSetStore, tickets TicketStore, opts Options) *Engine {
	return &Engine{resources: resources, tickets: tickets, opts: opts.withDefaults()}
}

// RegisterResourceSet registers a protected resource for an owner subject.
func (e *Engine) RegisterResourceSet(ctx context.Context, rs *ResourceSet) (*ResourceSet, error) {
	if rs.Name == "" || len(rs.Scopes) == 0 {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "a resource set requires a name and at least one scope")
	}
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	if err := e.resources.SaveResourceSet(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (e *Engine) GetResourceSet(ctx context.Context, id string) (*ResourceSet, error) {
	rs, err := e.resources.GetResourceSet(ctx, id)
	if errors.Is(err, oauth.ErrNotFound) {
		return nil, oauth.NewError(ErrInvalidResourceSetID, "resource set %q does not exist", id)
	}
	return rs, err
}

func (e *Engine) UpdateResourceSet(ctx context.Context, rs *ResourceSet) error {
	err := e.resources.UpdateResourceSet(ctx, rs)
	if errors.Is(err, oauth.ErrNotFound) {
		return oauth.NewError(ErrInvalidResourceSetID, "resource set %q does not exist", rs.ID)
	}
	return err
}

func (e *Engine) DeleteResourceSet(ctx context.Context, id string) error {
	err := e.resources.DeleteResourceSet(ctx, id)
	if errors.Is(err, oauth.ErrNotFound) {
		return oauth.NewError(ErrInvalidResourceSetID, "resource set %q does not exist", id)
	}
	return err
}

// SearchResourceSets returns the owner's resource sets the requester may
// see: the requester's claims must satisfy at least one policy rule on the
// resource, and the requester must hold the search scope.
func (e *Engine) SearchResourceSets(ctx context.Context, owner string, requester Requester) ([]*ResourceSet, error) {
	all, err := e.resources.ListResourceSets(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []*ResourceSet
	for _, rs := range all {
		if requesterSatisfies(rs, requester) {
			out = append(out, rs)
		}
	}
	return out, nil
}

// requesterSatisfies applies the policy filter: ClientIDsAllowed
// empty-or-matching AND OpenIDProvider empty-or-matching-issuer AND the
// search scope present on the rule.
func requesterSatisfies(rs *ResourceSet, req Requester) bool {
	for _, policy := range rs.Policies {
		for _, rule := range policy.Rules {
			if len(rule.ClientIDsAllowed) > 0 && !contains(rule.ClientIDsAllowed, req.ClientID) {
				continue
			}
			if rule.OpenIDProvider != "" && rule.OpenIDProvider != req.Issuer {
				continue
			}
			if !contains(rule.Scopes, "search") {
				continue
			}
			return true
		}
	}
	return false
}

// RequestPermission batches the requested (resource, scopes) pairs into one
// permission ticket. Every resource must exist and every requested scope
// must be registered on its resource.
func (e *Engine) RequestPermission(ctx context.Context, requester Requester, requests []PermissionRequest) (*Ticket, error) {
	if len(requests) == 0 {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "at least one permission request is required")
	}
	var lines []TicketLine
	var owner string
	for _, pr := range requests {
		rs, err := e.resources.GetResourceSet(ctx, pr.ResourceSetID)
		if err != nil {
			if errors.Is(err, oauth.ErrNotFound) {
				return nil, oauth.NewError(ErrInvalidResourceSetID, "resource set %q does not exist", pr.ResourceSetID)
			}
			return nil, err
		}
		for _, sc := range pr.Scopes {
			if !rs.HasScope(sc) {
				return nil, oauth.NewError(ErrInvalidResourceScope, "scope %q is not registered on resource set %q", sc, pr.ResourceSetID)
			}
		}
		owner = rs.Owner
		lines = append(lines, TicketLine{ResourceSetID: pr.ResourceSetID, Scopes: pr.Scopes})
	}
	now := time.Now().UTC()
	t := &Ticket{
		ID:              uuid.NewString(),
		Lines:           lines,
		RequesterClaims: requester.Claims,
		OwnerSubject:    owner,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.opts.TicketTTL),
	}
	if err := e.tickets.SaveTicket(ctx, t); err != nil {
		return nil, err
	}
	slog.Info("permission ticket issued", "ticket_id", t.ID, "lines", len(lines))
	return t, nil
}

// ApproveTicket records the resource owner's approval. Approving an
// already-approved ticket is idempotent: it returns the same result with no
// further mutation.
func (e *Engine) ApproveTicket(ctx context.Context, ticketID, ownerSubject string) (*Ticket, error) {
	t, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(ErrInvalidTicket, "ticket %q does not exist", ticketID)
		}
		return nil, err
	}
	if t.Expired(time.Now()) {
		return nil, oauth.NewError(ErrInvalidTicket, "ticket %q is expired", ticketID)
	}
	if t.OwnerSubject != ownerSubject {
		return nil, oauth.NewError(ErrInvalidTicket, "ticket %q does not belong to this resource owner", ticketID)
	}
	if t.IsAuthorizedByRo {
		return t, nil
	}
	t.IsAuthorizedByRo = true
	if err := e.tickets.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Introspect returns the requester claims behind a ticket.
func (e *Engine) Introspect(ctx context.Context, ticketID string) (map[string]any, error) {
	t, err := e.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, oauth.NewError(ErrInvalidTicket, "ticket %q does not exist", ticketID)
		}
		return nil, err
	}
	if t.Expired(time.Now()) {
		return nil, oauth.NewError(ErrInvalidTicket, "ticket %q is expired", ticketID)
	}
	return t.RequesterClaims, nil
}

// StartSweeper garbage-collects expired tickets on a ticker until the
// context is cancelled.
func (e *Engine) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.tickets.DeleteExpired(ctx, time.Now())
				if err != nil {
					slog.Error("ticket sweep failed", "err", err)
					continue
				}
				if n > 0 {
					slog.Debug("swept expired tickets", "count", n)
				}
			}
		}
	}()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
