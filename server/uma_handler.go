package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/soteria-id/soteria/oauth"
	"github.com/soteria-id/soteria/uma"
)

// requesterFrom resolves the bearer token on a UMA request into the
// requester identity the policy engine evaluates.
func (h *Handler) requesterFrom(r *http.Request) (uma.Requester, error) {
	raw := r.Header.Get("Authorization")
	if !strings.HasPrefix(raw, "Bearer ") {
		return uma.Requester{}, oauth.NewError(oauth.ErrInvalidToken, "a bearer token is required")
	}
	t, err := h.grants.TokenInfo(r.Context(), strings.TrimPrefix(raw, "Bearer "))
	if err != nil {
		return uma.Requester{}, err
	}
	return uma.Requester{
		ClientID: t.ClientID,
		Issuer:   h.issuerOf(r),
		Scopes:   t.ScopeList(),
		Claims:   t.UserClaims,
	}, nil
}

// RegisterResourceSet handles resource set registration POSTs.
func (h *Handler) RegisterResourceSet(w http.ResponseWriter, r *http.Request) {
	requester, err := h.requesterFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var rs uma.ResourceSet
	if err := decodeJSON(r, &rs); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "%s", err.Error()))
		return
	}
	if rs.Owner == "" {
		rs.Owner = requester.ClientID
	}
	out, err := h.uma.RegisterResourceSet(r.Context(), &rs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// GetResourceSet handles GET /uma/resource_set/{id}.
func (h *Handler) GetResourceSet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requesterFrom(r); err != nil {
		h.writeError(w, err)
		return
	}
	rs, err := h.uma.GetResourceSet(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// UpdateResourceSet handles PUT /uma/resource_set/{id}.
func (h *Handler) UpdateResourceSet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requesterFrom(r); err != nil {
		h.writeError(w, err)
		return
	}
	var rs uma.ResourceSet
	if err := decodeJSON(r, &rs); err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "%s", err.Error()))
		return
	}
	rs.ID = r.PathValue("id")
	if err := h.uma.UpdateResourceSet(r.Context(), &rs); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &rs)
}

// DeleteResourceSet handles DELETE /uma/resource_set/{id}.
func (h *Handler) DeleteResourceSet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requesterFrom(r); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.uma.DeleteResourceSet(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchResourceSets handles GET /uma/resource_set?owner=... and returns the
// subset of the owner's resources the requester's policies allow it to see.
func (h *Handler) SearchResourceSets(w http.ResponseWriter, r *http.Request) {
	requester, err := h.requesterFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sets, err := h.uma.SearchResourceSets(r.Context(), r.URL.Query().Get("owner"), requester)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ids := make([]string, 0, len(sets))
	for _, rs := range sets {
		ids = append(ids, rs.ID)
	}
	writeJSON(w, http.StatusOK, ids)
}

// RequestPermission handles POST /uma/perm. The body may be a single
// permission request or an array; both produce one ticket.
func (h *Handler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	requester, err := h.requesterFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	requests, err := decodePermissionRequests(r)
	if err != nil {
		h.writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "%s", err.Error()))
		return
	}
	ticket, err := h.uma.RequestPermission(r.Context(), requester, requests)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.TicketIssued()
	writeJSON(w, http.StatusCreated, map[string]string{"ticket": ticket.ID})
}

// ApproveTicket handles the resource owner approving a pending ticket. The
// approving subject comes from the host session.
func (h *Handler) ApproveTicket(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(r)
	if !principal.Authenticated {
		h.writeError(w, oauth.NewError(oauth.ErrLoginRequired, "the resource owner is not authenticated"))
		return
	}
	ticket, err := h.uma.ApproveTicket(r.Context(), r.PathValue("id"), principal.Subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// IntrospectTicket returns the requesting party's claims behind a ticket, so
// the resource owner can decide on the approval.
func (h *Handler) IntrospectTicket(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(r)
	if !principal.Authenticated {
		h.writeError(w, oauth.NewError(oauth.ErrLoginRequired, "the resource owner is not authenticated"))
		return
	}
	claims, err := h.uma.Introspect(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func decodePermissionRequests(r *http.Request) ([]uma.PermissionRequest, error) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var many []uma.PermissionRequest
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one uma.PermissionRequest
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []uma.PermissionRequest{one}, nil
}
