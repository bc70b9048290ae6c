package rgpd

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
)

// MembershipChecker answers whether a user belongs to an entity. Satisfied
// by the entities service.
type MembershipChecker interface {
	HasMembership(ctx context.Context, userID, entityID uuid.UUID) (bool, error)
}

// Handlers exposes the compliance record HTTP endpoints
type Handlers struct {
	store       Store
	memberships MembershipChecker
	logger      *observability.Logger
}

// NewHandlers creates compliance record handlers
func NewHandlers(store Store, memberships MembershipChecker, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:       store,
		memberships: memberships,
		logger:      logger,
	}
}

// RegisterRoutes mounts the record endpoints twice: under the entity-scoped
// path and under the legacy flat path where entity_id travels as a query
// parameter. Both shapes share handlers.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	for _, prefix := range []string{"/entities/{entity_id}/rgpd", "/rgpd"} {
		sub := router.PathPrefix(prefix).Subrouter()
		sub.HandleFunc("/register", h.ListRegister).Methods(http.MethodGet)
		sub.HandleFunc("/register", h.CreateRegister).Methods(http.MethodPost)
		sub.HandleFunc("/register/{id}", h.UpdateRegister).Methods(http.MethodPut)
		sub.HandleFunc("/access-requests", h.ListAccessRequests).Methods(http.MethodGet)
		sub.HandleFunc("/access-requests", h.CreateAccessRequest).Methods(http.MethodPost)
		sub.HandleFunc("/access-requests/{id}", h.GetAccessRequest).Methods(http.MethodGet)
		sub.HandleFunc("/access-requests/{id}/respond", h.Respond).Methods(http.MethodPost)
		sub.HandleFunc("/breaches", h.ListBreaches).Methods(http.MethodGet)
		sub.HandleFunc("/breaches", h.CreateBreach).Methods(http.MethodPost)
		sub.HandleFunc("/breaches/{id}", h.GetBreach).Methods(http.MethodGet)
		sub.HandleFunc("/breaches/{id}", h.UpdateBreach).Methods(http.MethodPut)
	}
}

// entityIDFromRequest resolves the owning entity from the path segment or,
// on the legacy routes, the entity_id query parameter. The bool reports
// whether an ID was supplied at all.
func entityIDFromRequest(r *http.Request) (uuid.UUID, bool, error) {
	if raw, ok := mux.Vars(r)["entity_id"]; ok {
		id, err := uuid.Parse(raw)
		return id, true, err
	}
	return httputil.ParseQueryUUID(r, "entity_id")
}

// requireEntityID resolves the entity and checks the caller's membership.
// Writes the error response and returns false when access is not granted.
func (h *Handlers) requireEntityID(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (uuid.UUID, bool) {
	entityID, present, err := entityIDFromRequest(r)
	if err != nil || !present {
		httputil.WriteBadRequest(w, "Missing entity_id")
		return uuid.Nil, false
	}
	if !h.checkMembership(w, r, userID, entityID) {
		return uuid.Nil, false
	}
	return entityID, true
}

func (h *Handlers) checkMembership(w http.ResponseWriter, r *http.Request, userID, entityID uuid.UUID) bool {
	member, err := h.memberships.HasMembership(r.Context(), userID, entityID)
	if err != nil {
		h.logger.WithError(err).Error("failed to check membership")
		httputil.WriteInternalError(w, "Database error")
		return false
	}
	if !member {
		httputil.WriteForbidden(w, "Access denied")
		return false
	}
	return true
}

func claimsOrUnauthorized(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
	}
	return claims
}

// ListRegister lists register entries: scoped to the given entity when one
// is supplied, otherwise across every entity the caller belongs to
func (h *Handlers) ListRegister(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, present, err := entityIDFromRequest(r)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid entity_id")
		return
	}

	var entries []*RegisterEntry
	if present {
		if !h.checkMembership(w, r, claims.UserID, entityID) {
			return
		}
		entries, err = h.store.ListRegisterEntries(r.Context(), entityID)
	} else {
		entries, err = h.store.ListRegisterEntriesForUser(r.Context(), claims.UserID)
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to list register entries")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, entries)
}

// CreateRegister adds an entry to the entity's processing register
func (h *Handlers) CreateRegister(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, ok := h.requireEntityID(w, r, claims.UserID)
	if !ok {
		return
	}

	var req CreateRegisterEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	entry, err := h.store.CreateRegisterEntry(r.Context(), entityID, &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create register entry")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, entry)
}

// UpdateRegister applies a partial update to a register entry. The owning
// entity is resolved from the record before the membership check, so an
// absent record reports NotFound.
func (h *Handlers) UpdateRegister(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entryID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.store.GetRegisterEntry(r.Context(), entryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Entry not found")
			return
		}
		h.logger.WithError(err).Error("failed to get register entry")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if !h.checkMembership(w, r, claims.UserID, entry.EntityID) {
		return
	}

	var req UpdateRegisterEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	updated, err := h.store.UpdateRegisterEntry(r.Context(), entryID, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Entry not found")
			return
		}
		h.logger.WithError(err).Error("failed to update register entry")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, updated)
}

// ListAccessRequests lists access requests, scoped like ListRegister
func (h *Handlers) ListAccessRequests(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, present, err := entityIDFromRequest(r)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid entity_id")
		return
	}

	var requests []*AccessRequest
	if present {
		if !h.checkMembership(w, r, claims.UserID, entityID) {
			return
		}
		requests, err = h.store.ListAccessRequests(r.Context(), entityID)
	} else {
		requests, err = h.store.ListAccessRequestsForUser(r.Context(), claims.UserID)
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to list access requests")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, requests)
}

// CreateAccessRequest records a new data subject request with status
// "pending"
func (h *Handlers) CreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, ok := h.requireEntityID(w, r, claims.UserID)
	if !ok {
		return
	}

	var req CreateAccessRequestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	request, err := h.store.CreateAccessRequest(r.Context(), entityID, &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create access request")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, request)
}

// GetAccessRequest returns a single access request after resolving its
// owning entity
func (h *Handlers) GetAccessRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	requestID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	request, err := h.store.GetAccessRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Request not found")
			return
		}
		h.logger.WithError(err).Error("failed to get access request")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if !h.checkMembership(w, r, claims.UserID, request.EntityID) {
		return
	}

	httputil.WriteSuccess(w, request)
}

// Respond transitions an access request. The status string is stored as
// given; "completed" also stamps completed_at.
func (h *Handlers) Respond(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	requestID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	request, err := h.store.GetAccessRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Request not found")
			return
		}
		h.logger.WithError(err).Error("failed to get access request")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if !h.checkMembership(w, r, claims.UserID, request.EntityID) {
		return
	}

	var req RespondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Status, "status") {
		return
	}

	updated, err := h.store.RespondToAccessRequest(r.Context(), requestID, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Request not found")
			return
		}
		h.logger.WithError(err).Error("failed to respond to access request")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, updated)
}

// ListBreaches lists breaches, scoped like ListRegister, ordered by
// discovery date
func (h *Handlers) ListBreaches(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, present, err := entityIDFromRequest(r)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid entity_id")
		return
	}

	var breaches []*Breach
	if present {
		if !h.checkMembership(w, r, claims.UserID, entityID) {
			return
		}
		breaches, err = h.store.ListBreaches(r.Context(), entityID)
	} else {
		breaches, err = h.store.ListBreachesForUser(r.Context(), claims.UserID)
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to list breaches")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, breaches)
}

// CreateBreach records a new breach with status "detected"
func (h *Handlers) CreateBreach(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	entityID, ok := h.requireEntityID(w, r, claims.UserID)
	if !ok {
		return
	}

	var req CreateBreachRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	breach, err := h.store.CreateBreach(r.Context(), entityID, &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create breach")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, breach)
}

// GetBreach returns a single breach after resolving its owning entity
func (h *Handlers) GetBreach(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	breachID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	breach, err := h.store.GetBreach(r.Context(), breachID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Breach not found")
			return
		}
		h.logger.WithError(err).Error("failed to get breach")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if !h.checkMembership(w, r, claims.UserID, breach.EntityID) {
		return
	}

	httputil.WriteSuccess(w, breach)
}

// UpdateBreach applies a partial update to a breach
func (h *Handlers) UpdateBreach(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrUnauthorized(w, r)
	if claims == nil {
		return
	}

	breachID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	breach, err := h.store.GetBreach(r.Context(), breachID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Breach not found")
			return
		}
		h.logger.WithError(err).Error("failed to get breach")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if !h.checkMembership(w, r, claims.UserID, breach.EntityID) {
		return
	}

	var req UpdateBreachRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	updated, err := h.store.UpdateBreach(r.Context(), breachID, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Breach not found")
			return
		}
		h.logger.WithError(err).Error("failed to update breach")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, updated)
}
