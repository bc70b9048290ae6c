package entities

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
)

// Handlers exposes the entity HTTP endpoints. All routes require a verified
// access token; membership and role checks happen per operation.
type Handlers struct {
	service Service
	logger  *observability.Logger
}

// NewHandlers creates entity handlers
func NewHandlers(service Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the entity endpoints on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/entities", h.List).Methods(http.MethodGet)
	router.HandleFunc("/entities", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/entities/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/entities/{id}/users", h.ListUsers).Methods(http.MethodGet)
}

// List returns the entities the caller belongs to
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	list, err := h.service.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list entities")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, list)
}

// Create creates an entity; the caller becomes its first admin member
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req CreateEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	entity, err := h.service.Create(r.Context(), req.Name, req.Description, claims.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to create entity")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, entity)
}

// Get returns an entity. A non-member gets Forbidden even when the entity
// does not exist.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	entityID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	member, err := h.service.HasMembership(r.Context(), claims.UserID, entityID)
	if err != nil {
		h.logger.WithError(err).Error("failed to check membership")
		httputil.WriteInternalError(w, "Database error")
		return
	}
	if !member {
		httputil.WriteForbidden(w, "Access denied")
		return
	}

	entity, err := h.service.Get(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Entity not found")
			return
		}
		h.logger.WithError(err).Error("failed to get entity")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, entity)
}

// Update applies a partial update; admin role required
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	entityID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	admin, err := h.service.HasRole(r.Context(), claims.UserID, entityID, RoleAdmin)
	if err != nil {
		h.logger.WithError(err).Error("failed to check role")
		httputil.WriteInternalError(w, "Database error")
		return
	}
	if !admin {
		httputil.WriteForbidden(w, "Admin access required")
		return
	}

	var req UpdateEntityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	entity, err := h.service.Update(r.Context(), entityID, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Entity not found")
			return
		}
		h.logger.WithError(err).Error("failed to update entity")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, entity)
}

// ListUsers returns the entity's members with contact details; membership
// required
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	entityID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	member, err := h.service.HasMembership(r.Context(), claims.UserID, entityID)
	if err != nil {
		h.logger.WithError(err).Error("failed to check membership")
		httputil.WriteInternalError(w, "Database error")
		return
	}
	if !member {
		httputil.WriteForbidden(w, "Access denied")
		return
	}

	members, err := h.service.ListMembers(r.Context(), entityID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list members")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, members)
}
