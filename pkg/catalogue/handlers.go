package catalogue

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
	"github.com/custodialabs/custodia/pkg/storage"
)

// maxUploadBytes caps license key file uploads
const maxUploadBytes = 32 << 20

// Handlers exposes the catalogue HTTP endpoints. Catalogue items are
// global: any authenticated user can read and write them.
type Handlers struct {
	store       Store
	files       storage.Storage
	storageType string
	logger      *observability.Logger
}

// NewHandlers creates catalogue handlers. storageType names the configured
// file backend and is recorded on keys when a file is uploaded.
func NewHandlers(store Store, files storage.Storage, storageType string, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:       store,
		files:       files,
		storageType: storageType,
		logger:      logger,
	}
}

// RegisterRoutes mounts the catalogue endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/catalogue").Subrouter()

	sub.HandleFunc("/endpoints", h.ListEndpoints).Methods(http.MethodGet)
	sub.HandleFunc("/endpoints", h.CreateEndpoint).Methods(http.MethodPost)
	sub.HandleFunc("/endpoints/{id}", h.GetEndpoint).Methods(http.MethodGet)
	sub.HandleFunc("/endpoints/{id}", h.UpdateEndpoint).Methods(http.MethodPut)

	sub.HandleFunc("/license-keys", h.ListLicenseKeys).Methods(http.MethodGet)
	sub.HandleFunc("/license-keys", h.CreateLicenseKey).Methods(http.MethodPost)
	sub.HandleFunc("/license-keys/{id}", h.GetLicenseKey).Methods(http.MethodGet)
	sub.HandleFunc("/license-keys/{id}", h.UpdateLicenseKey).Methods(http.MethodPut)
	sub.HandleFunc("/license-keys/{id}/upload", h.UploadLicenseKeyFile).Methods(http.MethodPost)
	sub.HandleFunc("/license-keys/{id}/file", h.DownloadLicenseKeyFile).Methods(http.MethodGet)

	sub.HandleFunc("/software-versions", h.ListSoftwareVersions).Methods(http.MethodGet)
	sub.HandleFunc("/software-versions", h.CreateSoftwareVersion).Methods(http.MethodPost)
	sub.HandleFunc("/software-versions/{id}", h.GetSoftwareVersion).Methods(http.MethodGet)
	sub.HandleFunc("/software-versions/{id}", h.UpdateSoftwareVersion).Methods(http.MethodPut)

	sub.HandleFunc("/encryption-algorithms", h.ListEncryptionAlgorithms).Methods(http.MethodGet)
	sub.HandleFunc("/encryption-algorithms", h.CreateEncryptionAlgorithm).Methods(http.MethodPost)
	sub.HandleFunc("/encryption-algorithms/{id}", h.GetEncryptionAlgorithm).Methods(http.MethodGet)
	sub.HandleFunc("/encryption-algorithms/{id}", h.UpdateEncryptionAlgorithm).Methods(http.MethodPut)

	sub.HandleFunc("/relations", h.ListRelations).Methods(http.MethodGet)
	sub.HandleFunc("/relations", h.CreateRelation).Methods(http.MethodPost)
}

func (h *Handlers) authenticated(w http.ResponseWriter, r *http.Request) bool {
	if auth.ClaimsFromContext(r.Context()) == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return false
	}
	return true
}

// ListEndpoints lists endpoints, optionally filtered by ?endpoint_type=
func (h *Handlers) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	endpointType := httputil.ParseQueryString(r, "endpoint_type", "")
	endpoints, err := h.store.ListEndpoints(r.Context(), endpointType)
	if err != nil {
		h.logger.WithError(err).Error("failed to list endpoints")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, endpoints)
}

// CreateEndpoint adds an endpoint to the catalogue
func (h *Handlers) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	var req CreateEndpointRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.EndpointType, "endpoint_type") {
		return
	}

	endpoint, err := h.store.CreateEndpoint(r.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create endpoint")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, endpoint)
}

// GetEndpoint returns a single endpoint
func (h *Handlers) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	endpoint, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Endpoint not found")
			return
		}
		h.logger.WithError(err).Error("failed to get endpoint")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, endpoint)
}

// UpdateEndpoint applies a partial update to an endpoint
func (h *Handlers) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateEndpointRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	endpoint, err := h.store.UpdateEndpoint(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Endpoint not found")
			return
		}
		h.logger.WithError(err).Error("failed to update endpoint")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, endpoint)
}

// ListLicenseKeys lists license keys
func (h *Handlers) ListLicenseKeys(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	keys, err := h.store.ListLicenseKeys(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list license keys")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, keys)
}

// CreateLicenseKey adds a license key to the catalogue
func (h *Handlers) CreateLicenseKey(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	var req CreateLicenseKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.LicenseType, "license_type") {
		return
	}

	key, err := h.store.CreateLicenseKey(r.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create license key")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, key)
}

// GetLicenseKey returns a single license key
func (h *Handlers) GetLicenseKey(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	key, err := h.store.GetLicenseKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "License key not found")
			return
		}
		h.logger.WithError(err).Error("failed to get license key")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, key)
}

// UpdateLicenseKey applies a partial update to a license key
func (h *Handlers) UpdateLicenseKey(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateLicenseKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, err := h.store.UpdateLicenseKey(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "License key not found")
			return
		}
		h.logger.WithError(err).Error("failed to update license key")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, key)
}

// UploadLicenseKeyFile attaches a file to a license key. The file travels
// as the "file" part of a multipart form and lands in the configured
// storage backend under the key's ID.
func (h *Handlers) UploadLicenseKeyFile(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetLicenseKey(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "License key not found")
			return
		}
		h.logger.WithError(err).Error("failed to get license key")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteBadRequest(w, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "Missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to read file")
		return
	}

	path, err := h.files.Save(r.Context(), data, header.Filename, id.String())
	if err != nil {
		h.logger.WithError(err).WithField("license_key_id", id.String()).Error("failed to store license key file")
		httputil.WriteInternalError(w, "Storage error")
		return
	}

	key, err := h.store.SetLicenseKeyFile(r.Context(), id, path, header.Filename, int64(len(data)), h.storageType)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "License key not found")
			return
		}
		h.logger.WithError(err).Error("failed to record license key file")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, key)
}

// DownloadLicenseKeyFile streams a license key's attached file back to the
// caller
func (h *Handlers) DownloadLicenseKeyFile(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	key, err := h.store.GetLicenseKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "License key not found")
			return
		}
		h.logger.WithError(err).Error("failed to get license key")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if key.FilePath == nil {
		httputil.WriteNotFound(w, "No file attached")
		return
	}

	data, err := h.files.Get(r.Context(), *key.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "No file attached")
			return
		}
		h.logger.WithError(err).WithField("license_key_id", id.String()).Error("failed to read license key file")
		httputil.WriteInternalError(w, "Storage error")
		return
	}

	fileName := "license-key"
	if key.FileName != nil {
		fileName = *key.FileName
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListSoftwareVersions lists software versions
func (h *Handlers) ListSoftwareVersions(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	versions, err := h.store.ListSoftwareVersions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list software versions")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, versions)
}

// CreateSoftwareVersion adds a software version to the catalogue
func (h *Handlers) CreateSoftwareVersion(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	var req CreateSoftwareVersionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Version, "version") {
		return
	}

	version, err := h.store.CreateSoftwareVersion(r.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create software version")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, version)
}

// GetSoftwareVersion returns a single software version
func (h *Handlers) GetSoftwareVersion(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	version, err := h.store.GetSoftwareVersion(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Software version not found")
			return
		}
		h.logger.WithError(err).Error("failed to get software version")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, version)
}

// UpdateSoftwareVersion applies a partial update to a software version
func (h *Handlers) UpdateSoftwareVersion(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateSoftwareVersionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	version, err := h.store.UpdateSoftwareVersion(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Software version not found")
			return
		}
		h.logger.WithError(err).Error("failed to update software version")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, version)
}

// ListEncryptionAlgorithms lists encryption algorithms
func (h *Handlers) ListEncryptionAlgorithms(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	algorithms, err := h.store.ListEncryptionAlgorithms(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list encryption algorithms")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, algorithms)
}

// CreateEncryptionAlgorithm adds an encryption algorithm to the catalogue
func (h *Handlers) CreateEncryptionAlgorithm(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	var req CreateEncryptionAlgorithmRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.AlgorithmType, "algorithm_type") {
		return
	}

	algorithm, err := h.store.CreateEncryptionAlgorithm(r.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create encryption algorithm")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, algorithm)
}

// GetEncryptionAlgorithm returns a single encryption algorithm
func (h *Handlers) GetEncryptionAlgorithm(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	algorithm, err := h.store.GetEncryptionAlgorithm(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Encryption algorithm not found")
			return
		}
		h.logger.WithError(err).Error("failed to get encryption algorithm")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, algorithm)
}

// UpdateEncryptionAlgorithm applies a partial update to an encryption
// algorithm
func (h *Handlers) UpdateEncryptionAlgorithm(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateEncryptionAlgorithmRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	algorithm, err := h.store.UpdateEncryptionAlgorithm(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "Encryption algorithm not found")
			return
		}
		h.logger.WithError(err).Error("failed to update encryption algorithm")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, algorithm)
}

// CreateRelation links two catalogue items
func (h *Handlers) CreateRelation(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	var req CreateRelationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SourceType, "source_type") ||
		!httputil.RequireNonEmpty(w, req.TargetType, "target_type") ||
		!httputil.RequireNonEmpty(w, req.RelationType, "relation_type") {
		return
	}

	relation, err := h.store.CreateRelation(r.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("failed to create relation")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteCreated(w, relation)
}

// ListRelations lists relations, optionally filtered by ?source_id=
func (h *Handlers) ListRelations(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}

	sourceID, _, err := httputil.ParseQueryUUID(r, "source_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	relations, err := h.store.ListRelations(r.Context(), sourceID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list relations")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, relations)
}
