package catalogue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/observability"
	"github.com/custodialabs/custodia/pkg/storage"
)

// mockStore implements Store with configurable behavior per test. Funcs
// left nil fail the test if called.
type mockStore struct {
	t *testing.T

	createEndpoint func(ctx context.Context, req *CreateEndpointRequest) (*Endpoint, error)
	listEndpoints  func(ctx context.Context, endpointType string) ([]*Endpoint, error)
	getEndpoint    func(ctx context.Context, id uuid.UUID) (*Endpoint, error)
	updateEndpoint func(ctx context.Context, id uuid.UUID, req *UpdateEndpointRequest) (*Endpoint, error)

	createLicenseKey  func(ctx context.Context, req *CreateLicenseKeyRequest) (*LicenseKey, error)
	listLicenseKeys   func(ctx context.Context) ([]*LicenseKey, error)
	getLicenseKey     func(ctx context.Context, id uuid.UUID) (*LicenseKey, error)
	updateLicenseKey  func(ctx context.Context, id uuid.UUID, req *UpdateLicenseKeyRequest) (*LicenseKey, error)
	setLicenseKeyFile func(ctx context.Context, id uuid.UUID, filePath, fileName string, fileSize int64, storageType string) (*LicenseKey, error)

	createSoftwareVersion func(ctx context.Context, req *CreateSoftwareVersionRequest) (*SoftwareVersion, error)
	listSoftwareVersions  func(ctx context.Context) ([]*SoftwareVersion, error)
	getSoftwareVersion    func(ctx context.Context, id uuid.UUID) (*SoftwareVersion, error)
	updateSoftwareVersion func(ctx context.Context, id uuid.UUID, req *UpdateSoftwareVersionRequest) (*SoftwareVersion, error)

	createEncryptionAlgorithm func(ctx context.Context, req *CreateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error)
	listEncryptionAlgorithms  func(ctx context.Context) ([]*EncryptionAlgorithm, error)
	getEncryptionAlgorithm    func(ctx context.Context, id uuid.UUID) (*EncryptionAlgorithm, error)
	updateEncryptionAlgorithm func(ctx context.Context, id uuid.UUID, req *UpdateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error)

	createRelation func(ctx context.Context, req *CreateRelationRequest) (*Relation, error)
	listRelations  func(ctx context.Context, sourceID uuid.UUID) ([]*Relation, error)
}

func (m *mockStore) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (*Endpoint, error) {
	if m.createEndpoint == nil {
		m.t.Fatal("unexpected CreateEndpoint call")
	}
	return m.createEndpoint(ctx, req)
}

func (m *mockStore) ListEndpoints(ctx context.Context, endpointType string) ([]*Endpoint, error) {
	if m.listEndpoints == nil {
		m.t.Fatal("unexpected ListEndpoints call")
	}
	return m.listEndpoints(ctx, endpointType)
}

func (m *mockStore) GetEndpoint(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	if m.getEndpoint == nil {
		m.t.Fatal("unexpected GetEndpoint call")
	}
	return m.getEndpoint(ctx, id)
}

func (m *mockStore) UpdateEndpoint(ctx context.Context, id uuid.UUID, req *UpdateEndpointRequest) (*Endpoint, error) {
	if m.updateEndpoint == nil {
		m.t.Fatal("unexpected UpdateEndpoint call")
	}
	return m.updateEndpoint(ctx, id, req)
}

func (m *mockStore) CreateLicenseKey(ctx context.Context, req *CreateLicenseKeyRequest) (*LicenseKey, error) {
	if m.createLicenseKey == nil {
		m.t.Fatal("unexpected CreateLicenseKey call")
	}
	return m.createLicenseKey(ctx, req)
}

func (m *mockStore) ListLicenseKeys(ctx context.Context) ([]*LicenseKey, error) {
	if m.listLicenseKeys == nil {
		m.t.Fatal("unexpected ListLicenseKeys call")
	}
	return m.listLicenseKeys(ctx)
}

func (m *mockStore) GetLicenseKey(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
	if m.getLicenseKey == nil {
		m.t.Fatal("unexpected GetLicenseKey call")
	}
	return m.getLicenseKey(ctx, id)
}

func (m *mockStore) UpdateLicenseKey(ctx context.Context, id uuid.UUID, req *UpdateLicenseKeyRequest) (*LicenseKey, error) {
	if m.updateLicenseKey == nil {
		m.t.Fatal("unexpected UpdateLicenseKey call")
	}
	return m.updateLicenseKey(ctx, id, req)
}

func (m *mockStore) SetLicenseKeyFile(ctx context.Context, id uuid.UUID, filePath, fileName string, fileSize int64, storageType string) (*LicenseKey, error) {
	if m.setLicenseKeyFile == nil {
		m.t.Fatal("unexpected SetLicenseKeyFile call")
	}
	return m.setLicenseKeyFile(ctx, id, filePath, fileName, fileSize, storageType)
}

func (m *mockStore) CreateSoftwareVersion(ctx context.Context, req *CreateSoftwareVersionRequest) (*SoftwareVersion, error) {
	if m.createSoftwareVersion == nil {
		m.t.Fatal("unexpected CreateSoftwareVersion call")
	}
	return m.createSoftwareVersion(ctx, req)
}

func (m *mockStore) ListSoftwareVersions(ctx context.Context) ([]*SoftwareVersion, error) {
	if m.listSoftwareVersions == nil {
		m.t.Fatal("unexpected ListSoftwareVersions call")
	}
	return m.listSoftwareVersions(ctx)
}

func (m *mockStore) GetSoftwareVersion(ctx context.Context, id uuid.UUID) (*SoftwareVersion, error) {
	if m.getSoftwareVersion == nil {
		m.t.Fatal("unexpected GetSoftwareVersion call")
	}
	return m.getSoftwareVersion(ctx, id)
}

func (m *mockStore) UpdateSoftwareVersion(ctx context.Context, id uuid.UUID, req *UpdateSoftwareVersionRequest) (*SoftwareVersion, error) {
	if m.updateSoftwareVersion == nil {
		m.t.Fatal("unexpected UpdateSoftwareVersion call")
	}
	return m.updateSoftwareVersion(ctx, id, req)
}

func (m *mockStore) CreateEncryptionAlgorithm(ctx context.Context, req *CreateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error) {
	if m.createEncryptionAlgorithm == nil {
		m.t.Fatal("unexpected CreateEncryptionAlgorithm call")
	}
	return m.createEncryptionAlgorithm(ctx, req)
}

func (m *mockStore) ListEncryptionAlgorithms(ctx context.Context) ([]*EncryptionAlgorithm, error) {
	if m.listEncryptionAlgorithms == nil {
		m.t.Fatal("unexpected ListEncryptionAlgorithms call")
	}
	return m.listEncryptionAlgorithms(ctx)
}

func (m *mockStore) GetEncryptionAlgorithm(ctx context.Context, id uuid.UUID) (*EncryptionAlgorithm, error) {
	if m.getEncryptionAlgorithm == nil {
		m.t.Fatal("unexpected GetEncryptionAlgorithm call")
	}
	return m.getEncryptionAlgorithm(ctx, id)
}

func (m *mockStore) UpdateEncryptionAlgorithm(ctx context.Context, id uuid.UUID, req *UpdateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error) {
	if m.updateEncryptionAlgorithm == nil {
		m.t.Fatal("unexpected UpdateEncryptionAlgorithm call")
	}
	return m.updateEncryptionAlgorithm(ctx, id, req)
}

func (m *mockStore) CreateRelation(ctx context.Context, req *CreateRelationRequest) (*Relation, error) {
	if m.createRelation == nil {
		m.t.Fatal("unexpected CreateRelation call")
	}
	return m.createRelation(ctx, req)
}

func (m *mockStore) ListRelations(ctx context.Context, sourceID uuid.UUID) ([]*Relation, error) {
	if m.listRelations == nil {
		m.t.Fatal("unexpected ListRelations call")
	}
	return m.listRelations(ctx, sourceID)
}

// memoryStorage keeps uploaded blobs in a map
type memoryStorage struct {
	blobs map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{blobs: map[string][]byte{}}
}

func (s *memoryStorage) Save(ctx context.Context, data []byte, fileName, ownerID string) (string, error) {
	key := path.Join(ownerID, path.Base(fileName))
	s.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *memoryStorage) Get(ctx context.Context, filePath string) ([]byte, error) {
	data, ok := s.blobs[filePath]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *memoryStorage) Delete(ctx context.Context, filePath string) error {
	if _, ok := s.blobs[filePath]; !ok {
		return storage.ErrNotFound
	}
	delete(s.blobs, filePath)
	return nil
}

func (s *memoryStorage) Size(ctx context.Context, filePath string) (int64, error) {
	data, ok := s.blobs[filePath]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

func testHandlers(store Store, files storage.Storage) *Handlers {
	logger := observability.NewLogger(observability.DebugLevel, io.Discard)
	return NewHandlers(store, files, storage.TypeLocal, logger)
}

func doRequest(t *testing.T, h *Handlers, req *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		claims := &auth.Claims{UserID: uuid.New(), Email: "user@example.com", TokenType: auth.TokenTypeAccess}
		req = req.WithContext(auth.ContextWithClaims(req.Context(), claims))
	}
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(payload))
}

func TestListEndpoints_PassesTypeFilter(t *testing.T) {
	store := &mockStore{
		t: t,
		listEndpoints: func(ctx context.Context, endpointType string) ([]*Endpoint, error) {
			assert.Equal(t, "machine", endpointType)
			return []*Endpoint{{ID: uuid.New(), Name: "db-primary", EndpointType: "machine"}}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/catalogue/endpoints?endpoint_type=machine", nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var endpoints []Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &endpoints))
	assert.Len(t, endpoints, 1)
}

func TestCreateEndpoint_MissingName(t *testing.T) {
	h := testHandlers(&mockStore{t: t}, newMemoryStorage())

	req := jsonRequest(t, http.MethodPost, "/catalogue/endpoints", CreateEndpointRequest{EndpointType: "url"})
	rec := doRequest(t, h, req, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEndpoint_NotFound(t *testing.T) {
	store := &mockStore{
		t: t,
		getEndpoint: func(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
			return nil, ErrNotFound
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/catalogue/endpoints/"+uuid.NewString(), nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Endpoint not found"}`, rec.Body.String())
}

func TestListEndpoints_Unauthenticated(t *testing.T) {
	h := testHandlers(&mockStore{t: t}, newMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/catalogue/endpoints", nil)
	rec := doRequest(t, h, req, false)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Not authenticated"}`, rec.Body.String())
}

func TestUploadLicenseKeyFile(t *testing.T) {
	keyID := uuid.New()
	files := newMemoryStorage()
	store := &mockStore{
		t: t,
		getLicenseKey: func(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
			return &LicenseKey{ID: id, Name: "cad-tool", LicenseType: LicenseTypeFile, StorageType: "local"}, nil
		},
		setLicenseKeyFile: func(ctx context.Context, id uuid.UUID, filePath, fileName string, fileSize int64, storageType string) (*LicenseKey, error) {
			assert.Equal(t, keyID, id)
			assert.Equal(t, "license.dat", fileName)
			assert.Equal(t, int64(len("binary license payload")), fileSize)
			assert.Equal(t, storage.TypeLocal, storageType)
			now := time.Now().UTC()
			return &LicenseKey{
				ID: id, Name: "cad-tool", LicenseType: LicenseTypeFile,
				FilePath: &filePath, FileName: &fileName, FileSize: &fileSize,
				StorageType: storageType, CreatedAt: now, UpdatedAt: now,
			}, nil
		},
	}
	h := testHandlers(store, files)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "license.dat")
	require.NoError(t, err)
	_, err = part.Write([]byte("binary license payload"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/catalogue/license-keys/"+keyID.String()+"/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var key LicenseKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &key))
	require.NotNil(t, key.FilePath)

	stored, err := files.Get(context.Background(), *key.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("binary license payload"), stored)
}

func TestUploadLicenseKeyFile_MissingPart(t *testing.T) {
	store := &mockStore{
		t: t,
		getLicenseKey: func(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
			return &LicenseKey{ID: id}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("name", "not a file"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/catalogue/license-keys/"+uuid.NewString()+"/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := doRequest(t, h, req, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadLicenseKeyFile_KeyNotFound(t *testing.T) {
	store := &mockStore{
		t: t,
		getLicenseKey: func(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
			return nil, ErrNotFound
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := httptest.NewRequest(http.MethodPost, "/catalogue/license-keys/"+uuid.NewString()+"/upload", nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"License key not found"}`, rec.Body.String())
}

func TestDownloadLicenseKeyFile(t *testing.T) {
	keyID := uuid.New()
	files := newMemoryStorage()
	filePath, err := files.Save(context.Background(), []byte("payload"), "license.dat", keyID.String())
	require.NoError(t, err)

	fileName := "license.dat"
	store := &mockStore{
		t: t,
		getLicenseKey: func(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
			return &LicenseKey{ID: id, FilePath: &filePath, FileName: &fileName, StorageType: "local"}, nil
		},
	}
	h := testHandlers(store, files)

	req := httptest.NewRequest(http.MethodGet, "/catalogue/license-keys/"+keyID.String()+"/file", nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "license.dat")
}

func TestDownloadLicenseKeyFile_NoFile(t *testing.T) {
	store := &mockStore{
		t: t,
		getLicenseKey: func(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
			return &LicenseKey{ID: id, StorageType: "local"}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/catalogue/license-keys/"+uuid.NewString()+"/file", nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No file attached"}`, rec.Body.String())
}

func TestCreateSoftwareVersion(t *testing.T) {
	store := &mockStore{
		t: t,
		createSoftwareVersion: func(ctx context.Context, req *CreateSoftwareVersionRequest) (*SoftwareVersion, error) {
			now := time.Now().UTC()
			return &SoftwareVersion{
				ID: uuid.New(), Name: req.Name, Version: req.Version,
				Metadata: req.Metadata, CreatedAt: now, UpdatedAt: now,
			}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := jsonRequest(t, http.MethodPost, "/catalogue/software-versions", CreateSoftwareVersionRequest{
		Name:     "postgres",
		Version:  "16.3",
		Metadata: json.RawMessage(`{"edition":"community"}`),
	})
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	var version SoftwareVersion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, "postgres", version.Name)
	assert.JSONEq(t, `{"edition":"community"}`, string(version.Metadata))
}

func TestCreateRelation_MissingRelationType(t *testing.T) {
	h := testHandlers(&mockStore{t: t}, newMemoryStorage())

	req := jsonRequest(t, http.MethodPost, "/catalogue/relations", CreateRelationRequest{
		SourceType: "endpoint",
		SourceID:   uuid.New(),
		TargetType: "software_version",
		TargetID:   uuid.New(),
	})
	rec := doRequest(t, h, req, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRelation(t *testing.T) {
	store := &mockStore{
		t: t,
		createRelation: func(ctx context.Context, req *CreateRelationRequest) (*Relation, error) {
			return &Relation{
				ID: uuid.New(), SourceType: req.SourceType, SourceID: req.SourceID,
				TargetType: req.TargetType, TargetID: req.TargetID,
				RelationType: req.RelationType, CreatedAt: time.Now().UTC(),
			}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := jsonRequest(t, http.MethodPost, "/catalogue/relations", CreateRelationRequest{
		SourceType:   "endpoint",
		SourceID:     uuid.New(),
		TargetType:   "encryption_algorithm",
		TargetID:     uuid.New(),
		RelationType: "uses",
	})
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	var relation Relation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relation))
	assert.Equal(t, "uses", relation.RelationType)
}

func TestListRelations_SourceFilter(t *testing.T) {
	sourceID := uuid.New()
	store := &mockStore{
		t: t,
		listRelations: func(ctx context.Context, gotSource uuid.UUID) ([]*Relation, error) {
			assert.Equal(t, sourceID, gotSource)
			return []*Relation{{
				ID: uuid.New(), SourceType: "endpoint", SourceID: sourceID,
				TargetType: "license_key", TargetID: uuid.New(),
				RelationType: "licensed_by", CreatedAt: time.Now().UTC(),
			}}, nil
		},
	}
	h := testHandlers(store, newMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/catalogue/relations?source_id="+sourceID.String(), nil)
	rec := doRequest(t, h, req, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var relations []*Relation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &relations))
	require.Len(t, relations, 1)
	assert.Equal(t, "licensed_by", relations[0].RelationType)
}
