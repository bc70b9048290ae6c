package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists the four catalogue item families and their relations
type Store interface {
	CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (*Endpoint, error)
	ListEndpoints(ctx context.Context, endpointType string) ([]*Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, id uuid.UUID, req *UpdateEndpointRequest) (*Endpoint, error)

	CreateLicenseKey(ctx context.Context, req *CreateLicenseKeyRequest) (*LicenseKey, error)
	ListLicenseKeys(ctx context.Context) ([]*LicenseKey, error)
	GetLicenseKey(ctx context.Context, id uuid.UUID) (*LicenseKey, error)
	UpdateLicenseKey(ctx context.Context, id uuid.UUID, req *UpdateLicenseKeyRequest) (*LicenseKey, error)
	SetLicenseKeyFile(ctx context.Context, id uuid.UUID, filePath, fileName string, fileSize int64, storageType string) (*LicenseKey, error)

	CreateSoftwareVersion(ctx context.Context, req *CreateSoftwareVersionRequest) (*SoftwareVersion, error)
	ListSoftwareVersions(ctx context.Context) ([]*SoftwareVersion, error)
	GetSoftwareVersion(ctx context.Context, id uuid.UUID) (*SoftwareVersion, error)
	UpdateSoftwareVersion(ctx context.Context, id uuid.UUID, req *UpdateSoftwareVersionRequest) (*SoftwareVersion, error)

	CreateEncryptionAlgorithm(ctx context.Context, req *CreateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error)
	ListEncryptionAlgorithms(ctx context.Context) ([]*EncryptionAlgorithm, error)
	GetEncryptionAlgorithm(ctx context.Context, id uuid.UUID) (*EncryptionAlgorithm, error)
	UpdateEncryptionAlgorithm(ctx context.Context, id uuid.UUID, req *UpdateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error)

	CreateRelation(ctx context.Context, req *CreateRelationRequest) (*Relation, error)
	ListRelations(ctx context.Context, sourceID uuid.UUID) ([]*Relation, error)
}

// PostgresStore implements Store using PostgreSQL. Metadata columns are
// jsonb and round-trip as raw JSON.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const endpointColumns = `id, name, endpoint_type, description, address, metadata, created_at, updated_at`

// CreateEndpoint inserts a catalogue endpoint
func (s *PostgresStore) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (*Endpoint, error) {
	now := time.Now().UTC()
	endpoint := &Endpoint{
		ID:           uuid.New(),
		Name:         req.Name,
		EndpointType: req.EndpointType,
		Description:  req.Description,
		Address:      req.Address,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO catalogue_endpoints (` + endpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, endpoint.ID, endpoint.Name, endpoint.EndpointType,
		endpoint.Description, endpoint.Address, []byte(endpoint.Metadata),
		endpoint.CreatedAt, endpoint.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}

	return endpoint, nil
}

// ListEndpoints lists endpoints, newest first, optionally filtered by type
func (s *PostgresStore) ListEndpoints(ctx context.Context, endpointType string) ([]*Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM catalogue_endpoints`
	args := []interface{}{}
	if endpointType != "" {
		query += ` WHERE endpoint_type = $1`
		args = append(args, endpointType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := []*Endpoint{}
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

// GetEndpoint retrieves an endpoint by ID
func (s *PostgresStore) GetEndpoint(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM catalogue_endpoints WHERE id = $1`
	endpoint, err := scanEndpoint(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}
	return endpoint, nil
}

// UpdateEndpoint applies a partial update; absent fields keep prior values
func (s *PostgresStore) UpdateEndpoint(ctx context.Context, id uuid.UUID, req *UpdateEndpointRequest) (*Endpoint, error) {
	clauses := []string{}
	args := []interface{}{}
	argPos := 1
	addClause := func(column string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.EndpointType != nil {
		addClause("endpoint_type", *req.EndpointType)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.Address != nil {
		addClause("address", *req.Address)
	}
	if req.Metadata != nil {
		addClause("metadata", []byte(req.Metadata))
	}
	addClause("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
		UPDATE catalogue_endpoints SET %s WHERE id = $%d
		RETURNING `+endpointColumns,
		strings.Join(clauses, ", "), argPos)
	args = append(args, id)

	endpoint, err := scanEndpoint(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update endpoint: %w", err)
	}
	return endpoint, nil
}

const licenseKeyColumns = `id, name, license_type, key_value, file_path, file_name, file_size,
	storage_type, description, expires_at, created_at, updated_at`

// CreateLicenseKey inserts a license key. File attributes start empty and
// the storage type defaults to local until a file is uploaded.
func (s *PostgresStore) CreateLicenseKey(ctx context.Context, req *CreateLicenseKeyRequest) (*LicenseKey, error) {
	now := time.Now().UTC()
	key := &LicenseKey{
		ID:          uuid.New(),
		Name:        req.Name,
		LicenseType: req.LicenseType,
		KeyValue:    req.KeyValue,
		StorageType: "local",
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO catalogue_license_keys (` + licenseKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query, key.ID, key.Name, key.LicenseType, key.KeyValue,
		key.FilePath, key.FileName, key.FileSize, key.StorageType, key.Description,
		key.ExpiresAt, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create license key: %w", err)
	}

	return key, nil
}

// ListLicenseKeys lists license keys, newest first
func (s *PostgresStore) ListLicenseKeys(ctx context.Context) ([]*LicenseKey, error) {
	query := `SELECT ` + licenseKeyColumns + ` FROM catalogue_license_keys ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list license keys: %w", err)
	}
	defer rows.Close()

	keys := []*LicenseKey{}
	for rows.Next() {
		key, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetLicenseKey retrieves a license key by ID
func (s *PostgresStore) GetLicenseKey(ctx context.Context, id uuid.UUID) (*LicenseKey, error) {
	query := `SELECT ` + licenseKeyColumns + ` FROM catalogue_license_keys WHERE id = $1`
	key, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license key: %w", err)
	}
	return key, nil
}

// UpdateLicenseKey applies a partial update to a license key's descriptive
// fields. File attributes change only through SetLicenseKeyFile.
func (s *PostgresStore) UpdateLicenseKey(ctx context.Context, id uuid.UUID, req *UpdateLicenseKeyRequest) (*LicenseKey, error) {
	clauses := []string{}
	args := []interface{}{}
	argPos := 1
	addClause := func(column string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.LicenseType != nil {
		addClause("license_type", *req.LicenseType)
	}
	if req.KeyValue != nil {
		addClause("key_value", *req.KeyValue)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.ExpiresAt != nil {
		addClause("expires_at", *req.ExpiresAt)
	}
	addClause("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
		UPDATE catalogue_license_keys SET %s WHERE id = $%d
		RETURNING `+licenseKeyColumns,
		strings.Join(clauses, ", "), argPos)
	args = append(args, id)

	key, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update license key: %w", err)
	}
	return key, nil
}

// SetLicenseKeyFile records an uploaded file's location and size on the key
func (s *PostgresStore) SetLicenseKeyFile(ctx context.Context, id uuid.UUID, filePath, fileName string, fileSize int64, storageType string) (*LicenseKey, error) {
	query := `
		UPDATE catalogue_license_keys
		SET file_path = $1, file_name = $2, file_size = $3, storage_type = $4, updated_at = $5
		WHERE id = $6
		RETURNING ` + licenseKeyColumns
	key, err := scanLicenseKey(s.db.QueryRowContext(ctx, query,
		filePath, fileName, fileSize, storageType, time.Now().UTC(), id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set license key file: %w", err)
	}
	return key, nil
}

const softwareVersionColumns = `id, name, version, description, release_date, end_of_life,
	metadata, created_at, updated_at`

// CreateSoftwareVersion inserts a software version record
func (s *PostgresStore) CreateSoftwareVersion(ctx context.Context, req *CreateSoftwareVersionRequest) (*SoftwareVersion, error) {
	now := time.Now().UTC()
	version := &SoftwareVersion{
		ID:          uuid.New(),
		Name:        req.Name,
		Version:     req.Version,
		Description: req.Description,
		ReleaseDate: req.ReleaseDate,
		EndOfLife:   req.EndOfLife,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO catalogue_software_versions (` + softwareVersionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query, version.ID, version.Name, version.Version,
		version.Description, version.ReleaseDate, version.EndOfLife, []byte(version.Metadata),
		version.CreatedAt, version.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create software version: %w", err)
	}

	return version, nil
}

// ListSoftwareVersions lists software versions, newest first
func (s *PostgresStore) ListSoftwareVersions(ctx context.Context) ([]*SoftwareVersion, error) {
	query := `SELECT ` + softwareVersionColumns + ` FROM catalogue_software_versions ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list software versions: %w", err)
	}
	defer rows.Close()

	versions := []*SoftwareVersion{}
	for rows.Next() {
		version, err := scanSoftwareVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan software version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// GetSoftwareVersion retrieves a software version by ID
func (s *PostgresStore) GetSoftwareVersion(ctx context.Context, id uuid.UUID) (*SoftwareVersion, error) {
	query := `SELECT ` + softwareVersionColumns + ` FROM catalogue_software_versions WHERE id = $1`
	version, err := scanSoftwareVersion(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get software version: %w", err)
	}
	return version, nil
}

// UpdateSoftwareVersion applies a partial update
func (s *PostgresStore) UpdateSoftwareVersion(ctx context.Context, id uuid.UUID, req *UpdateSoftwareVersionRequest) (*SoftwareVersion, error) {
	clauses := []string{}
	args := []interface{}{}
	argPos := 1
	addClause := func(column string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.Version != nil {
		addClause("version", *req.Version)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.ReleaseDate != nil {
		addClause("release_date", *req.ReleaseDate)
	}
	if req.EndOfLife != nil {
		addClause("end_of_life", *req.EndOfLife)
	}
	if req.Metadata != nil {
		addClause("metadata", []byte(req.Metadata))
	}
	addClause("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
		UPDATE catalogue_software_versions SET %s WHERE id = $%d
		RETURNING `+softwareVersionColumns,
		strings.Join(clauses, ", "), argPos)
	args = append(args, id)

	version, err := scanSoftwareVersion(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update software version: %w", err)
	}
	return version, nil
}

const encryptionAlgorithmColumns = `id, name, algorithm_type, key_size, description, standard,
	metadata, created_at, updated_at`

// CreateEncryptionAlgorithm inserts an encryption algorithm record
func (s *PostgresStore) CreateEncryptionAlgorithm(ctx context.Context, req *CreateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error) {
	now := time.Now().UTC()
	algorithm := &EncryptionAlgorithm{
		ID:            uuid.New(),
		Name:          req.Name,
		AlgorithmType: req.AlgorithmType,
		KeySize:       req.KeySize,
		Description:   req.Description,
		Standard:      req.Standard,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO catalogue_encryption_algorithms (` + encryptionAlgorithmColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query, algorithm.ID, algorithm.Name, algorithm.AlgorithmType,
		algorithm.KeySize, algorithm.Description, algorithm.Standard, []byte(algorithm.Metadata),
		algorithm.CreatedAt, algorithm.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption algorithm: %w", err)
	}

	return algorithm, nil
}

// ListEncryptionAlgorithms lists encryption algorithms, newest first
func (s *PostgresStore) ListEncryptionAlgorithms(ctx context.Context) ([]*EncryptionAlgorithm, error) {
	query := `SELECT ` + encryptionAlgorithmColumns + ` FROM catalogue_encryption_algorithms ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list encryption algorithms: %w", err)
	}
	defer rows.Close()

	algorithms := []*EncryptionAlgorithm{}
	for rows.Next() {
		algorithm, err := scanEncryptionAlgorithm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan encryption algorithm: %w", err)
		}
		algorithms = append(algorithms, algorithm)
	}
	return algorithms, rows.Err()
}

// GetEncryptionAlgorithm retrieves an encryption algorithm by ID
func (s *PostgresStore) GetEncryptionAlgorithm(ctx context.Context, id uuid.UUID) (*EncryptionAlgorithm, error) {
	query := `SELECT ` + encryptionAlgorithmColumns + ` FROM catalogue_encryption_algorithms WHERE id = $1`
	algorithm, err := scanEncryptionAlgorithm(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption algorithm: %w", err)
	}
	return algorithm, nil
}

// UpdateEncryptionAlgorithm applies a partial update
func (s *PostgresStore) UpdateEncryptionAlgorithm(ctx context.Context, id uuid.UUID, req *UpdateEncryptionAlgorithmRequest) (*EncryptionAlgorithm, error) {
	clauses := []string{}
	args := []interface{}{}
	argPos := 1
	addClause := func(column string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.AlgorithmType != nil {
		addClause("algorithm_type", *req.AlgorithmType)
	}
	if req.KeySize != nil {
		addClause("key_size", *req.KeySize)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.Standard != nil {
		addClause("standard", *req.Standard)
	}
	if req.Metadata != nil {
		addClause("metadata", []byte(req.Metadata))
	}
	addClause("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
		UPDATE catalogue_encryption_algorithms SET %s WHERE id = $%d
		RETURNING `+encryptionAlgorithmColumns,
		strings.Join(clauses, ", "), argPos)
	args = append(args, id)

	algorithm, err := scanEncryptionAlgorithm(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update encryption algorithm: %w", err)
	}
	return algorithm, nil
}

// CreateRelation inserts a relation between two catalogue items. The
// referenced type/id pairs are stored as given, without validation.
func (s *PostgresStore) CreateRelation(ctx context.Context, req *CreateRelationRequest) (*Relation, error) {
	relation := &Relation{
		ID:           uuid.New(),
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		RelationType: req.RelationType,
		Description:  req.Description,
		CreatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO catalogue_relations (id, source_type, source_id, target_type, target_id, relation_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, relation.ID, relation.SourceType, relation.SourceID,
		relation.TargetType, relation.TargetID, relation.RelationType, relation.Description,
		relation.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation: %w", err)
	}

	return relation, nil
}

// ListRelations lists relations, newest first, optionally filtered by the
// source item they originate from.
func (s *PostgresStore) ListRelations(ctx context.Context, sourceID uuid.UUID) ([]*Relation, error) {
	query := `SELECT id, source_type, source_id, target_type, target_id, relation_type, description, created_at
		FROM catalogue_relations`
	args := []interface{}{}
	if sourceID != uuid.Nil {
		query += ` WHERE source_id = $1`
		args = append(args, sourceID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	relations := []*Relation{}
	for rows.Next() {
		relation := &Relation{}
		err := rows.Scan(&relation.ID, &relation.SourceType, &relation.SourceID, &relation.TargetType,
			&relation.TargetID, &relation.RelationType, &relation.Description, &relation.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		relations = append(relations, relation)
	}
	return relations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEndpoint(row rowScanner) (*Endpoint, error) {
	endpoint := &Endpoint{}
	var metadata []byte
	err := row.Scan(&endpoint.ID, &endpoint.Name, &endpoint.EndpointType, &endpoint.Description,
		&endpoint.Address, &metadata, &endpoint.CreatedAt, &endpoint.UpdatedAt)
	if err != nil {
		return nil, err
	}
	endpoint.Metadata = metadata
	return endpoint, nil
}

func scanLicenseKey(row rowScanner) (*LicenseKey, error) {
	key := &LicenseKey{}
	err := row.Scan(&key.ID, &key.Name, &key.LicenseType, &key.KeyValue, &key.FilePath,
		&key.FileName, &key.FileSize, &key.StorageType, &key.Description, &key.ExpiresAt,
		&key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func scanSoftwareVersion(row rowScanner) (*SoftwareVersion, error) {
	version := &SoftwareVersion{}
	var metadata []byte
	err := row.Scan(&version.ID, &version.Name, &version.Version, &version.Description,
		&version.ReleaseDate, &version.EndOfLife, &metadata, &version.CreatedAt, &version.UpdatedAt)
	if err != nil {
		return nil, err
	}
	version.Metadata = metadata
	return version, nil
}

func scanEncryptionAlgorithm(row rowScanner) (*EncryptionAlgorithm, error) {
	algorithm := &EncryptionAlgorithm{}
	var metadata []byte
	err := row.Scan(&algorithm.ID, &algorithm.Name, &algorithm.AlgorithmType, &algorithm.KeySize,
		&algorithm.Description, &algorithm.Standard, &metadata, &algorithm.CreatedAt, &algorithm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	algorithm.Metadata = metadata
	return algorithm, nil
}
