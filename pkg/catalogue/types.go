package catalogue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a catalogue item does not exist
var ErrNotFound = errors.New("catalogue item not found")

// License key material lives either inline or as an uploaded file
const (
	LicenseTypeString = "string"
	LicenseTypeFile   = "file"
)

// Endpoint is a machine, program, URL or API surface tracked in the
// catalogue. Metadata carries type-specific attributes as raw JSON.
type Endpoint struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	EndpointType string          `json:"endpoint_type"`
	Description  *string         `json:"description"`
	Address      *string         `json:"address"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CreateEndpointRequest struct {
	Name         string          `json:"name"`
	EndpointType string          `json:"endpoint_type"`
	Description  *string         `json:"description"`
	Address      *string         `json:"address"`
	Metadata     json.RawMessage `json:"metadata"`
}

type UpdateEndpointRequest struct {
	Name         *string         `json:"name"`
	EndpointType *string         `json:"endpoint_type"`
	Description  *string         `json:"description"`
	Address      *string         `json:"address"`
	Metadata     json.RawMessage `json:"metadata"`
}

// LicenseKey records license material. String keys live in KeyValue;
// file keys reference a blob in the configured storage backend.
type LicenseKey struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	LicenseType string     `json:"license_type"`
	KeyValue    *string    `json:"key_value"`
	FilePath    *string    `json:"file_path"`
	FileName    *string    `json:"file_name"`
	FileSize    *int64     `json:"file_size"`
	StorageType string     `json:"storage_type"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateLicenseKeyRequest struct {
	Name        string     `json:"name"`
	LicenseType string     `json:"license_type"`
	KeyValue    *string    `json:"key_value"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type UpdateLicenseKeyRequest struct {
	Name        *string    `json:"name"`
	LicenseType *string    `json:"license_type"`
	KeyValue    *string    `json:"key_value"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// SoftwareVersion tracks a deployed software release and its lifecycle
type SoftwareVersion struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description *string         `json:"description"`
	ReleaseDate *time.Time      `json:"release_date"`
	EndOfLife   *time.Time      `json:"end_of_life"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateSoftwareVersionRequest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description *string         `json:"description"`
	ReleaseDate *time.Time      `json:"release_date"`
	EndOfLife   *time.Time      `json:"end_of_life"`
	Metadata    json.RawMessage `json:"metadata"`
}

type UpdateSoftwareVersionRequest struct {
	Name        *string         `json:"name"`
	Version     *string         `json:"version"`
	Description *string         `json:"description"`
	ReleaseDate *time.Time      `json:"release_date"`
	EndOfLife   *time.Time      `json:"end_of_life"`
	Metadata    json.RawMessage `json:"metadata"`
}

// EncryptionAlgorithm documents an algorithm in use, e.g. AES-256 for
// data at rest. KeySize is in bits.
type EncryptionAlgorithm struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	AlgorithmType string          `json:"algorithm_type"`
	KeySize       *int            `json:"key_size"`
	Description   *string         `json:"description"`
	Standard      *string         `json:"standard"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateEncryptionAlgorithmRequest struct {
	Name          string          `json:"name"`
	AlgorithmType string          `json:"algorithm_type"`
	KeySize       *int            `json:"key_size"`
	Description   *string         `json:"description"`
	Standard      *string         `json:"standard"`
	Metadata      json.RawMessage `json:"metadata"`
}

type UpdateEncryptionAlgorithmRequest struct {
	Name          *string         `json:"name"`
	AlgorithmType *string         `json:"algorithm_type"`
	KeySize       *int            `json:"key_size"`
	Description   *string         `json:"description"`
	Standard      *string         `json:"standard"`
	Metadata      json.RawMessage `json:"metadata"`
}

// Relation links two catalogue items (or an item and an entity) with a
// free-form relation type. The pair endpoints are not validated against
// the referenced tables.
type Relation struct {
	ID           uuid.UUID `json:"id"`
	SourceType   string    `json:"source_type"`
	SourceID     uuid.UUID `json:"source_id"`
	TargetType   string    `json:"target_type"`
	TargetID     uuid.UUID `json:"target_id"`
	RelationType string    `json:"relation_type"`
	Description  *string   `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateRelationRequest struct {
	SourceType   string    `json:"source_type"`
	SourceID     uuid.UUID `json:"source_id"`
	TargetType   string    `json:"target_type"`
	TargetID     uuid.UUID `json:"target_id"`
	RelationType string    `json:"relation_type"`
	Description  *string   `json:"description"`
}
