// Package rgpd provides the GDPR compliance records: the processing register,
// data subject access requests and the breach log. Every record belongs to
// exactly one entity and is gated by entity membership.
package rgpd

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Access request lifecycle statuses. The server only assigns
// StatusPending on creation and reacts to the exact string "completed" in
// respond; any other status string is stored as given.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// StatusDetected is the initial breach status
const StatusDetected = "detected"

// RegisterEntry is a processing register entry (article 30 record)
type RegisterEntry struct {
	ID               uuid.UUID `json:"id"`
	EntityID         uuid.UUID `json:"entity_id"`
	ProcessingName   string    `json:"processing_name"`
	Purpose          string    `json:"purpose"`
	LegalBasis       string    `json:"legal_basis"`
	DataCategories   []string  `json:"data_categories"`
	DataSubjects     []string  `json:"data_subjects"`
	Recipients       []string  `json:"recipients"`
	RetentionPeriod  *string   `json:"retention_period"`
	SecurityMeasures *string   `json:"security_measures"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateRegisterEntryRequest is the payload for register entry creation
type CreateRegisterEntryRequest struct {
	ProcessingName   string   `json:"processing_name"`
	Purpose          string   `json:"purpose"`
	LegalBasis       string   `json:"legal_basis"`
	DataCategories   []string `json:"data_categories"`
	DataSubjects     []string `json:"data_subjects"`
	Recipients       []string `json:"recipients"`
	RetentionPeriod  *string  `json:"retention_period,omitempty"`
	SecurityMeasures *string  `json:"security_measures,omitempty"`
}

// UpdateRegisterEntryRequest carries optional fields; absent fields keep
// their prior value
type UpdateRegisterEntryRequest struct {
	ProcessingName   *string  `json:"processing_name,omitempty"`
	Purpose          *string  `json:"purpose,omitempty"`
	LegalBasis       *string  `json:"legal_basis,omitempty"`
	DataCategories   []string `json:"data_categories,omitempty"`
	DataSubjects     []string `json:"data_subjects,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
	RetentionPeriod  *string  `json:"retention_period,omitempty"`
	SecurityMeasures *string  `json:"security_measures,omitempty"`
}

// AccessRequest is a data subject access request
type AccessRequest struct {
	ID             uuid.UUID  `json:"id"`
	EntityID       uuid.UUID  `json:"entity_id"`
	RequesterName  string     `json:"requester_name"`
	RequesterEmail string     `json:"requester_email"`
	RequestType    string     `json:"request_type"`
	Description    *string    `json:"description"`
	Status         string     `json:"status"`
	Response       *string    `json:"response"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// CreateAccessRequestRequest is the payload for access request creation.
// Status starts at "pending"; response and completed_at start empty.
type CreateAccessRequestRequest struct {
	RequesterName  string  `json:"requester_name"`
	RequesterEmail string  `json:"requester_email"`
	RequestType    string  `json:"request_type"`
	Description    *string `json:"description,omitempty"`
}

// RespondRequest transitions an access request. Status is stored verbatim;
// "completed" additionally stamps completed_at.
type RespondRequest struct {
	Status   string  `json:"status"`
	Response *string `json:"response,omitempty"`
}

// Breach is a personal data breach record
type Breach struct {
	ID                     uuid.UUID  `json:"id"`
	EntityID               uuid.UUID  `json:"entity_id"`
	BreachDate             time.Time  `json:"breach_date"`
	DiscoveryDate          time.Time  `json:"discovery_date"`
	Description            string     `json:"description"`
	DataCategoriesAffected []string   `json:"data_categories_affected"`
	NumberOfSubjects       *int       `json:"number_of_subjects"`
	Severity               string     `json:"severity"`
	Status                 string     `json:"status"`
	ContainmentMeasures    *string    `json:"containment_measures"`
	NotificationDate       *time.Time `json:"notification_date"`
	AuthorityNotified      bool       `json:"authority_notified"`
	SubjectsNotified       bool       `json:"subjects_notified"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CreateBreachRequest is the payload for breach creation. Status starts at
// "detected"; notification flags start false.
type CreateBreachRequest struct {
	BreachDate             time.Time `json:"breach_date"`
	DiscoveryDate          time.Time `json:"discovery_date"`
	Description            string    `json:"description"`
	DataCategoriesAffected []string  `json:"data_categories_affected"`
	NumberOfSubjects       *int      `json:"number_of_subjects,omitempty"`
	Severity               string    `json:"severity"`
	ContainmentMeasures    *string   `json:"containment_measures,omitempty"`
}

// UpdateBreachRequest carries optional fields; absent fields keep their
// prior value. Status, severity and the notification flags update
// independently.
type UpdateBreachRequest struct {
	BreachDate             *time.Time `json:"breach_date,omitempty"`
	DiscoveryDate          *time.Time `json:"discovery_date,omitempty"`
	Description            *string    `json:"description,omitempty"`
	DataCategoriesAffected []string   `json:"data_categories_affected,omitempty"`
	NumberOfSubjects       *int       `json:"number_of_subjects,omitempty"`
	Severity               *string    `json:"severity,omitempty"`
	Status                 *string    `json:"status,omitempty"`
	ContainmentMeasures    *string    `json:"containment_measures,omitempty"`
	NotificationDate       *time.Time `json:"notification_date,omitempty"`
	AuthorityNotified      *bool      `json:"authority_notified,omitempty"`
	SubjectsNotified       *bool      `json:"subjects_notified,omitempty"`
}
