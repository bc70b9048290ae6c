package rgpd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists the three compliance record families
type Store interface {
	CreateRegisterEntry(ctx context.Context, entityID uuid.UUID, req *CreateRegisterEntryRequest) (*RegisterEntry, error)
	ListRegisterEntries(ctx context.Context, entityID uuid.UUID) ([]*RegisterEntry, error)
	ListRegisterEntriesForUser(ctx context.Context, userID uuid.UUID) ([]*RegisterEntry, error)
	GetRegisterEntry(ctx context.Context, id uuid.UUID) (*RegisterEntry, error)
	UpdateRegisterEntry(ctx context.Context, id uuid.UUID, req *UpdateRegisterEntryRequest) (*RegisterEntry, error)

	CreateAccessRequest(ctx context.Context, entityID uuid.UUID, req *CreateAccessRequestRequest) (*AccessRequest, error)
	ListAccessRequests(ctx context.Context, entityID uuid.UUID) ([]*AccessRequest, error)
	ListAccessRequestsForUser(ctx context.Context, userID uuid.UUID) ([]*AccessRequest, error)
	GetAccessRequest(ctx context.Context, id uuid.UUID) (*AccessRequest, error)
	RespondToAccessRequest(ctx context.Context, id uuid.UUID, req *RespondRequest) (*AccessRequest, error)

	CreateBreach(ctx context.Context, entityID uuid.UUID, req *CreateBreachRequest) (*Breach, error)
	ListBreaches(ctx context.Context, entityID uuid.UUID) ([]*Breach, error)
	ListBreachesForUser(ctx context.Context, userID uuid.UUID) ([]*Breach, error)
	GetBreach(ctx context.Context, id uuid.UUID) (*Breach, error)
	UpdateBreach(ctx context.Context, id uuid.UUID, req *UpdateBreachRequest) (*Breach, error)
}

// PostgresStore implements Store using PostgreSQL. String lists are stored
// as text[] columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const registerColumns = `id, entity_id, processing_name, purpose, legal_basis, data_categories,
	data_subjects, recipients, retention_period, security_measures, created_at, updated_at`

// CreateRegisterEntry inserts a processing register entry
func (s *PostgresStore) CreateRegisterEntry(ctx context.Context, entityID uuid.UUID, req *CreateRegisterEntryRequest) (*RegisterEntry, error) {
	now := time.Now().UTC()
	entry := &RegisterEntry{
		ID:               uuid.New(),
		EntityID:         entityID,
		ProcessingName:   req.ProcessingName,
		Purpose:          req.Purpose,
		LegalBasis:       req.LegalBasis,
		DataCategories:   req.DataCategories,
		DataSubjects:     req.DataSubjects,
		Recipients:       req.Recipients,
		RetentionPeriod:  req.RetentionPeriod,
		SecurityMeasures: req.SecurityMeasures,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	query := `
		INSERT INTO rgpd_register (` + registerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query, entry.ID, entry.EntityID, entry.ProcessingName,
		entry.Purpose, entry.LegalBasis, pq.Array(entry.DataCategories), pq.Array(entry.DataSubjects),
		pq.Array(entry.Recipients), entry.RetentionPeriod, entry.SecurityMeasures,
		entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create register entry: %w", err)
	}

	return entry, nil
}

// ListRegisterEntries lists an entity's register entries, newest first
func (s *PostgresStore) ListRegisterEntries(ctx context.Context, entityID uuid.UUID) ([]*RegisterEntry, error) {
	query := `
		SELECT ` + registerColumns + `
		FROM rgpd_register
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`
	return s.queryRegisterEntries(ctx, query, entityID)
}

// ListRegisterEntriesForUser lists register entries across every entity the
// user is a member of, newest first
func (s *PostgresStore) ListRegisterEntriesForUser(ctx context.Context, userID uuid.UUID) ([]*RegisterEntry, error) {
	query := `
		SELECT r.id, r.entity_id, r.processing_name, r.purpose, r.legal_basis, r.data_categories,
		       r.data_subjects, r.recipients, r.retention_period, r.security_measures, r.created_at, r.updated_at
		FROM rgpd_register r
		JOIN user_entities ue ON r.entity_id = ue.entity_id
		WHERE ue.user_id = $1
		ORDER BY r.created_at DESC
	`
	return s.queryRegisterEntries(ctx, query, userID)
}

// GetRegisterEntry retrieves a register entry by ID
func (s *PostgresStore) GetRegisterEntry(ctx context.Context, id uuid.UUID) (*RegisterEntry, error) {
	query := `SELECT ` + registerColumns + ` FROM rgpd_register WHERE id = $1`
	entry := &RegisterEntry{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.EntityID, &entry.ProcessingName, &entry.Purpose, &entry.LegalBasis,
		pq.Array(&entry.DataCategories), pq.Array(&entry.DataSubjects), pq.Array(&entry.Recipients),
		&entry.RetentionPeriod, &entry.SecurityMeasures, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get register entry: %w", err)
	}
	return entry, nil
}

// UpdateRegisterEntry applies a partial update
func (s *PostgresStore) UpdateRegisterEntry(ctx context.Context, id uuid.UUID, req *UpdateRegisterEntryRequest) (*RegisterEntry, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	addClause := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.ProcessingName != nil {
		addClause("processing_name", *req.ProcessingName)
	}
	if req.Purpose != nil {
		addClause("purpose", *req.Purpose)
	}
	if req.LegalBasis != nil {
		addClause("legal_basis", *req.LegalBasis)
	}
	if req.DataCategories != nil {
		addClause("data_categories", pq.Array(req.DataCategories))
	}
	if req.DataSubjects != nil {
		addClause("data_subjects", pq.Array(req.DataSubjects))
	}
	if req.Recipients != nil {
		addClause("recipients", pq.Array(req.Recipients))
	}
	if req.RetentionPeriod != nil {
		addClause("retention_period", *req.RetentionPeriod)
	}
	if req.SecurityMeasures != nil {
		addClause("security_measures", *req.SecurityMeasures)
	}
	addClause("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE rgpd_register SET %s WHERE id = $%d
		RETURNING `+registerColumns, strings.Join(setClauses, ", "), argPos)

	entry := &RegisterEntry{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&entry.ID, &entry.EntityID, &entry.ProcessingName, &entry.Purpose, &entry.LegalBasis,
		pq.Array(&entry.DataCategories), pq.Array(&entry.DataSubjects), pq.Array(&entry.Recipients),
		&entry.RetentionPeriod, &entry.SecurityMeasures, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update register entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) queryRegisterEntries(ctx context.Context, query string, arg interface{}) ([]*RegisterEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list register entries: %w", err)
	}
	defer rows.Close()

	entries := []*RegisterEntry{}
	for rows.Next() {
		entry := &RegisterEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.EntityID, &entry.ProcessingName, &entry.Purpose, &entry.LegalBasis,
			pq.Array(&entry.DataCategories), pq.Array(&entry.DataSubjects), pq.Array(&entry.Recipients),
			&entry.RetentionPeriod, &entry.SecurityMeasures, &entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan register entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate register entries: %w", err)
	}

	return entries, nil
}

const accessRequestColumns = `id, entity_id, requester_name, requester_email, request_type,
	description, status, response, created_at, updated_at, completed_at`

// CreateAccessRequest inserts a data subject access request with status
// "pending"
func (s *PostgresStore) CreateAccessRequest(ctx context.Context, entityID uuid.UUID, req *CreateAccessRequestRequest) (*AccessRequest, error) {
	now := time.Now().UTC()
	request := &AccessRequest{
		ID:             uuid.New(),
		EntityID:       entityID,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		RequestType:    req.RequestType,
		Description:    req.Description,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO rgpd_access_requests (` + accessRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query, request.ID, request.EntityID, request.RequesterName,
		request.RequesterEmail, request.RequestType, request.Description, request.Status,
		request.Response, request.CreatedAt, request.UpdatedAt, request.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	return request, nil
}

// ListAccessRequests lists an entity's access requests, newest first
func (s *PostgresStore) ListAccessRequests(ctx context.Context, entityID uuid.UUID) ([]*AccessRequest, error) {
	query := `
		SELECT ` + accessRequestColumns + `
		FROM rgpd_access_requests
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`
	return s.queryAccessRequests(ctx, query, entityID)
}

// ListAccessRequestsForUser lists access requests across every entity the
// user is a member of, newest first
func (s *PostgresStore) ListAccessRequestsForUser(ctx context.Context, userID uuid.UUID) ([]*AccessRequest, error) {
	query := `
		SELECT ar.id, ar.entity_id, ar.requester_name, ar.requester_email, ar.request_type,
		       ar.description, ar.status, ar.response, ar.created_at, ar.updated_at, ar.completed_at
		FROM rgpd_access_requests ar
		JOIN user_entities ue ON ar.entity_id = ue.entity_id
		WHERE ue.user_id = $1
		ORDER BY ar.created_at DESC
	`
	return s.queryAccessRequests(ctx, query, userID)
}

// GetAccessRequest retrieves an access request by ID
func (s *PostgresStore) GetAccessRequest(ctx context.Context, id uuid.UUID) (*AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + ` FROM rgpd_access_requests WHERE id = $1`
	request := &AccessRequest{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&request.ID, &request.EntityID, &request.RequesterName, &request.RequesterEmail,
		&request.RequestType, &request.Description, &request.Status, &request.Response,
		&request.CreatedAt, &request.UpdatedAt, &request.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}
	return request, nil
}

// RespondToAccessRequest stores the status and response verbatim. The exact
// status "completed" also stamps completed_at.
func (s *PostgresStore) RespondToAccessRequest(ctx context.Context, id uuid.UUID, req *RespondRequest) (*AccessRequest, error) {
	now := time.Now().UTC()
	var completedAt *time.Time
	if req.Status == StatusCompleted {
		completedAt = &now
	}

	var query string
	args := []interface{}{req.Status, req.Response, now}
	if completedAt != nil {
		query = `
			UPDATE rgpd_access_requests
			SET status = $1, response = $2, updated_at = $3, completed_at = $4
			WHERE id = $5
			RETURNING ` + accessRequestColumns
		args = append(args, completedAt, id)
	} else {
		query = `
			UPDATE rgpd_access_requests
			SET status = $1, response = $2, updated_at = $3
			WHERE id = $4
			RETURNING ` + accessRequestColumns
		args = append(args, id)
	}

	request := &AccessRequest{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&request.ID, &request.EntityID, &request.RequesterName, &request.RequesterEmail,
		&request.RequestType, &request.Description, &request.Status, &request.Response,
		&request.CreatedAt, &request.UpdatedAt, &request.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to respond to access request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) queryAccessRequests(ctx context.Context, query string, arg interface{}) ([]*AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer rows.Close()

	requests := []*AccessRequest{}
	for rows.Next() {
		request := &AccessRequest{}
		if err := rows.Scan(
			&request.ID, &request.EntityID, &request.RequesterName, &request.RequesterEmail,
			&request.RequestType, &request.Description, &request.Status, &request.Response,
			&request.CreatedAt, &request.UpdatedAt, &request.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access requests: %w", err)
	}

	return requests, nil
}

const breachColumns = `id, entity_id, breach_date, discovery_date, description, data_categories_affected,
	number_of_subjects, severity, status, containment_measures, notification_date,
	authority_notified, subjects_notified, created_at, updated_at`

// CreateBreach inserts a breach record with status "detected" and both
// notification flags false
func (s *PostgresStore) CreateBreach(ctx context.Context, entityID uuid.UUID, req *CreateBreachRequest) (*Breach, error) {
	now := time.Now().UTC()
	breach := &Breach{
		ID:                     uuid.New(),
		EntityID:               entityID,
		BreachDate:             req.BreachDate,
		DiscoveryDate:          req.DiscoveryDate,
		Description:            req.Description,
		DataCategoriesAffected: req.DataCategoriesAffected,
		NumberOfSubjects:       req.NumberOfSubjects,
		Severity:               req.Severity,
		Status:                 StatusDetected,
		ContainmentMeasures:    req.ContainmentMeasures,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	query := `
		INSERT INTO rgpd_breaches (` + breachColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query, breach.ID, breach.EntityID, breach.BreachDate,
		breach.DiscoveryDate, breach.Description, pq.Array(breach.DataCategoriesAffected),
		breach.NumberOfSubjects, breach.Severity, breach.Status, breach.ContainmentMeasures,
		breach.NotificationDate, breach.AuthorityNotified, breach.SubjectsNotified,
		breach.CreatedAt, breach.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create breach: %w", err)
	}

	return breach, nil
}

// ListBreaches lists an entity's breaches by discovery date, newest first
func (s *PostgresStore) ListBreaches(ctx context.Context, entityID uuid.UUID) ([]*Breach, error) {
	query := `
		SELECT ` + breachColumns + `
		FROM rgpd_breaches
		WHERE entity_id = $1
		ORDER BY discovery_date DESC
	`
	return s.queryBreaches(ctx, query, entityID)
}

// ListBreachesForUser lists breaches across every entity the user is a
// member of, by discovery date, newest first
func (s *PostgresStore) ListBreachesForUser(ctx context.Context, userID uuid.UUID) ([]*Breach, error) {
	query := `
		SELECT b.id, b.entity_id, b.breach_date, b.discovery_date, b.description, b.data_categories_affected,
		       b.number_of_subjects, b.severity, b.status, b.containment_measures, b.notification_date,
		       b.authority_notified, b.subjects_notified, b.created_at, b.updated_at
		FROM rgpd_breaches b
		JOIN user_entities ue ON b.entity_id = ue.entity_id
		WHERE ue.user_id = $1
		ORDER BY b.discovery_date DESC
	`
	return s.queryBreaches(ctx, query, userID)
}

// GetBreach retrieves a breach by ID
func (s *PostgresStore) GetBreach(ctx context.Context, id uuid.UUID) (*Breach, error) {
	query := `SELECT ` + breachColumns + ` FROM rgpd_breaches WHERE id = $1`
	breach := &Breach{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&breach.ID, &breach.EntityID, &breach.BreachDate, &breach.DiscoveryDate, &breach.Description,
		pq.Array(&breach.DataCategoriesAffected), &breach.NumberOfSubjects, &breach.Severity,
		&breach.Status, &breach.ContainmentMeasures, &breach.NotificationDate,
		&breach.AuthorityNotified, &breach.SubjectsNotified, &breach.CreatedAt, &breach.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get breach: %w", err)
	}
	return breach, nil
}

// UpdateBreach applies a partial update. Any field may change, including
// status and the notification flags.
func (s *PostgresStore) UpdateBreach(ctx context.Context, id uuid.UUID, req *UpdateBreachRequest) (*Breach, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	addClause := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.BreachDate != nil {
		addClause("breach_date", *req.BreachDate)
	}
	if req.DiscoveryDate != nil {
		addClause("discovery_date", *req.DiscoveryDate)
	}
	if req.Description != nil {
		addClause("description", *req.Description)
	}
	if req.DataCategoriesAffected != nil {
		addClause("data_categories_affected", pq.Array(req.DataCategoriesAffected))
	}
	if req.NumberOfSubjects != nil {
		addClause("number_of_subjects", *req.NumberOfSubjects)
	}
	if req.Severity != nil {
		addClause("severity", *req.Severity)
	}
	if req.Status != nil {
		addClause("status", *req.Status)
	}
	if req.ContainmentMeasures != nil {
		addClause("containment_measures", *req.ContainmentMeasures)
	}
	if req.NotificationDate != nil {
		addClause("notification_date", *req.NotificationDate)
	}
	if req.AuthorityNotified != nil {
		addClause("authority_notified", *req.AuthorityNotified)
	}
	if req.SubjectsNotified != nil {
		addClause("subjects_notified", *req.SubjectsNotified)
	}
	addClause("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE rgpd_breaches SET %s WHERE id = $%d
		RETURNING `+breachColumns, strings.Join(setClauses, ", "), argPos)

	breach := &Breach{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&breach.ID, &breach.EntityID, &breach.BreachDate, &breach.DiscoveryDate, &breach.Description,
		pq.Array(&breach.DataCategoriesAffected), &breach.NumberOfSubjects, &breach.Severity,
		&breach.Status, &breach.ContainmentMeasures, &breach.NotificationDate,
		&breach.AuthorityNotified, &breach.SubjectsNotified, &breach.CreatedAt, &breach.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update breach: %w", err)
	}
	return breach, nil
}

func (s *PostgresStore) queryBreaches(ctx context.Context, query string, arg interface{}) ([]*Breach, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaches: %w", err)
	}
	defer rows.Close()

	breaches := []*Breach{}
	for rows.Next() {
		breach := &Breach{}
		if err := rows.Scan(
			&breach.ID, &breach.EntityID, &breach.BreachDate, &breach.DiscoveryDate, &breach.Description,
			pq.Array(&breach.DataCategoriesAffected), &breach.NumberOfSubjects, &breach.Severity,
			&breach.Status, &breach.ContainmentMeasures, &breach.NotificationDate,
			&breach.AuthorityNotified, &breach.SubjectsNotified, &breach.CreatedAt, &breach.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan breach: %w", err)
		}
		breaches = append(breaches, breach)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breaches: %w", err)
	}

	return breaches, nil
}
