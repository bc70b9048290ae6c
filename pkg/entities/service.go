package entities

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service is the entity and membership store consumed by the HTTP handlers
type Service interface {
	Create(ctx context.Context, name string, description *string, creatorID uuid.UUID) (*Entity, error)
	Get(ctx context.Context, id uuid.UUID) (*Entity, error)
	Update(ctx context.Context, id uuid.UUID, updates *UpdateEntityRequest) (*Entity, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Entity, error)
	ListMembers(ctx context.Context, entityID uuid.UUID) ([]*Member, error)
	HasMembership(ctx context.Context, userID, entityID uuid.UUID) (bool, error)
	HasRole(ctx context.Context, userID, entityID uuid.UUID, role string) (bool, error)
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// Create inserts the entity and the creator's admin membership in a single
// transaction so a failed membership insert never leaves an orphaned entity.
func (s *PostgresService) Create(ctx context.Context, name string, description *string, creatorID uuid.UUID) (*Entity, error) {
	now := time.Now().UTC()
	entity := &Entity{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entity.ID, entity.Name, entity.Description, entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_entities (id, user_id, entity_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), creatorID, entity.ID, RoleAdmin, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return entity, nil
}

// Get retrieves an entity by ID
func (s *PostgresService) Get(ctx context.Context, id uuid.UUID) (*Entity, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM entities
		WHERE id = $1
	`
	entity := &Entity{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&entity.ID, &entity.Name, &entity.Description, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// Update applies a partial update. Absent fields keep their prior value.
func (s *PostgresService) Update(ctx context.Context, id uuid.UUID, updates *UpdateEntityRequest) (*Entity, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *updates.Name)
		argPos++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *updates.Description)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE entities SET %s WHERE id = $%d
		RETURNING id, name, description, created_at, updated_at
	`, strings.Join(setClauses, ", "), argPos)

	entity := &Entity{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&entity.ID, &entity.Name, &entity.Description, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}
	return entity, nil
}

// ListForUser lists the entities the user is a member of
func (s *PostgresService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Entity, error) {
	query := `
		SELECT e.id, e.name, e.description, e.created_at, e.updated_at
		FROM entities e
		JOIN user_entities ue ON e.id = ue.entity_id
		WHERE ue.user_id = $1
		ORDER BY e.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := []*Entity{}
	for rows.Next() {
		entity := &Entity{}
		if err := rows.Scan(&entity.ID, &entity.Name, &entity.Description,
			&entity.CreatedAt, &entity.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	return entities, nil
}

// ListMembers lists an entity's memberships joined with user contact fields
func (s *PostgresService) ListMembers(ctx context.Context, entityID uuid.UUID) ([]*Member, error) {
	query := `
		SELECT ue.id, ue.user_id, ue.entity_id, ue.role, u.email, u.first_name, u.last_name
		FROM user_entities ue
		JOIN users u ON ue.user_id = u.id
		WHERE ue.entity_id = $1
		ORDER BY ue.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(&member.ID, &member.UserID, &member.EntityID, &member.Role,
			&member.Email, &member.FirstName, &member.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// HasMembership reports whether a membership row exists for the pair,
// regardless of role
func (s *PostgresService) HasMembership(ctx context.Context, userID, entityID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM user_entities WHERE user_id = $1 AND entity_id = $2)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, entityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// HasRole reports whether a membership row exists matching the exact role
// string
func (s *PostgresService) HasRole(ctx context.Context, userID, entityID uuid.UUID, role string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM user_entities WHERE user_id = $1 AND entity_id = $2 AND role = $3)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, entityID, role).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}
