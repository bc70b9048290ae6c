package entities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entityColumns() []string {
	return []string{"id", "name", "description", "created_at", "updated_at"}
}

func TestPostgresService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	creatorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").
		WithArgs(sqlmock.AnyArg(), "Acme", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_entities").
		WithArgs(sqlmock.AnyArg(), creatorID, sqlmock.AnyArg(), RoleAdmin, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewPostgresService(db)
	entity, err := svc.Create(context.Background(), "Acme", nil, creatorID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", entity.Name)
	assert.NotEqual(t, uuid.Nil, entity.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_Create_RollsBackOnMembershipFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_entities").
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	svc := NewPostgresService(db)
	_, err = svc.Create(context.Background(), "Acme", nil, uuid.New())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entityID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM entities").
		WithArgs(entityID).
		WillReturnRows(sqlmock.NewRows(entityColumns()).
			AddRow(entityID, "Acme", "a tenant", now, now))

	svc := NewPostgresService(db)
	entity, err := svc.Get(context.Background(), entityID)
	require.NoError(t, err)
	assert.Equal(t, entityID, entity.ID)
	require.NotNil(t, entity.Description)
	assert.Equal(t, "a tenant", *entity.Description)
}

func TestPostgresService_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM entities").
		WillReturnRows(sqlmock.NewRows(entityColumns()))

	svc := NewPostgresService(db)
	_, err = svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresService_Update_PartialFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entityID := uuid.New()
	now := time.Now()
	desc := "updated description"

	// Only description present in the patch: the SET clause must not touch name.
	mock.ExpectQuery(`UPDATE entities SET description = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(desc, sqlmock.AnyArg(), entityID).
		WillReturnRows(sqlmock.NewRows(entityColumns()).
			AddRow(entityID, "Acme", desc, now, now))

	svc := NewPostgresService(db)
	entity, err := svc.Update(context.Background(), entityID, &UpdateEntityRequest{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Acme", entity.Name)
	require.NotNil(t, entity.Description)
	assert.Equal(t, desc, *entity.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE entities SET").
		WillReturnRows(sqlmock.NewRows(entityColumns()))

	svc := NewPostgresService(db)
	name := "x"
	_, err = svc.Update(context.Background(), uuid.New(), &UpdateEntityRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresService_ListForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM entities e").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(entityColumns()).
			AddRow(uuid.New(), "First", nil, now, now).
			AddRow(uuid.New(), "Second", nil, now, now))

	svc := NewPostgresService(db)
	list, err := svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPostgresService_ListMembers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entityID := uuid.New()
	first := "Ada"
	mock.ExpectQuery("SELECT (.+) FROM user_entities ue").
		WithArgs(entityID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "entity_id", "role", "email", "first_name", "last_name"}).
			AddRow(uuid.New(), uuid.New(), entityID, RoleAdmin, "ada@example.com", first, nil))

	svc := NewPostgresService(db)
	members, err := svc.ListMembers(context.Background(), entityID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "ada@example.com", members[0].Email)
	assert.Equal(t, RoleAdmin, members[0].Role)
}

func TestPostgresService_HasMembershipAndRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	entityID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID, entityID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID, entityID, RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	svc := NewPostgresService(db)

	member, err := svc.HasMembership(context.Background(), userID, entityID)
	require.NoError(t, err)
	assert.True(t, member)

	admin, err := svc.HasRole(context.Background(), userID, entityID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, admin)
}
