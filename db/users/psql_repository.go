package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ticketing/db"
	"ticketing/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return PostgresRepository{db: db}
}

// Create stores the mirror of an identity provider account and returns the local id.
// Repeated notifications for the same external id return the already stored user.
func (r PostgresRepository) Create(ctx context.Context, user entity.User) (entity.User, error) {
	if user.ExternalID == "" {
		return entity.User{}, fmt.Errorf("%w: external id is required", entity.ErrValidation)
	}
	user.ApplyNameDefaults()

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, external_id, email, username, first_name, last_name, photo_url, created_at, updated_at)
		VALUES (:id, :external_id, :email, :username, :first_name, :last_name, :photo_url, :created_at, :updated_at)
		ON CONFLICT (external_id) DO NOTHING
	`, user)
	if err != nil {
		return entity.User{}, db.StorageError("create user", err)
	}

	return r.GetByExternalID(ctx, user.ExternalID)
}

func (r PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (entity.User, error) {
	var user entity.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, fmt.Errorf("user %s: %w", externalID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.User{}, db.StorageError("get user", err)
	}

	return user, nil
}

// Update overwrites the profile attributes of the mirror. An unknown user is created instead.
func (r PostgresRepository) Update(ctx context.Context, user entity.User) (entity.User, error) {
	if user.ExternalID == "" {
		return entity.User{}, fmt.Errorf("%w: external id is required", entity.ErrValidation)
	}
	user.ApplyNameDefaults()
	user.UpdatedAt = time.Now().UTC()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users
		SET email = :email,
			username = :username,
			first_name = :first_name,
			last_name = :last_name,
			photo_url = :photo_url,
			updated_at = :updated_at
		WHERE external_id = :external_id
	`, user)
	if err != nil {
		return entity.User{}, db.StorageError("update user", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return entity.User{}, db.StorageError("update user", err)
	}
	if rowsAffected == 0 {
		return r.Create(ctx, user)
	}

	return r.GetByExternalID(ctx, user.ExternalID)
}

// Delete removes the mirror. Deleting an unknown user is not an error.
func (r PostgresRepository) Delete(ctx context.Context, externalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE external_id = $1`, externalID)
	if err != nil {
		return db.StorageError("delete user", err)
	}

	return nil
}
