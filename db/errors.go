package db

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ticketing/entity"
)

const (
	postgresUniqueViolationErrorCode     = "23505"
	postgresForeignKeyViolationErrorCode = "23503"
	postgresInvalidTextErrorCode         = "22P02"
)

func IsUniqueViolation(err error) bool {
	return hasCode(err, postgresUniqueViolationErrorCode)
}

func IsForeignKeyViolation(err error) bool {
	return hasCode(err, postgresForeignKeyViolationErrorCode)
}

// IsInvalidTextRepresentation reports malformed input such as a non-UUID id.
func IsInvalidTextRepresentation(err error) bool {
	return hasCode(err, postgresInvalidTextErrorCode)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == code
}

// StorageError marks err as a storage failure unless it already carries a domain error.
func StorageError(action string, err error) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{
		entity.ErrValidation,
		entity.ErrUnauthorized,
		entity.ErrNotFound,
		entity.ErrAlreadyBooked,
		entity.ErrStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	return fmt.Errorf("could not %s: %w: %w", action, entity.ErrStorage, err)
}
