package postgres

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// isUUID reports whether id can be compared against a UUID column. Postgres
// rejects anything else with invalid_text_representation instead of
// matching no rows.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
