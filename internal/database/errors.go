package database

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

func isUniquenessError(err error) bool {
	var pqe *pq.Error
	return errors.As(err, &pqe) && pqe.Code == pqUniqueViolation
}

func isForeignKeyError(err error) bool {
	var pqe *pq.Error
	return errors.As(err, &pqe) && pqe.Code == pqForeignKeyViolation
}
