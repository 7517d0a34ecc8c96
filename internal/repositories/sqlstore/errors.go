package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error implements repositories.RepositoryError for SQL backed repositories.
type Error struct {
	op       string
	err      error
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && !e.notFound && !e.conflict }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{
		op:       op,
		err:      err,
		notFound: errors.Is(err, gorm.ErrRecordNotFound),
		conflict: errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated),
	}
}

func notFound(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s: %w", what, gorm.ErrRecordNotFound), notFound: true}
}
