package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/acrylicworks/api/internal/repositories"
)

// ErrServiceUnavailable indicates a backing dependency is temporarily unreachable.
var ErrServiceUnavailable = errors.New("service: dependency unavailable")

// mapRepositoryError converts repository failures into the caller's sentinels. Context
// cancellations and errors that already carry a service sentinel pass through untouched.
func mapRepositoryError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}
	return err
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}
