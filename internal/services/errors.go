package services

import (
	"errors"
	"fmt"

	"guardian-api/internal/database"
	"guardian-api/pkg/logging"
)

// Errors returned by the services. Callers match them with errors.Is;
// the HTTP layer maps each one to a status code.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
	ErrExternalDependency = errors.New("external dependency unavailable")
	ErrNoMatchingTier     = errors.New("amount does not match any license tier")
	ErrRateLimited        = errors.New("rate limited")
	ErrKeySpaceExhausted  = errors.New("could not find an unused license key")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// storeError converts a store failure into a service error. Anything the
// store does not classify is logged here and returned wrapped, so the
// caller never sees raw driver output.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, database.ErrStaleState):
		return fmt.Errorf("%s: %w", op, ErrInvalidState)
	case isServiceError(err):
		return err
	default:
		logging.Errorf("%s failed: %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isServiceError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrConflict, ErrInvalidState, ErrInvalidInput,
		ErrExternalDependency, ErrNoMatchingTier, ErrRateLimited, ErrKeySpaceExhausted,
		ErrUnauthenticated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
