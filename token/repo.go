package token

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	NotFoundErr           = errors.New("token record not found")
	DuplicateSecretErr    = errors.New("duplicate token secret")
	CounterConflictErr    = errors.New("counter conflict")
	StorageUnavailableErr = errors.New("token store unavailable")
)

// Repo is the persistence contract for token records. Implementations
// must never delete records and must use parameterized operations
// exclusively. IncrementCounter is the only mutation: a single atomic
// compare-and-swap keyed on the expected prior value, returning
// CounterConflictErr when a concurrent consumer got there first.
type Repo interface {
	// ListByOwner returns all records for the owner, most recently
	// issued first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)

	// Append persists a new record. Fails with DuplicateSecretErr if
	// the secret already exists anywhere in the store; creation must
	// fail rather than silently overwrite.
	Append(ctx context.Context, record *Record) error

	// IncrementCounter atomically bumps the record's counter from
	// expectedPrior to expectedPrior+1 and returns the new value.
	IncrementCounter(ctx context.Context, id string, expectedPrior int) (int, error)
}

// StorageError classifies a store failure as StorageUnavailableErr
// while keeping the cause in the chain, so callers can tell "could not
// determine authorization" apart from "not authorized".
func StorageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", StorageUnavailableErr, err)
}
