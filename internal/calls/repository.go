package calls

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("calls: record not found")

// Repository persists call records keyed by provider call id.
type Repository interface {
	// Create inserts r. An existing record with the same provider call id is left untouched.
	Create(ctx context.Context, r Record) error

	// Update applies fn to the stored record under a per-record lock and saves the result.
	Update(ctx context.Context, providerCallID string, fn func(*Record) error) (Record, error)

	Get(ctx context.Context, providerCallID string) (Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
}
