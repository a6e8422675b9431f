/*
store.go - Persistence contract for entity records

PURPOSE:
  Defines the interface between the domain logic and the database. Records
  live in namespaces (one per entity type) and are addressed by string keys.
  Different implementations use SQLite, Badger, or in-memory maps.

KEY INTERFACES:
  EntityStore: keyed load/save/has/remove plus an ordered range scan
  TxStore:     EntityStore with all-or-nothing WithTx

ORDERING:
  Range visits keys in ascending byte order. Callers that need numeric order
  use zero-padded keys (see SequenceKey).

ENCODING:
  Values are JSON-encoded by every implementation so a record read back from
  memory, SQLite, or Badger is identical.

ATOMICITY:
  WithTx gives call-level atomicity. If fn returns an error, no write made
  through the EntityStore handed to fn is visible afterwards.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go:  SQLite
  - store/badger/badger.go:  Badger via badgerhold

SEE ALSO:
  - eventlog.go: Append-only log built on EntityStore
  - tontine/repository.go: Typed accessors per entity
*/
package generic

import (
	"context"
	"fmt"
)

// Namespace groups records of one entity type.
type Namespace string

// =============================================================================
// ENTITY STORE - Keyed records with ordered scans
// =============================================================================

// EntityStore persists JSON-encoded records.
type EntityStore interface {
	// Load decodes the record at ns/key into out. Returns ErrNotFound if absent.
	Load(ctx context.Context, ns Namespace, key string, out any) error

	// Save upserts the record at ns/key.
	Save(ctx context.Context, ns Namespace, key string, value any) error

	// Has reports whether ns/key exists.
	Has(ctx context.Context, ns Namespace, key string) (bool, error)

	// Remove deletes ns/key. Removing an absent key is not an error.
	Remove(ctx context.Context, ns Namespace, key string) error

	// Range calls fn for every record in ns in ascending key order.
	// Returning an error from fn stops the scan and is returned as-is.
	Range(ctx context.Context, ns Namespace, fn RangeFunc) error
}

// RangeFunc receives a key and a decoder for the record stored under it.
type RangeFunc func(key string, decode func(out any) error) error

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps EntityStore with transaction support.
type TxStore interface {
	EntityStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(EntityStore) error) error
}

// SequenceKey formats n so that lexical order equals numeric order.
func SequenceKey(n uint64) string {
	return fmt.Sprintf("%020d", n)
}

// RangeAll decodes every record of ns into a slice of T.
func RangeAll[T any](ctx context.Context, s EntityStore, ns Namespace) ([]T, error) {
	var out []T
	err := s.Range(ctx, ns, func(_ string, decode func(any) error) error {
		var v T
		if err := decode(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
