/*
store.go - Persistence interface for journal entries

PURPOSE:
  Defines the boundary between the journal and the database. Every
  storage adapter (sqlite, postgres) implements Store, and
  exposes a transaction-scoped Store so journal writes commit together
  with the balance row they describe.

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  An entry may carry an idempotency key. A second write with the same key
  is rejected with ErrDuplicateIdempotencyKey. The leave service relies on
  this to refuse a second deduction or restoration for one application.

IMPLEMENTATIONS:
  - store/sqlite: embedded database
  - store/postgres: pgx + squirrel

SEE ALSO:
  - ledger.go: Journal built on Store
*/
package generic

import "context"

// Store handles persistence of journal entries.
// IMPORTANT: Store is APPEND-ONLY.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all entries for an entity, ordered by EffectiveAt then creation.
	Load(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// LoadBucket returns the entries of one bucket of an entity.
	LoadBucket(ctx context.Context, entityID EntityID, bucketID BucketID) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
