/*
ledger.go - Append-only balance journal

PURPOSE:
  Balances live in their own row so they can be locked and checked
  cheaply. The Journal is the audit trail beside them: every deduction,
  restoration, lapse and allocation appends exactly one entry, written in
  the same database transaction as the balance update it describes.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IDEMPOTENT: Same idempotency key = same event (no duplicates)
  3. AUDITABLE: NetChange over a bucket explains how its usage got there

EXAMPLE FLOW:
  1. Faculty applies for 5 medical days: TxDeduction -5 (key deduct-<app>)
  2. HOD rejects:                        TxRestoration +5 (key restore-<app>)
  3. A retried rejection tries to restore again: ErrDuplicateIdempotencyKey

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/service.go: Writes entries inside Store.WithTx
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// JOURNAL - Append-only entry log
// =============================================================================

// Journal records balance events.
type Journal interface {
	// Append adds an entry. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple entries atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Entries returns all entries for an entity, chronologically.
	Entries(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// NetChange sums the deltas recorded against one bucket.
	NetChange(ctx context.Context, entityID EntityID, bucketID BucketID) (decimal.Decimal, error)
}

// =============================================================================
// DEFAULT JOURNAL - Implementation using Store
// =============================================================================

type DefaultJournal struct {
	Store Store
}

func NewJournal(store Store) *DefaultJournal {
	return &DefaultJournal{Store: store}
}

func (j *DefaultJournal) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := j.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return j.Store.Append(ctx, tx)
}

func (j *DefaultJournal) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true

		exists, err := j.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return j.Store.AppendBatch(ctx, txs)
}

func (j *DefaultJournal) Entries(ctx context.Context, entityID EntityID) ([]Transaction, error) {
	return j.Store.Load(ctx, entityID)
}

func (j *DefaultJournal) NetChange(ctx context.Context, entityID EntityID, bucketID BucketID) (decimal.Decimal, error) {
	txs, err := j.Store.LoadBucket(ctx, entityID, bucketID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Delta.Value)
	}
	return total, nil
}
