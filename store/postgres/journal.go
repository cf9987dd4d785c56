package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/prabandh/leave-engine/generic"
)

// journal implements generic.Store over balance_journal. Inside WithTx it
// writes on the caller's transaction; otherwise AppendBatch opens its own.
type journal struct {
	q     querier
	sb    sq.StatementBuilderType
	inTx  bool
	begin interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
}

var journalColumns = []string{
	"id", "entity_id", "bucket_id", "resource_type", "effective_at",
	"delta_value", "delta_unit", "tx_type", "reference_id", "reason",
	"idempotency_key", "metadata", "created_by", "created_at",
}

func (j *journal) Append(ctx context.Context, tx generic.Transaction) error {
	return appendEntries(ctx, j.q, j.sb, []generic.Transaction{tx})
}

func (j *journal) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	if j.inTx || j.begin == nil {
		return appendEntries(ctx, j.q, j.sb, txs)
	}
	tx, err := j.begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := appendEntries(ctx, tx, j.sb, txs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (j *journal) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	return j.query(ctx, sq.Eq{"entity_id": string(entityID)})
}

func (j *journal) LoadBucket(ctx context.Context, entityID generic.EntityID, bucketID generic.BucketID) ([]generic.Transaction, error) {
	return j.query(ctx, sq.Eq{"entity_id": string(entityID), "bucket_id": string(bucketID)})
}

func (j *journal) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := j.q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM balance_journal WHERE idempotency_key = $1)", key,
	).Scan(&exists)
	return exists, err
}

func (j *journal) query(ctx context.Context, where sq.Eq) ([]generic.Transaction, error) {
	cols := make([]string, len(journalColumns))
	copy(cols, journalColumns)
	cols[5] = "delta_value::text"

	query, args, err := j.sb.Select(cols...).From("balance_journal").
		Where(where).
		OrderBy("effective_at ASC", "seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build journal query: %w", err)
	}
	rows, err := j.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

func appendEntries(ctx context.Context, q querier, sb sq.StatementBuilderType, txs []generic.Transaction) error {
	b := sb.Insert("balance_journal").Columns(journalColumns...)
	for _, tx := range txs {
		var metadata []byte
		if len(tx.Metadata) > 0 {
			encoded, err := json.Marshal(tx.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = encoded
		}
		createdAt := tx.CreatedAt
		if createdAt.IsZero() {
			createdAt = generic.DateOf(time.Now())
		}
		b = b.Values(
			string(tx.ID), string(tx.EntityID), string(tx.BucketID),
			tx.ResourceType.ResourceID(), tx.EffectiveAt.Time,
			tx.Delta.Value.String(), string(tx.Delta.Unit), string(tx.Type),
			nullable(tx.ReferenceID), nullable(tx.Reason), nullable(tx.IdempotencyKey),
			metadata, nullable(tx.CreatedBy), createdAt.Time,
		)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build journal insert: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (generic.Transaction, error) {
	var (
		tx                                  generic.Transaction
		id, entityID, bucketID              string
		resourceType, value, unit, kind     string
		effectiveAt, createdAt              time.Time
		referenceID, reason, key, createdBy *string
		metadata                            []byte
	)
	err := row.Scan(
		&id, &entityID, &bucketID, &resourceType, &effectiveAt,
		&value, &unit, &kind, &referenceID, &reason,
		&key, &metadata, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	tx.ID = generic.TransactionID(id)
	tx.EntityID = generic.EntityID(entityID)
	tx.BucketID = generic.BucketID(bucketID)
	tx.ResourceType = generic.GetOrCreateResource(resourceType)
	tx.EffectiveAt = generic.DateOf(effectiveAt)
	tx.Delta = generic.Amount{Value: generic.MustParseDecimal(value), Unit: generic.Unit(unit)}
	tx.Type = generic.TransactionType(kind)
	tx.ReferenceID = deref(referenceID)
	tx.Reason = deref(reason)
	tx.IdempotencyKey = deref(key)
	tx.CreatedBy = deref(createdBy)
	tx.CreatedAt = generic.DateOf(createdAt)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return tx, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return tx, nil
}
