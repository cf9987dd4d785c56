package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prabandh/leave-engine/generic"
)

// =============================================================================
// BALANCE JOURNAL (generic.Store interface)
// =============================================================================

const journalColumns = `id, entity_id, bucket_id, resource_type, effective_at,
	delta_value, delta_unit, tx_type, reference_id, reason,
	idempotency_key, metadata_json, created_by, created_at`

// Journal returns the store itself; committed journal reads and
// standalone appends go straight to the database.
func (s *Store) Journal() generic.Store { return s }

// Append adds an entry to the journal.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, tx)
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkBatchKeys(txs); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendEntry(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// Load returns all entries of an entity.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryEntries(ctx, s.db, `
		SELECT `+journalColumns+` FROM balance_journal
		WHERE entity_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, entityID)
}

// LoadBucket returns the entries of one bucket.
func (s *Store) LoadBucket(ctx context.Context, entityID generic.EntityID, bucketID generic.BucketID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryEntries(ctx, s.db, `
		SELECT `+journalColumns+` FROM balance_journal
		WHERE entity_id = ? AND bucket_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, entityID, bucketID)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return keyExists(ctx, s.db, key)
}

// txJournal is the journal inside a WithTx transaction.
type txJournal struct {
	tx *sql.Tx
}

func (j *txJournal) Append(ctx context.Context, tx generic.Transaction) error {
	return appendEntry(ctx, j.tx, tx)
}

func (j *txJournal) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if err := checkBatchKeys(txs); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := appendEntry(ctx, j.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (j *txJournal) Load(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	return queryEntries(ctx, j.tx, `
		SELECT `+journalColumns+` FROM balance_journal
		WHERE entity_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, entityID)
}

func (j *txJournal) LoadBucket(ctx context.Context, entityID generic.EntityID, bucketID generic.BucketID) ([]generic.Transaction, error) {
	return queryEntries(ctx, j.tx, `
		SELECT `+journalColumns+` FROM balance_journal
		WHERE entity_id = ? AND bucket_id = ?
		ORDER BY effective_at ASC, seq ASC
	`, entityID, bucketID)
}

func (j *txJournal) Exists(ctx context.Context, key string) (bool, error) {
	return keyExists(ctx, j.tx, key)
}

func checkBatchKeys(txs []generic.Transaction) error {
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
	return nil
}

func appendEntry(ctx context.Context, q querier, tx generic.Transaction) error {
	var metadataJSON sql.NullString
	if len(tx.Metadata) > 0 {
		b, err := json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = generic.DateOf(time.Now())
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO balance_journal (`+journalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(tx.ID),
		string(tx.EntityID),
		string(tx.BucketID),
		tx.ResourceType.ResourceID(),
		tx.EffectiveAt.String(),
		tx.Delta.Value.String(),
		string(tx.Delta.Unit),
		string(tx.Type),
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		metadataJSON,
		nullString(tx.CreatedBy),
		createdAt.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	return nil
}

func keyExists(ctx context.Context, q querier, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM balance_journal WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		tx, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx                                        generic.Transaction
		resourceType, effectiveAt, value, unit    string
		kind, createdAt                           string
		referenceID, reason, key, meta, createdBy sql.NullString
	)
	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.BucketID, &resourceType, &effectiveAt,
		&value, &unit, &kind, &referenceID, &reason,
		&key, &meta, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	tx.ResourceType = generic.GetOrCreateResource(resourceType)
	tx.EffectiveAt = parseDate(effectiveAt)
	tx.Delta = generic.Amount{Value: generic.MustParseDecimal(value), Unit: generic.Unit(unit)}
	tx.Type = generic.TransactionType(kind)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = key.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseDate(createdAt)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return tx, nil
}
