/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  Types and algorithms that do not know what a "casual leave slot" or an
  "HOD" is: decimal amounts, day-granularity dates and periods, and the
  append-only balance journal that records every balance mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days)
  - Transaction: An immutable journal entry recording one balance change
  - BucketID: Which sub-balance of an entity the change applies to
  - Entity/Bucket IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Journal entries are never modified, only compensated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing entity/bucket IDs
  4. Auditability: Every entry has reason, reference, and idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID: "fac-123",
      BucketID: "medical",
      Delta:    generic.NewAmountFromDecimal(decimal.NewFromInt(-5), generic.UnitDays),
      Type:     generic.TxDeduction,
  }

SEE ALSO:
  - ledger.go: Journal over a Store
  - time.go: TimePoint and holiday helpers
  - leave/balance.go: The balance these entries describe
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays Unit = "days"
)

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type BucketID string
type TransactionID string

// ResourceType identifies what kind of resource a journal entry concerns.
// Domain packages define the concrete types:
//
//	// In leave/types.go
//	type Type string
//	func (t Type) ResourceID() string     { return string(t) }
//	func (t Type) ResourceDomain() string { return "leave" }
type ResourceType interface {
	ResourceID() string
	ResourceDomain() string
}

// =============================================================================
// TRANSACTION - Atomic change to a balance
// =============================================================================

type TransactionType string

const (
	TxAllocation  TransactionType = "allocation"  // Capacity granted (new balance, new casual cycle)
	TxDeduction   TransactionType = "deduction"   // Days charged on submission
	TxRestoration TransactionType = "restoration" // Days returned on rejection or cancellation
	TxLapse       TransactionType = "lapse"       // Unused slot capacity forfeited
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	BucketID       BucketID
	ResourceType   ResourceType
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt TimePoint
}
