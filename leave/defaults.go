package leave

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Allocations is the entitlement a new balance starts with.
type Allocations struct {
	Slot1 decimal.Decimal
	Slot2 decimal.Decimal
	Flat  map[Type]decimal.Decimal
}

// DefaultAllocations returns the institution's standard yearly entitlement.
// Casual leave is 15 days split 7 + 8 across the two slots.
func DefaultAllocations() Allocations {
	return Allocations{
		Slot1: decimal.NewFromInt(7),
		Slot2: decimal.NewFromInt(8),
		Flat: map[Type]decimal.Decimal{
			Medical:       decimal.NewFromInt(12),
			Compensatory:  decimal.NewFromInt(8),
			Earned:        decimal.NewFromInt(15),
			Semester:      decimal.NewFromInt(5),
			Maternity:     decimal.NewFromInt(15),
			Paternity:     decimal.NewFromInt(10),
			Extraordinary: decimal.NewFromInt(15),
			Academic:      decimal.NewFromInt(5),
			HalfPay:       decimal.NewFromInt(5),
			Duty:          decimal.NewFromInt(15),
			HPL:           decimal.NewFromInt(5),
		},
	}
}

// AllocationsFromMap builds Allocations from a config map keyed by leave
// type, plus "casual_slot1" and "casual_slot2". Missing keys keep defaults.
func AllocationsFromMap(m map[string]float64) (Allocations, error) {
	a := DefaultAllocations()
	for key, days := range m {
		if days < 0 {
			return a, fmt.Errorf("allocation %s must not be negative", key)
		}
		value := decimal.NewFromFloat(days)
		switch key {
		case "casual_slot1":
			a.Slot1 = value
			continue
		case "casual_slot2":
			a.Slot2 = value
			continue
		}
		t, err := ParseType(key)
		if err != nil {
			return a, err
		}
		if t == Casual {
			return a, fmt.Errorf("allocate casual leave through casual_slot1 and casual_slot2")
		}
		a.Flat[t] = value
	}
	return a, nil
}

// CasualTotal is the combined casual entitlement.
func (a Allocations) CasualTotal() decimal.Decimal {
	return a.Slot1.Add(a.Slot2)
}
