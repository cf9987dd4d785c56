package leave

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prabandh/leave-engine/generic"
)

// Journal idempotency keys. One deduction and at most one restoration per
// application; one lapse per slot per balance version.
func deductKey(appID string) string  { return "deduct-" + appID }
func restoreKey(appID string) string { return "restore-" + appID }

func lapseKey(facultyID string, cycle int, s Slot, version int64) string {
	return fmt.Sprintf("lapse-%s-%d-%s-v%d", facultyID, cycle, s, version)
}

func cycleKey(facultyID string, cycle int, version int64) string {
	return fmt.Sprintf("cycle-%s-%d-v%d", facultyID, cycle, version)
}

func entry(facultyID string, t Type, slot Slot, delta decimal.Decimal, kind generic.TransactionType, at time.Time) generic.Transaction {
	return generic.Transaction{
		ID:           generic.TransactionID(uuid.NewString()),
		EntityID:     generic.EntityID(facultyID),
		BucketID:     bucketID(t, slot),
		ResourceType: t,
		EffectiveAt:  generic.DateOf(at),
		Delta:        generic.NewAmountFromDecimal(delta, generic.UnitDays),
		Type:         kind,
		CreatedAt:    generic.DateOf(at),
	}
}

func deductionEntry(app *Application, at time.Time) generic.Transaction {
	tx := entry(app.FacultyID, app.Type, app.Slot, app.Days.Neg(), generic.TxDeduction, at)
	tx.EffectiveAt = app.FromDate
	tx.ReferenceID = app.ID
	tx.Reason = fmt.Sprintf("%s leave %s to %s", app.Type, app.FromDate, app.ToDate)
	tx.IdempotencyKey = deductKey(app.ID)
	tx.CreatedBy = app.FacultyID
	return tx
}

func restorationEntry(app *Application, actorID string, at time.Time) generic.Transaction {
	tx := entry(app.FacultyID, app.Type, app.Slot, app.Days, generic.TxRestoration, at)
	tx.ReferenceID = app.ID
	tx.Reason = fmt.Sprintf("application %s", app.Status.Label())
	tx.IdempotencyKey = restoreKey(app.ID)
	tx.CreatedBy = actorID
	return tx
}

// forfeitedRestorationEntry records a restoration whose cycle has closed.
// Nothing comes back, so the delta is zero; the days stay in metadata.
func forfeitedRestorationEntry(app *Application, actorID string, at time.Time) generic.Transaction {
	tx := restorationEntry(app, actorID, at)
	tx.Delta = generic.NewAmountFromDecimal(decimal.Zero, generic.UnitDays)
	tx.Reason = fmt.Sprintf("application %s after the %d cycle closed", app.Status.Label(), app.CycleYear)
	tx.Metadata = map[string]string{
		"cycle_year": fmt.Sprint(app.CycleYear),
		"days":       app.Days.String(),
	}
	return tx
}

func lapseEntry(b *Balance, s Slot, forfeited decimal.Decimal, forced bool, at time.Time) generic.Transaction {
	tx := entry(b.FacultyID, Casual, s, forfeited.Neg(), generic.TxLapse, at)
	tx.Reason = fmt.Sprintf("slot %d of the %d cycle lapsed", s.Number(), b.CycleYear)
	tx.IdempotencyKey = lapseKey(b.FacultyID, b.CycleYear, s, b.Version)
	tx.CreatedBy = "system"
	if forced {
		tx.Metadata = map[string]string{"forced": "true"}
	}
	return tx
}

func allocationEntries(b *Balance, at time.Time, actor, keyPrefix string) []generic.Transaction {
	var txs []generic.Transaction
	for _, s := range Slots {
		tx := entry(b.FacultyID, Casual, s, b.Slot(s).Total, generic.TxAllocation, at)
		tx.Reason = fmt.Sprintf("casual cycle %d opened", b.CycleYear)
		tx.IdempotencyKey = keyPrefix + "-" + string(s)
		tx.CreatedBy = actor
		txs = append(txs, tx)
	}
	return txs
}
