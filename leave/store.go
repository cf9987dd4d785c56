package leave

import (
	"context"

	"github.com/prabandh/leave-engine/generic"
)

// Store is the persistence the leave service needs.
//
// Reads outside WithTx see committed state only. Every mutation goes
// through WithTx so the balance row, the application row and the journal
// entry commit together or not at all.
type Store interface {
	// WithTx runs fn in one database transaction. fn returning an error
	// rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBalance(ctx context.Context, facultyID string) (*Balance, error)
	ListBalances(ctx context.Context) ([]*Balance, error)
	ListBalanceOwners(ctx context.Context) ([]string, error)

	// GetApplication returns ErrNotFound for an unknown id.
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*Application, error)

	ListLapseRuns(ctx context.Context, limit int) ([]LapseRun, error)

	// Journal exposes the committed balance journal.
	Journal() generic.Store
}

// Tx is the transaction-scoped view handed to WithTx callbacks.
type Tx interface {
	// LockBalance reads a balance and holds it against concurrent writers
	// until the transaction ends. Returns ErrNotFound if absent.
	LockBalance(ctx context.Context, facultyID string) (*Balance, error)
	// InsertBalance stores a new balance at version 1.
	InsertBalance(ctx context.Context, b *Balance) error
	// UpdateBalance writes b if its Version is still current, then bumps
	// b.Version. A stale version yields generic.ErrConcurrentModification.
	UpdateBalance(ctx context.Context, b *Balance) error

	// GetApplication reads and locks an application.
	GetApplication(ctx context.Context, id string) (*Application, error)
	InsertApplication(ctx context.Context, app *Application) error
	UpdateApplication(ctx context.Context, app *Application) error
	// ReplaceAdjustments swaps an application's class adjustments wholesale.
	ReplaceAdjustments(ctx context.Context, applicationID string, adjustments []ClassAdjustment) error
	HasOverlap(ctx context.Context, q OverlapQuery) (bool, error)

	InsertLapseRun(ctx context.Context, run LapseRun) error

	// Journal is the balance journal inside this transaction.
	Journal() generic.Store
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// RoleResolver looks up the role a user acts in.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
}

// Notifier delivers a message to a user. Delivery is best effort; the
// service logs failures and carries on.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}

// Directory looks up faculty records.
type Directory interface {
	GetFaculty(ctx context.Context, id string) (*Faculty, error)
}

// DirectoryRoles resolves roles from the faculty directory.
type DirectoryRoles struct {
	Directory Directory
}

func (d DirectoryRoles) RoleOf(ctx context.Context, userID string) (Role, error) {
	f, err := d.Directory.GetFaculty(ctx, userID)
	if err != nil {
		return "", err
	}
	return f.Role, nil
}
