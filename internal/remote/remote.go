// Package remote defines the CRUD contract the stores depend on. A backend is
// either an embedded database, a cloud warehouse or the REST API; none of them
// cache anything.
package remote

import (
	"context"
	"errors"

	"github.com/dvloznov/twocents/internal/domain"
)

var (
	// ErrNotFound is returned when updating a record that does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalid is returned when the backend rejects a record.
	ErrInvalid = errors.New("invalid record")
)

// TransactionClient provides ledger operations. ListTransactions returns
// transactions newest first.
type TransactionClient interface {
	// ListTransactions returns every visible transaction, dates descending.
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	// AddTransaction stores t and returns it with its assigned id.
	AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error)

	// RemoveTransaction deletes a transaction. Unknown ids are not an error.
	RemoveTransaction(ctx context.Context, id string) error

	// ClearTransactions deletes every transaction in the session's partition.
	ClearTransactions(ctx context.Context) error
}

// GoalClient provides goal operations.
type GoalClient interface {
	// ListGoals returns the goals newest first, the order Add builds.
	ListGoals(ctx context.Context) ([]domain.Goal, error)

	// AddGoal stores g, ignoring g.ID, and returns it with its assigned id.
	AddGoal(ctx context.Context, g domain.Goal) (domain.Goal, error)

	// UpdateGoal merges patch into the stored goal. It returns ErrNotFound for
	// unknown ids.
	UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error

	RemoveGoal(ctx context.Context, id string) error
}

// BillClient provides recurring bill operations.
type BillClient interface {
	// ListBills returns the bills newest first.
	ListBills(ctx context.Context) ([]domain.Bill, error)
	AddBill(ctx context.Context, b domain.Bill) (domain.Bill, error)
	UpdateBill(ctx context.Context, id string, patch domain.BillPatch) error
	RemoveBill(ctx context.Context, id string) error
}

// SettingsClient reads and writes the settings singleton.
type SettingsClient interface {
	// GetSettings returns the stored settings, or defaults when none exist yet.
	GetSettings(ctx context.Context) (domain.Settings, error)

	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error
}

// Backend bundles every client for one session.
type Backend interface {
	TransactionClient
	GoalClient
	BillClient
	SettingsClient

	// Close releases connections held by the backend.
	Close() error
}

// Factory opens a backend scoped to a session. Servers use it to serve many
// sessions from one database.
type Factory func(s Session) Backend
