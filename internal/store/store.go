package store

import (
	"context"
	"errors"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

var (
	// ErrNotFound is returned when a referenced access point or report does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrRetryable marks a transaction that lost a race (unique violation,
	// serialization failure, deadlock) and may succeed if run again.
	ErrRetryable = errors.New("retryable conflict")
)

// Tx is the unit-of-work view of the report/status/link tables. All methods
// run inside the transaction opened by Store.WithTx.
type Tx interface {
	// EnsureReport returns the report for ref, creating it if needed.
	// created reports whether this transaction inserted it.
	EnsureReport(ctx context.Context, ref string) (r models.Report, created bool, err error)
	// CreateReport inserts a report with no ticket reference.
	CreateReport(ctx context.Context) (models.Report, error)
	// InsertStatus appends s and sets s.ID.
	InsertStatus(ctx context.Context, s *models.Status) error
	// Link associates a report with an access point. It is a no-op when the
	// pair is already linked; created reports whether a row was added.
	Link(ctx context.Context, accessPointID, reportID int64) (created bool, err error)

	// LockAccessPoint serializes writers for one access point until the
	// transaction ends. Returns ErrNotFound for unknown access points.
	LockAccessPoint(ctx context.Context, accessPointID int64) error
	AccessPointExists(ctx context.Context, accessPointID int64) (bool, error)

	// LatestStatus returns the newest status across every report linked to
	// the access point, or nil when there is none.
	LatestStatus(ctx context.Context, accessPointID int64) (*models.Status, error)
	// LatestReport returns the most recently created linked report, or nil.
	LatestReport(ctx context.Context, accessPointID int64) (*models.Report, error)
	ReportByID(ctx context.Context, id int64) (*models.Report, error)
	// Statuses returns a report's history ordered by timestamp.
	Statuses(ctx context.Context, reportID int64) ([]models.Status, error)
}

// Store opens units of work. A non-nil error from fn rolls back every write
// made through its Tx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// EnsureSchema creates missing tables. Safe to run multiple times.
	EnsureSchema(ctx context.Context) error
	// AddAccessPoint registers an access point. The catalog normally owns
	// these rows; this exists for seeding dev and test databases.
	AddAccessPoint(ctx context.Context, id int64, kind, name string) error
	Ping(ctx context.Context) error
	Close()
}
