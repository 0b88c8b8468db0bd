// Package reconcile merges status updates into the incident history of
// access points.
//
// Every update is attached to a Report. When a ticket reference is present it
// is the incident key; otherwise continuity is inferred from the access
// point's current status (see models.Continues). Statuses are append-only: no
// path in this package updates or deletes one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// Decision records which branch placed a status.
type Decision string

const (
	// DecisionAttached: the ticket reference matched an existing report.
	DecisionAttached Decision = "attached"
	// DecisionCreated: first sighting of a ticket reference.
	DecisionCreated Decision = "created"
	// DecisionFirst: no ticket reference and no prior status for the access point.
	DecisionFirst Decision = "first"
	// DecisionContinued: the status progressed the access point's open incident.
	DecisionContinued Decision = "continued"
	// DecisionForked: the status regressed or repeated, so a new incident began.
	DecisionForked Decision = "forked"
	// DecisionOrphan: neither a ticket reference nor an access point was given.
	DecisionOrphan Decision = "orphan"
)

// ErrEmptyTicketRef is returned by AssociateTicket for a blank reference.
var ErrEmptyTicketRef = errors.New("ticket reference required")

// Outcome is the result of a reconciliation.
type Outcome struct {
	Report   models.Report
	Status   models.Status
	Decision Decision
	// Linked is set when this call created an access point link.
	Linked bool
}

// Engine runs reconciliations against a Store.
type Engine struct {
	store       store.Store
	log         *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Engine)

// WithMaxAttempts bounds how often a unit of work is retried after a
// retryable conflict.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) Option {
	return func(e *Engine) { e.backoff = d }
}

func NewEngine(st store.Store, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:       st,
		log:         log,
		maxAttempts: 3,
		backoff:     20 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile persists status under the report it belongs to and returns both.
// ticketRef may be empty and linkTo may be nil. The whole decision runs in
// one unit of work.
func (e *Engine) Reconcile(ctx context.Context, status models.Status, ticketRef string, linkTo *int64) (Outcome, error) {
	var out Outcome
	err := e.withRetry(ctx, "reconcile", func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = reconcileTx(ctx, tx, status, ticketRef, linkTo)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	fields := []zap.Field{
		zap.String("decision", string(out.Decision)),
		zap.Int64("report_id", out.Report.ID),
		zap.Int64("status_id", out.Status.ID),
		zap.Stringer("status_type", out.Status.Category),
		zap.String("ticket_ref", ticketRef),
	}
	if linkTo != nil {
		fields = append(fields, zap.Int64("access_point_id", *linkTo))
	}
	if out.Decision == DecisionOrphan {
		e.log.Warn("status recorded without ticket reference or access point", fields...)
	} else {
		e.log.Info("status reconciled", fields...)
	}
	return out, nil
}

func reconcileTx(ctx context.Context, tx store.Tx, status models.Status, ticketRef string, linkTo *int64) (Outcome, error) {
	switch {
	case ticketRef != "":
		return byTicket(ctx, tx, status, ticketRef, linkTo)
	case linkTo != nil:
		return byContinuity(ctx, tx, status, *linkTo)
	default:
		r, err := tx.CreateReport(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return attach(ctx, tx, r, status, DecisionOrphan)
	}
}

// byTicket lets the external reference decide identity. No ordering check
// is applied: the ticketing system is authoritative for what is one incident.
func byTicket(ctx context.Context, tx store.Tx, status models.Status, ref string, linkTo *int64) (Outcome, error) {
	if linkTo != nil {
		if err := tx.LockAccessPoint(ctx, *linkTo); err != nil {
			return Outcome{}, err
		}
	}

	r, created, err := tx.EnsureReport(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	decision := DecisionAttached
	if created {
		decision = DecisionCreated
	}

	out, err := attach(ctx, tx, r, status, decision)
	if err != nil {
		return Outcome{}, err
	}
	if linkTo != nil {
		if out.Linked, err = tx.Link(ctx, *linkTo, r.ID); err != nil {
			return Outcome{}, err
		}
	}
	return out, nil
}

// byContinuity infers the incident from the access point's current status.
func byContinuity(ctx context.Context, tx store.Tx, status models.Status, accessPointID int64) (Outcome, error) {
	// Holding the lock across read-decide-write keeps two concurrent
	// deliveries from both seeing "no current status".
	if err := tx.LockAccessPoint(ctx, accessPointID); err != nil {
		return Outcome{}, err
	}

	current, err := tx.LatestStatus(ctx, accessPointID)
	if err != nil {
		return Outcome{}, err
	}

	if current != nil && models.Continues(current.Category, status.Category) {
		r, err := tx.ReportByID(ctx, current.ReportID)
		if err != nil {
			return Outcome{}, err
		}
		if r == nil {
			return Outcome{}, fmt.Errorf("report %d of current status: %w", current.ReportID, store.ErrNotFound)
		}
		return attach(ctx, tx, *r, status, DecisionContinued)
	}

	decision := DecisionForked
	if current == nil {
		decision = DecisionFirst
	}
	r, err := tx.CreateReport(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out, err := attach(ctx, tx, r, status, decision)
	if err != nil {
		return Outcome{}, err
	}
	if out.Linked, err = tx.Link(ctx, accessPointID, r.ID); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func attach(ctx context.Context, tx store.Tx, r models.Report, status models.Status, d Decision) (Outcome, error) {
	status.ID = 0
	status.ReportID = r.ID
	if err := tx.InsertStatus(ctx, &status); err != nil {
		return Outcome{}, err
	}
	return Outcome{Report: r, Status: status, Decision: d}, nil
}

// AssociateTicket pairs an access point with the report for ticketRef,
// creating the report if needed. No status is written.
func (e *Engine) AssociateTicket(ctx context.Context, accessPointID int64, ticketRef string) (models.Report, bool, error) {
	if ticketRef == "" {
		return models.Report{}, false, ErrEmptyTicketRef
	}

	var (
		report models.Report
		linked bool
	)
	err := e.withRetry(ctx, "associate ticket", func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockAccessPoint(ctx, accessPointID); err != nil {
			return err
		}
		r, _, err := tx.EnsureReport(ctx, ticketRef)
		if err != nil {
			return err
		}
		report = r
		linked, err = tx.Link(ctx, accessPointID, r.ID)
		return err
	})
	if err != nil {
		return models.Report{}, false, err
	}

	e.log.Info("ticket associated",
		zap.Int64("access_point_id", accessPointID),
		zap.String("ticket_ref", ticketRef),
		zap.Int64("report_id", report.ID),
		zap.Bool("new_link", linked),
	)
	return report, linked, nil
}

// CurrentStatus returns the newest status for an access point and the report
// it belongs to. Both are nil when no status has been recorded yet.
func (e *Engine) CurrentStatus(ctx context.Context, accessPointID int64) (*models.Status, *models.Report, error) {
	var (
		status *models.Status
		report *models.Report
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := requireAccessPoint(ctx, tx, accessPointID); err != nil {
			return err
		}
		var err error
		if status, err = tx.LatestStatus(ctx, accessPointID); err != nil || status == nil {
			return err
		}
		report, err = tx.ReportByID(ctx, status.ReportID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return status, report, nil
}

// ReportFor returns the latest report linked to an access point, whether or
// not it has any status yet.
func (e *Engine) ReportFor(ctx context.Context, accessPointID int64) (*models.Report, error) {
	var report *models.Report
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := requireAccessPoint(ctx, tx, accessPointID); err != nil {
			return err
		}
		var err error
		report, err = tx.LatestReport(ctx, accessPointID)
		return err
	})
	return report, err
}

// History returns a report and its statuses in timestamp order.
func (e *Engine) History(ctx context.Context, reportID int64) (models.Report, []models.Status, error) {
	var (
		report   models.Report
		statuses []models.Status
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.ReportByID(ctx, reportID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("report %d: %w", reportID, store.ErrNotFound)
		}
		report = *r
		statuses, err = tx.Statuses(ctx, reportID)
		return err
	})
	return report, statuses, err
}

func requireAccessPoint(ctx context.Context, tx store.Tx, id int64) error {
	ok, err := tx.AccessPointExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("access point %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// withRetry runs fn in a fresh unit of work, again after each retryable
// conflict, up to maxAttempts times.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = e.store.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrRetryable) {
			return err
		}

		e.log.Debug("retrying after conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * e.backoff):
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, e.maxAttempts, err)
}
