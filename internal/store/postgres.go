package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for reports and statuses.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Pool exposes the underlying pool for maintenance tasks and tests.
func (p *PostgresStore) Pool() *pgxpool.Pool {
	return p.pool
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) AddAccessPoint(ctx context.Context, id int64, kind, name string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO access_point(id, kind, name) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name
	`, id, kind, name)
	return err
}

// WithTx runs fn in a READ COMMITTED transaction. Races on the report ref are
// resolved by upserts, and link writers are serialized with a row lock on the
// access point, so stronger isolation is not needed. Conflicts that still
// surface are reported as ErrRetryable.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPgError(fmt.Errorf("begin: %w", err))
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return classifyPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classifyPgError maps SQLSTATE codes onto the store sentinels.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	case "23503":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

const reportColumns = `id, ref, created_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.Ref, &r.CreatedAt)
	return r, err
}

func (t *pgTx) EnsureReport(ctx context.Context, ref string) (models.Report, bool, error) {
	// RETURNING yields a row only when this statement inserted; a conflicting
	// insert from a concurrent transaction is waited on, then read back.
	r, err := scanReport(t.tx.QueryRow(ctx, `
		INSERT INTO report(ref) VALUES ($1)
		ON CONFLICT (ref) DO NOTHING
		RETURNING `+reportColumns, ref))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Report{}, false, fmt.Errorf("EnsureReport insert: %w", err)
	}

	r, err = scanReport(t.tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM report WHERE ref = $1`, ref))
	if err != nil {
		return models.Report{}, false, fmt.Errorf("EnsureReport select: %w", err)
	}
	return r, false, nil
}

func (t *pgTx) CreateReport(ctx context.Context) (models.Report, error) {
	r, err := scanReport(t.tx.QueryRow(ctx, `INSERT INTO report(ref) VALUES (NULL) RETURNING `+reportColumns))
	if err != nil {
		return models.Report{}, fmt.Errorf("CreateReport: %w", err)
	}
	return r, nil
}

func (t *pgTx) InsertStatus(ctx context.Context, s *models.Status) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO status(report_id, status_type, status, ts, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, s.ReportID, s.Category.Rank(), s.Label, s.Timestamp, s.Notes).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("InsertStatus: %w", err)
	}
	return nil
}

func (t *pgTx) Link(ctx context.Context, accessPointID, reportID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO access_point_report(access_point_id, report_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, accessPointID, reportID)
	if err != nil {
		return false, fmt.Errorf("Link: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) LockAccessPoint(ctx context.Context, accessPointID int64) error {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM access_point WHERE id = $1 FOR UPDATE`, accessPointID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("access point %d: %w", accessPointID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("LockAccessPoint: %w", err)
	}
	return nil
}

func (t *pgTx) AccessPointExists(ctx context.Context, accessPointID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM access_point WHERE id = $1)`, accessPointID).Scan(&ok)
	return ok, err
}

func (t *pgTx) LatestStatus(ctx context.Context, accessPointID int64) (*models.Status, error) {
	var (
		s    models.Status
		rank int16
	)
	err := t.tx.QueryRow(ctx, `
		SELECT s.id, s.report_id, s.status_type, s.status, s.ts, s.notes
		FROM status s
		JOIN access_point_report apr ON apr.report_id = s.report_id
		WHERE apr.access_point_id = $1
		ORDER BY s.ts DESC, s.id DESC
		LIMIT 1
	`, accessPointID).Scan(&s.ID, &s.ReportID, &rank, &s.Label, &s.Timestamp, &s.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestStatus: %w", err)
	}
	s.Category = models.StatusCategory(rank)
	return &s, nil
}

func (t *pgTx) LatestReport(ctx context.Context, accessPointID int64) (*models.Report, error) {
	r, err := scanReport(t.tx.QueryRow(ctx, `
		SELECT r.id, r.ref, r.created_at
		FROM report r
		JOIN access_point_report apr ON apr.report_id = r.id
		WHERE apr.access_point_id = $1
		ORDER BY r.id DESC
		LIMIT 1
	`, accessPointID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestReport: %w", err)
	}
	return &r, nil
}

func (t *pgTx) ReportByID(ctx context.Context, id int64) (*models.Report, error) {
	r, err := scanReport(t.tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM report WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReportByID: %w", err)
	}
	return &r, nil
}

func (t *pgTx) Statuses(ctx context.Context, reportID int64) ([]models.Status, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, report_id, status_type, status, ts, notes
		FROM status
		WHERE report_id = $1
		ORDER BY ts ASC, id ASC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("Statuses: %w", err)
	}
	defer rows.Close()

	var out []models.Status
	for rows.Next() {
		var (
			s    models.Status
			rank int16
		)
		if err := rows.Scan(&s.ID, &s.ReportID, &rank, &s.Label, &s.Timestamp, &s.Notes); err != nil {
			return nil, fmt.Errorf("Statuses scan: %w", err)
		}
		s.Category = models.StatusCategory(rank)
		out = append(out, s)
	}
	return out, rows.Err()
}
