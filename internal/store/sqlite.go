package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

// SQLiteStore keeps reports in a local SQLite file. It is meant for
// single-node deployments, development, and tests.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteDSN builds a modernc.org/sqlite DSN with per-connection PRAGMAs.
func SQLiteDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "./data/access-status.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return OpenSQLiteDSN(ctx, SQLiteDSN(path))
}

// OpenSQLiteDSN opens a database from a full DSN.
func OpenSQLiteDSN(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// One connection: every unit of work is serialized, which is what the
	// reconciliation read-decide-write sequence needs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return NewSQLiteStoreFromDB(db), nil
}

// NewSQLiteStoreFromDB wraps an already configured handle.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchemaSQL)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) AddAccessPoint(ctx context.Context, id int64, kind, name string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO access_point(id, kind, name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, name = excluded.name;`, id, kind, name)
	return err
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLiteError(fmt.Errorf("begin tx: %w", err))
	}

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return classifySQLiteError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifySQLiteError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func classifySQLiteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	// Without extended result codes only the primary code is set.
	msg := se.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return err
}

type sqliteTx struct {
	tx *sql.Tx
}

func scanSQLiteReport(row *sql.Row) (models.Report, error) {
	var (
		r         models.Report
		ref       sql.NullString
		createdMs int64
	)
	if err := row.Scan(&r.ID, &ref, &createdMs); err != nil {
		return models.Report{}, err
	}
	if ref.Valid {
		r.Ref = &ref.String
	}
	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	return r, nil
}

func (t *sqliteTx) EnsureReport(ctx context.Context, ref string) (models.Report, bool, error) {
	r, err := scanSQLiteReport(t.tx.QueryRowContext(ctx, `
INSERT INTO report(ref, created_at_ms) VALUES (?, ?)
ON CONFLICT(ref) DO NOTHING
RETURNING id, ref, created_at_ms;`, ref, time.Now().UTC().UnixMilli()))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, false, fmt.Errorf("EnsureReport insert: %w", err)
	}

	r, err = scanSQLiteReport(t.tx.QueryRowContext(ctx,
		`SELECT id, ref, created_at_ms FROM report WHERE ref = ?;`, ref))
	if err != nil {
		return models.Report{}, false, fmt.Errorf("EnsureReport select: %w", err)
	}
	return r, false, nil
}

func (t *sqliteTx) CreateReport(ctx context.Context) (models.Report, error) {
	r, err := scanSQLiteReport(t.tx.QueryRowContext(ctx, `
INSERT INTO report(ref, created_at_ms) VALUES (NULL, ?)
RETURNING id, ref, created_at_ms;`, time.Now().UTC().UnixMilli()))
	if err != nil {
		return models.Report{}, fmt.Errorf("CreateReport: %w", err)
	}
	return r, nil
}

func (t *sqliteTx) InsertStatus(ctx context.Context, s *models.Status) error {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO status(report_id, status_type, status, ts_ms, notes)
VALUES (?, ?, ?, ?, ?);`,
		s.ReportID, s.Category.Rank(), s.Label, s.Timestamp.UTC().UnixMilli(), s.Notes,
	)
	if err != nil {
		return fmt.Errorf("InsertStatus: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("InsertStatus id: %w", err)
	}
	s.ID = id
	return nil
}

func (t *sqliteTx) Link(ctx context.Context, accessPointID, reportID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO access_point_report(access_point_id, report_id) VALUES (?, ?)
ON CONFLICT DO NOTHING;`, accessPointID, reportID)
	if err != nil {
		return false, fmt.Errorf("Link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Link rows: %w", err)
	}
	return n == 1, nil
}

// LockAccessPoint only checks existence; the single connection already
// serializes transactions.
func (t *sqliteTx) LockAccessPoint(ctx context.Context, accessPointID int64) error {
	ok, err := t.AccessPointExists(ctx, accessPointID)
	if err != nil {
		return fmt.Errorf("LockAccessPoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("access point %d: %w", accessPointID, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) AccessPointExists(ctx context.Context, accessPointID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM access_point WHERE id = ?;`, accessPointID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteStatus(row rowScanner) (models.Status, error) {
	var (
		s    models.Status
		rank int
		tsMs int64
	)
	if err := row.Scan(&s.ID, &s.ReportID, &rank, &s.Label, &tsMs, &s.Notes); err != nil {
		return models.Status{}, err
	}
	s.Category = models.StatusCategory(rank)
	s.Timestamp = time.UnixMilli(tsMs).UTC()
	return s, nil
}

func (t *sqliteTx) LatestStatus(ctx context.Context, accessPointID int64) (*models.Status, error) {
	s, err := scanSQLiteStatus(t.tx.QueryRowContext(ctx, `
SELECT s.id, s.report_id, s.status_type, s.status, s.ts_ms, s.notes
FROM status s
JOIN access_point_report apr ON apr.report_id = s.report_id
WHERE apr.access_point_id = ?
ORDER BY s.ts_ms DESC, s.id DESC
LIMIT 1;`, accessPointID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestStatus: %w", err)
	}
	return &s, nil
}

func (t *sqliteTx) LatestReport(ctx context.Context, accessPointID int64) (*models.Report, error) {
	r, err := scanSQLiteReport(t.tx.QueryRowContext(ctx, `
SELECT r.id, r.ref, r.created_at_ms
FROM report r
JOIN access_point_report apr ON apr.report_id = r.id
WHERE apr.access_point_id = ?
ORDER BY r.id DESC
LIMIT 1;`, accessPointID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestReport: %w", err)
	}
	return &r, nil
}

func (t *sqliteTx) ReportByID(ctx context.Context, id int64) (*models.Report, error) {
	r, err := scanSQLiteReport(t.tx.QueryRowContext(ctx,
		`SELECT id, ref, created_at_ms FROM report WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReportByID: %w", err)
	}
	return &r, nil
}

func (t *sqliteTx) Statuses(ctx context.Context, reportID int64) ([]models.Status, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, report_id, status_type, status, ts_ms, notes
FROM status
WHERE report_id = ?
ORDER BY ts_ms ASC, id ASC;`, reportID)
	if err != nil {
		return nil, fmt.Errorf("Statuses: %w", err)
	}
	defer rows.Close()

	var out []models.Status
	for rows.Next() {
		s, err := scanSQLiteStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("Statuses scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
