/*
Package sqlite provides a SQLite-backed implementation of arrears.Store.

PURPOSE:
  Embedded production profile. The same SQL shape runs on PostgreSQL
  (store/postgres) - only placeholder and dialect differences.

KEY TABLES:
  arrears:     One row per arrear. The version column backs the optimistic
               lock; total_amount never changes after insert.
  settlements: Append-only payment history, ordered by seq per arrear.

OPTIMISTIC LOCKING:
  Update runs "UPDATE arrears ... WHERE id = ? AND version = ?". Zero rows
  affected on an existing record means a lost race and returns
  arrears.ErrVersionConflict; the caller's read-modify-write must restart
  from a fresh Get.

APPEND-ONLY ENFORCEMENT:
  Settlement rows are only ever inserted. Update persists the tail of the
  record's history beyond what the store already holds and refuses a
  history that shrank.

SETTLEMENT IDEMPOTENCY, LAST LINE OF DEFENSE:
  A unique index on (arrear_id, payroll_run_ref) rejects a double-applied
  payroll reference even if every in-process check is bypassed.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := arrears.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - arrears/store.go: interface contract
  - store/memory: in-memory implementation for testing
  - store/postgres: server production profile
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// Store implements arrears.TxStore over SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS arrears (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		start_month TEXT NOT NULL,
		end_month TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_arrears_employee_status
		ON arrears(employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_arrears_department
		ON arrears(department);
	CREATE INDEX IF NOT EXISTS idx_arrears_parent
		ON arrears(parent_id) WHERE parent_id != '';

	CREATE TABLE IF NOT EXISTS settlements (
		arrear_id TEXT NOT NULL REFERENCES arrears(id),
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		settled_at TEXT NOT NULL,
		payroll_run_ref TEXT NOT NULL,
		settled_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (arrear_id, seq)
	);

	-- Idempotency backstop: one settlement per payroll run per arrear.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_run_ref
		ON settlements(arrear_id, payroll_run_ref);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) Create(ctx context.Context, rec arrears.ArrearRecord) error {
	return create(ctx, s.db, rec)
}

func (s *Store) Get(ctx context.Context, id core.ArrearID) (arrears.ArrearRecord, error) {
	return get(ctx, s.db, id)
}

// Update needs its own transaction: the version-checked row update and the
// settlement tail insert must land together.
func (s *Store) Update(ctx context.Context, rec arrears.ArrearRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := update(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) List(ctx context.Context, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	return list(ctx, s.db, f)
}

// WithTx runs fn inside one SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn func(arrears.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txStore routes the same queries through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Create(ctx context.Context, rec arrears.ArrearRecord) error {
	return create(ctx, t.tx, rec)
}

func (t *txStore) Get(ctx context.Context, id core.ArrearID) (arrears.ArrearRecord, error) {
	return get(ctx, t.tx, id)
}

func (t *txStore) Update(ctx context.Context, rec arrears.ArrearRecord) error {
	return update(ctx, t.tx, rec)
}

func (t *txStore) List(ctx context.Context, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	return list(ctx, t.tx, f)
}

// =============================================================================
// QUERIES - shared between direct and transactional access
// =============================================================================

// dbtx is the subset of *sql.DB / *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func create(ctx context.Context, q dbtx, rec arrears.ArrearRecord) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM arrears WHERE id = ?`, string(rec.ID)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return arrears.ErrDuplicateID
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO arrears (id, employee_id, department, start_month, end_month,
			total_amount, reason, status, parent_id, version, created_by, approved_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.EmployeeID), rec.Department,
		rec.Period.Start.String(), rec.Period.End.String(),
		rec.TotalAmount.String(), rec.Reason, string(rec.Status), string(rec.ParentID),
		rec.Version, rec.CreatedBy, rec.ApprovedBy,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return insertSettlements(ctx, q, rec.ID, rec.SettlementHistory, 0)
}

func get(ctx context.Context, q dbtx, id core.ArrearID) (arrears.ArrearRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, employee_id, department, start_month, end_month, total_amount,
			reason, status, parent_id, version, created_by, approved_by, created_at, updated_at
		FROM arrears WHERE id = ?`, string(id))

	rec, err := scanArrear(row.Scan)
	if err == sql.ErrNoRows {
		return arrears.ArrearRecord{}, arrears.ErrNotFound
	}
	if err != nil {
		return arrears.ArrearRecord{}, err
	}

	if err := loadSettlements(ctx, q, &rec); err != nil {
		return arrears.ArrearRecord{}, err
	}
	return rec, nil
}

func update(ctx context.Context, q dbtx, rec arrears.ArrearRecord) error {
	res, err := q.ExecContext(ctx, `
		UPDATE arrears SET status = ?, approved_by = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(rec.Status), rec.ApprovedBy, rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(rec.ID), rec.Version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM arrears WHERE id = ?`, string(rec.ID)).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return arrears.ErrNotFound
		}
		return arrears.ErrVersionConflict
	}

	// Persist only the appended tail of the history.
	var have int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements WHERE arrear_id = ?`, string(rec.ID)).Scan(&have); err != nil {
		return err
	}
	if have > len(rec.SettlementHistory) {
		return fmt.Errorf("settlement history shrank for arrear %s: store has %d, record has %d",
			rec.ID, have, len(rec.SettlementHistory))
	}
	return insertSettlements(ctx, q, rec.ID, rec.SettlementHistory[have:], have)
}

func insertSettlements(ctx context.Context, q dbtx, id core.ArrearID, tail []arrears.Settlement, fromSeq int) error {
	for i, s := range tail {
		_, err := q.ExecContext(ctx, `
			INSERT INTO settlements (arrear_id, seq, amount, settled_at, payroll_run_ref, settled_by)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), fromSeq+i, s.Amount.String(),
			s.SettledAt.UTC().Format(time.RFC3339Nano), string(s.PayrollRunRef), s.SettledBy)
		if err != nil {
			return err
		}
	}
	return nil
}

func list(ctx context.Context, q dbtx, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	query := `
		SELECT id, employee_id, department, start_month, end_month, total_amount,
			reason, status, parent_id, version, created_by, approved_by, created_at, updated_at
		FROM arrears`
	var conds []string
	var args []any

	if f.EmployeeID != nil {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(*f.EmployeeID))
	}
	if f.Department != nil {
		conds = append(conds, "department = ?")
		args = append(args, *f.Department)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Covering != nil {
		// YYYY-MM is zero-padded, so lexicographic compare is chronological.
		conds = append(conds, "start_month <= ? AND end_month >= ?")
		args = append(args, f.Covering.String(), f.Covering.String())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_month, created_at"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []arrears.ArrearRecord
	for rows.Next() {
		rec, err := scanArrear(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := loadSettlements(ctx, q, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func loadSettlements(ctx context.Context, q dbtx, rec *arrears.ArrearRecord) error {
	rows, err := q.QueryContext(ctx, `
		SELECT amount, settled_at, payroll_run_ref, settled_by
		FROM settlements WHERE arrear_id = ? ORDER BY seq`, string(rec.ID))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var amountStr, settledAtStr, runRef, settledBy string
		if err := rows.Scan(&amountStr, &settledAtStr, &runRef, &settledBy); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("corrupt settlement amount %q: %w", amountStr, err)
		}
		settledAt, err := time.Parse(time.RFC3339Nano, settledAtStr)
		if err != nil {
			return fmt.Errorf("corrupt settlement timestamp %q: %w", settledAtStr, err)
		}
		rec.SettlementHistory = append(rec.SettlementHistory, arrears.Settlement{
			Amount:        amount,
			SettledAt:     settledAt,
			PayrollRunRef: core.PayrollRunID(runRef),
			SettledBy:     settledBy,
		})
	}
	return rows.Err()
}

func scanArrear(scan func(dest ...any) error) (arrears.ArrearRecord, error) {
	var (
		id, employeeID, department, startMonth, endMonth string
		totalAmount, reason, status, parentID            string
		version                                          int64
		createdBy, approvedBy, createdAt, updatedAt      string
	)
	err := scan(&id, &employeeID, &department, &startMonth, &endMonth,
		&totalAmount, &reason, &status, &parentID, &version, &createdBy, &approvedBy, &createdAt, &updatedAt)
	if err != nil {
		return arrears.ArrearRecord{}, err
	}

	start, err := core.ParseMonth(startMonth)
	if err != nil {
		return arrears.ArrearRecord{}, err
	}
	end, err := core.ParseMonth(endMonth)
	if err != nil {
		return arrears.ArrearRecord{}, err
	}
	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return arrears.ArrearRecord{}, fmt.Errorf("corrupt total amount %q: %w", totalAmount, err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return arrears.ArrearRecord{}, err
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return arrears.ArrearRecord{}, err
	}

	return arrears.ArrearRecord{
		ID:          core.ArrearID(id),
		EmployeeID:  core.EmployeeID(employeeID),
		Department:  department,
		Period:      core.MonthRange{Start: start, End: end},
		TotalAmount: amount,
		Reason:      reason,
		Status:      arrears.Status(status),
		ParentID:    core.ArrearID(parentID),
		Version:     version,
		CreatedBy:   createdBy,
		ApprovedBy:  approvedBy,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}
