/*
Package postgres provides a PostgreSQL-backed implementation of arrears.Store.

PURPOSE:
  Server production profile over a pgx connection pool. Mirrors the SQLite
  store's schema and semantics; money columns use NUMERIC instead of TEXT
  and timestamps use TIMESTAMPTZ.

OPTIMISTIC LOCKING:
  Same protocol as every other store: the version-guarded UPDATE reports
  zero affected rows on a lost race and the caller restarts from a fresh
  Get. Database-level MVCC handles reader/writer isolation; no in-process
  mutex is needed here.

SEE ALSO:
  - arrears/store.go: interface contract
  - store/sqlite: embedded profile, same schema shape
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// Store implements arrears.TxStore over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and runs migrations.
//
//	store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS arrears (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		start_month TEXT NOT NULL,
		end_month TEXT NOT NULL,
		total_amount NUMERIC NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_arrears_employee_status
		ON arrears(employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_arrears_department
		ON arrears(department);

	CREATE TABLE IF NOT EXISTS settlements (
		arrear_id TEXT NOT NULL REFERENCES arrears(id),
		seq INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		settled_at TIMESTAMPTZ NOT NULL,
		payroll_run_ref TEXT NOT NULL,
		settled_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (arrear_id, seq)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_run_ref
		ON settlements(arrear_id, payroll_run_ref);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) Create(ctx context.Context, rec arrears.ArrearRecord) error {
	return create(ctx, s.pool, rec)
}

func (s *Store) Get(ctx context.Context, id core.ArrearID) (arrears.ArrearRecord, error) {
	return get(ctx, s.pool, id)
}

func (s *Store) Update(ctx context.Context, rec arrears.ArrearRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := update(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) List(ctx context.Context, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	return list(ctx, s.pool, f)
}

// WithTx runs fn inside one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(arrears.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
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
// QUERIES
// =============================================================================

// querier is the subset of pgxpool.Pool / pgx.Tx the queries need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func create(ctx context.Context, q querier, rec arrears.ArrearRecord) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM arrears WHERE id = $1)`, string(rec.ID)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return arrears.ErrDuplicateID
	}

	_, err = q.Exec(ctx, `
		INSERT INTO arrears (id, employee_id, department, start_month, end_month,
			total_amount, reason, status, parent_id, version, created_by, approved_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(rec.ID), string(rec.EmployeeID), rec.Department,
		rec.Period.Start.String(), rec.Period.End.String(),
		rec.TotalAmount.String(), rec.Reason, string(rec.Status), string(rec.ParentID),
		rec.Version, rec.CreatedBy, rec.ApprovedBy, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	return insertSettlements(ctx, q, rec.ID, rec.SettlementHistory, 0)
}

func get(ctx context.Context, q querier, id core.ArrearID) (arrears.ArrearRecord, error) {
	row := q.QueryRow(ctx, `
		SELECT id, employee_id, department, start_month, end_month, total_amount::text,
			reason, status, parent_id, version, created_by, approved_by, created_at, updated_at
		FROM arrears WHERE id = $1`, string(id))

	rec, err := scanArrear(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
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

func update(ctx context.Context, q querier, rec arrears.ArrearRecord) error {
	tag, err := q.Exec(ctx, `
		UPDATE arrears SET status = $1, approved_by = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		string(rec.Status), rec.ApprovedBy, rec.UpdatedAt, string(rec.ID), rec.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM arrears WHERE id = $1)`, string(rec.ID)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return arrears.ErrNotFound
		}
		return arrears.ErrVersionConflict
	}

	var have int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM settlements WHERE arrear_id = $1`, string(rec.ID)).Scan(&have); err != nil {
		return err
	}
	if have > len(rec.SettlementHistory) {
		return fmt.Errorf("settlement history shrank for arrear %s: store has %d, record has %d",
			rec.ID, have, len(rec.SettlementHistory))
	}
	return insertSettlements(ctx, q, rec.ID, rec.SettlementHistory[have:], have)
}

func insertSettlements(ctx context.Context, q querier, id core.ArrearID, tail []arrears.Settlement, fromSeq int) error {
	for i, s := range tail {
		_, err := q.Exec(ctx, `
			INSERT INTO settlements (arrear_id, seq, amount, settled_at, payroll_run_ref, settled_by)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(id), fromSeq+i, s.Amount.String(), s.SettledAt, string(s.PayrollRunRef), s.SettledBy)
		if err != nil {
			return err
		}
	}
	return nil
}

func list(ctx context.Context, q querier, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	query := `
		SELECT id, employee_id, department, start_month, end_month, total_amount::text,
			reason, status, parent_id, version, created_by, approved_by, created_at, updated_at
		FROM arrears`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.EmployeeID != nil {
		conds = append(conds, "employee_id = "+arg(string(*f.EmployeeID)))
	}
	if f.Department != nil {
		conds = append(conds, "department = "+arg(*f.Department))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = arg(string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Covering != nil {
		// YYYY-MM is zero-padded, so lexicographic compare is chronological.
		m := f.Covering.String()
		conds = append(conds, "start_month <= "+arg(m), "end_month >= "+arg(m))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_month, created_at"

	rows, err := q.Query(ctx, query, args...)
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

func loadSettlements(ctx context.Context, q querier, rec *arrears.ArrearRecord) error {
	rows, err := q.Query(ctx, `
		SELECT amount::text, settled_at, payroll_run_ref, settled_by
		FROM settlements WHERE arrear_id = $1 ORDER BY seq`, string(rec.ID))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var amountStr, runRef, settledBy string
		var settledAt time.Time
		if err := rows.Scan(&amountStr, &settledAt, &runRef, &settledBy); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("corrupt settlement amount %q: %w", amountStr, err)
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
		createdBy, approvedBy                            string
		createdAt, updatedAt                             time.Time
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
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
