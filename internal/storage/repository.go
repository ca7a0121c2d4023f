// Package storage persists balance snapshots to SQLite so the HTTP API can
// serve history and the exporter can replay missed rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"monarch/internal/core"

	_ "modernc.org/sqlite"
)

// Export statuses for a snapshot row.
const (
	ExportPending  = "pending"
	ExportDone     = "exported"
	ExportErrored  = "error"
	ExportDisabled = "disabled"
)

var ErrNotFound = errors.New("storage: not found")

type Repository struct {
	db *sql.DB
}

// SnapshotRow is the persisted summary of one poll.
type SnapshotRow struct {
	ID           int64
	FetchedAt    time.Time
	NetWorth     core.Money
	AccountCount int
	Income       core.Money
	Expense      core.Money
	Savings      core.Money
	SavingsRate  float64
	ExportStatus string
}

// HistoryPoint is one sensor value at one snapshot time.
type HistoryPoint struct {
	At    time.Time
	Value core.Money
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// The pragma rides on the DSN so every pooled connection gets it.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot writes the snapshot summary and its per-account balances in
// one transaction and returns the new snapshot id.
func (r *Repository) SaveSnapshot(ctx context.Context, snap core.Snapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	netWorth, _, _ := snap.NetWorth()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (fetched_at, net_worth_cents, account_count,
			income_cents, expense_cents, savings_cents, savings_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.FetchedAt.Unix(), netWorth.Cents, len(snap.Accounts),
		snap.Cashflow.Summary.Income.Cents, snap.Cashflow.Summary.Expense.Cents,
		snap.Cashflow.Summary.Savings.Cents, snap.Cashflow.Summary.SavingsRate)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO balances (snapshot_id, account_id, display_name, type_key,
			balance_cents, is_asset, is_hidden, include_in_net_worth, institution, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare balance insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range snap.Accounts {
		var updatedAt any
		if !a.UpdatedAt.IsZero() {
			updatedAt = a.UpdatedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx, id, a.ID, a.DisplayName, a.TypeKey,
			a.Balance.Cents, boolInt(a.IsAsset), boolInt(a.IsHidden),
			boolInt(a.IncludeInNetWorth), a.Institution, updatedAt); err != nil {
			return 0, fmt.Errorf("insert balance for account %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot saved to SQLite",
		"id", id,
		"accounts", len(snap.Accounts),
		"net_worth_cents", netWorth.Cents)

	return id, nil
}

// Snapshot returns one snapshot summary by id.
func (r *Repository) Snapshot(ctx context.Context, id int64) (SnapshotRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, fetched_at, net_worth_cents, account_count,
			income_cents, expense_cents, savings_cents, savings_rate, export_status
		FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// LatestSnapshot returns the most recent snapshot summary.
func (r *Repository) LatestSnapshot(ctx context.Context) (SnapshotRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, fetched_at, net_worth_cents, account_count,
			income_cents, expense_cents, savings_cents, savings_rate, export_status
		FROM snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1`)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (SnapshotRow, error) {
	var (
		s         SnapshotRow
		fetchedAt int64
	)
	err := row.Scan(&s.ID, &fetchedAt, &s.NetWorth.Cents, &s.AccountCount,
		&s.Income.Cents, &s.Expense.Cents, &s.Savings.Cents, &s.SavingsRate, &s.ExportStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRow{}, ErrNotFound
	}
	if err != nil {
		return SnapshotRow{}, fmt.Errorf("scan snapshot: %w", err)
	}
	s.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	return s, nil
}

// NetWorthHistory returns one point per snapshot within the last N days,
// oldest first.
func (r *Repository) NetWorthHistory(ctx context.Context, days int) ([]HistoryPoint, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	rows, err := r.db.QueryContext(ctx, `
		SELECT fetched_at, net_worth_cents FROM snapshots
		WHERE fetched_at >= ? ORDER BY fetched_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query net worth history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// TypeHistory returns the summed balance of all accounts with the given type
// key, one point per snapshot within the last N days, oldest first.
func (r *Repository) TypeHistory(ctx context.Context, typeKey string, days int) ([]HistoryPoint, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.fetched_at, COALESCE(SUM(b.balance_cents), 0)
		FROM snapshots s
		JOIN balances b ON b.snapshot_id = s.id
		WHERE s.fetched_at >= ? AND b.type_key = ?
		GROUP BY s.id ORDER BY s.fetched_at ASC`, cutoff, typeKey)
	if err != nil {
		return nil, fmt.Errorf("query type history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]HistoryPoint, error) {
	var points []HistoryPoint
	for rows.Next() {
		var (
			at    int64
			cents int64
		)
		if err := rows.Scan(&at, &cents); err != nil {
			return nil, fmt.Errorf("scan history point: %w", err)
		}
		points = append(points, HistoryPoint{
			At:    time.Unix(at, 0).UTC(),
			Value: core.Money{Cents: cents},
		})
	}
	return points, rows.Err()
}

// PendingExports returns snapshots that still need to be written to the
// spreadsheet, oldest first.
func (r *Repository) PendingExports(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, fetched_at, net_worth_cents, account_count,
			income_cents, expense_cents, savings_cents, savings_rate, export_status
		FROM snapshots WHERE export_status = ?
		ORDER BY fetched_at ASC LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending exports: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			s         SnapshotRow
			fetchedAt int64
		)
		if err := rows.Scan(&s.ID, &fetchedAt, &s.NetWorth.Cents, &s.AccountCount,
			&s.Income.Cents, &s.Expense.Cents, &s.Savings.Cents, &s.SavingsRate, &s.ExportStatus); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		s.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkExported records a successful spreadsheet write.
func (r *Repository) MarkExported(ctx context.Context, id int64) error {
	if err := r.setExportStatus(ctx, id, ExportDone, true); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Snapshot marked as exported", "id", id)
	return nil
}

// MarkExportError flags a snapshot whose spreadsheet write failed so it can
// be retried by the startup check.
func (r *Repository) MarkExportError(ctx context.Context, id int64) error {
	if err := r.setExportStatus(ctx, id, ExportErrored, false); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Snapshot marked with export error", "id", id)
	return nil
}

// RequeueErrored flips errored snapshots back to pending. Used at worker
// startup to retry rows that failed on a previous run.
func (r *Repository) RequeueErrored(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE snapshots SET export_status = ? WHERE export_status = ?`,
		ExportPending, ExportErrored)
	if err != nil {
		return 0, fmt.Errorf("requeue errored exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}
	return n, nil
}

func (r *Repository) setExportStatus(ctx context.Context, id int64, status string, stamp bool) error {
	var (
		res sql.Result
		err error
	)
	if stamp {
		res, err = r.db.ExecContext(ctx,
			`UPDATE snapshots SET export_status = ?, exported_at = ? WHERE id = ?`,
			status, time.Now().Unix(), id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE snapshots SET export_status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("export status rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune deletes snapshots fetched before the cutoff along with their
// balances and returns how many snapshots were removed.
func (r *Repository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE fetched_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned old snapshots", "removed", n, "cutoff", olderThan.Format(time.RFC3339))
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
