package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"swebench-validator/logger"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore opens a SQLite database and initializes the schema.
func NewSQLiteStore(dbPath string, log logger.Logger) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info("store.sqlite.opened", logger.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS validation_runs (
    id TEXT PRIMARY KEY,
    data_dir TEXT NOT NULL DEFAULT '',
    model_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'running',
    total_files INTEGER NOT NULL DEFAULT 0,
    successful_files INTEGER NOT NULL DEFAULT 0,
    failed_files INTEGER NOT NULL DEFAULT 0,
    success_rate REAL NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON validation_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON validation_runs(started_at);

CREATE TABLE IF NOT EXISTS file_records (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES validation_runs(id),
    file_name TEXT NOT NULL,
    instance_id TEXT NOT NULL DEFAULT '',
    harness_run_id TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    resolved BOOLEAN NOT NULL DEFAULT 0,
    fail_to_pass_match BOOLEAN NOT NULL DEFAULT 0,
    pass_to_pass_match BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_files_run ON file_records(run_id);
CREATE INDEX IF NOT EXISTS idx_files_instance ON file_records(instance_id);
CREATE INDEX IF NOT EXISTS idx_files_status ON file_records(status);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *ValidationRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_runs
		 (id, data_dir, model_name, status, total_files, successful_files, failed_files, success_rate, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DataDir, run.ModelName, run.Status, run.TotalFiles,
		run.SuccessfulFiles, run.FailedFiles, run.SuccessRate, run.Error,
		run.StartedAt, nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *ValidationRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE validation_runs SET data_dir=?, model_name=?, status=?, total_files=?,
		 successful_files=?, failed_files=?, success_rate=?, error=?, started_at=?, finished_at=?
		 WHERE id=?`,
		run.DataDir, run.ModelName, run.Status, run.TotalFiles,
		run.SuccessfulFiles, run.FailedFiles, run.SuccessRate, run.Error,
		run.StartedAt, nullTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*ValidationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data_dir, model_name, status, total_files, successful_files, failed_files, success_rate, error, started_at, finished_at
		 FROM validation_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*ValidationRun, error) {
	query := `SELECT id, data_dir, model_name, status, total_files, successful_files, failed_files, success_rate, error, started_at, finished_at
	 FROM validation_runs`
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY started_at DESC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", normLimit(filter.Limit), normOffset(filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*ValidationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) CreateFileRecord(ctx context.Context, rec *FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_records
		 (id, run_id, file_name, instance_id, harness_run_id, success, status, reason, resolved, fail_to_pass_match, pass_to_pass_match, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.FileName, rec.InstanceID, rec.HarnessRunID,
		rec.Success, rec.Status, rec.Reason, rec.Resolved,
		rec.FailToPassMatch, rec.PassToPassMatch, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFileRecords(ctx context.Context, filter FileFilter) ([]*FileRecord, error) {
	query := `SELECT id, run_id, file_name, instance_id, harness_run_id, success, status, reason, resolved, fail_to_pass_match, pass_to_pass_match, created_at
	 FROM file_records`
	var conditions []string
	var args []any

	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.InstanceID != "" {
		conditions = append(conditions, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", normLimit(filter.Limit), normOffset(filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}
	defer rows.Close()

	var recs []*FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunsByStatus:  make(map[RunStatus]int),
		FilesByStatus: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM validation_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	for rows.Next() {
		var status RunStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		summary.RunsByStatus[status] = n
		summary.TotalRuns += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	today := time.Now().Truncate(24 * time.Hour)
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validation_runs WHERE started_at >= ?`, today)
	if err := row.Scan(&summary.TodayRuns); err != nil {
		return nil, fmt.Errorf("count today runs: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM file_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		summary.FilesByStatus[status] = n
		summary.TotalFiles += n
		if status == "success" {
			summary.ValidatedFiles += n
		}
	}
	return summary, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info("store.sqlite.closing")
	return s.db.Close()
}

// ---------- scan helpers ----------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*ValidationRun, error) {
	var run ValidationRun
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.DataDir, &run.ModelName, &run.Status, &run.TotalFiles,
		&run.SuccessfulFiles, &run.FailedFiles, &run.SuccessRate, &run.Error,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var rec FileRecord
	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.FileName, &rec.InstanceID, &rec.HarnessRunID,
		&rec.Success, &rec.Status, &rec.Reason, &rec.Resolved,
		&rec.FailToPassMatch, &rec.PassToPassMatch, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func normOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
