package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"swebench-validator/logger"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds connection settings for the MySQL store.
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore implements Store using MySQL. Useful when several validator
// hosts share one ledger.
type MySQLStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewMySQLStore opens a MySQL database and initializes the schema.
func NewMySQLStore(cfg MySQLConfig, log logger.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info("store.mysql.opened")
	return s, nil
}

func (s *MySQLStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS validation_runs (
    id VARCHAR(64) PRIMARY KEY,
    data_dir VARCHAR(512) NOT NULL DEFAULT '',
    model_name VARCHAR(128) NOT NULL DEFAULT '',
    status VARCHAR(32) NOT NULL DEFAULT 'running',
    total_files INT NOT NULL DEFAULT 0,
    successful_files INT NOT NULL DEFAULT 0,
    failed_files INT NOT NULL DEFAULT 0,
    success_rate DOUBLE NOT NULL DEFAULT 0,
    error TEXT NOT NULL,
    started_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    finished_at DATETIME(3) NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE INDEX idx_runs_status ON validation_runs(status)`,
		`CREATE INDEX idx_runs_started_at ON validation_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS file_records (
    id VARCHAR(64) PRIMARY KEY,
    run_id VARCHAR(64) NOT NULL,
    file_name VARCHAR(256) NOT NULL,
    instance_id VARCHAR(256) NOT NULL DEFAULT '',
    harness_run_id VARCHAR(256) NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(32) NOT NULL DEFAULT '',
    reason TEXT NOT NULL,
    resolved BOOLEAN NOT NULL DEFAULT FALSE,
    fail_to_pass_match BOOLEAN NOT NULL DEFAULT FALSE,
    pass_to_pass_match BOOLEAN NOT NULL DEFAULT FALSE,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    CONSTRAINT fk_files_run FOREIGN KEY (run_id) REFERENCES validation_runs(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE INDEX idx_files_run ON file_records(run_id)`,
		`CREATE INDEX idx_files_instance ON file_records(instance_id)`,
		`CREATE INDEX idx_files_status ON file_records(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			// Index creation is not idempotent on MySQL; tolerate reruns.
			if strings.HasPrefix(stmt, "CREATE INDEX") && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *MySQLStore) CreateRun(ctx context.Context, run *ValidationRun) error {
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

func (s *MySQLStore) UpdateRun(ctx context.Context, run *ValidationRun) error {
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

func (s *MySQLStore) GetRun(ctx context.Context, id string) (*ValidationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data_dir, model_name, status, total_files, successful_files, failed_files, success_rate, error, started_at, finished_at
		 FROM validation_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *MySQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*ValidationRun, error) {
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

func (s *MySQLStore) CreateFileRecord(ctx context.Context, rec *FileRecord) error {
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

func (s *MySQLStore) ListFileRecords(ctx context.Context, filter FileFilter) ([]*FileRecord, error) {
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

func (s *MySQLStore) GetSummary(ctx context.Context) (*Summary, error) {
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

func (s *MySQLStore) Close() error {
	s.log.Info("store.mysql.closing")
	return s.db.Close()
}
