package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for batch, period, job, and run tracking.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// Concurrent stage workers share this one file; a single connection
	// serializes their writes instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			batch_date TEXT PRIMARY KEY,
			filename TEXT,
			status TEXT,
			rows INTEGER,
			last_error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS periods (
			period_key TEXT PRIMARY KEY,
			report_type TEXT,
			report_date INTEGER,
			status TEXT,
			rows INTEGER,
			missing_days INTEGER,
			last_error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT,
			stage TEXT,
			status TEXT,
			params_json TEXT,
			idempotency_key TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key);`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			job_id INTEGER,
			line TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			kind TEXT,
			status TEXT,
			detail TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Batch tracks one daily archive through enrichment.
type Batch struct {
	Date      string    `json:"batch_date"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	Rows      int       `json:"rows"`
	LastError *string   `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PeriodRecord tracks one reporting window through materialization and
// aggregation.
type PeriodRecord struct {
	Key         string    `json:"period_key"`
	ReportType  string    `json:"report_type"`
	ReportDate  int       `json:"report_date"`
	Status      string    `json:"status"`
	Rows        int       `json:"rows"`
	MissingDays int       `json:"missing_days"`
	LastError   *string   `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Job is a persisted unit of pipeline work.
type Job struct {
	ID             int64      `json:"id"`
	Subject        string     `json:"subject"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	ParamsJSON     string     `json:"params_json"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

// Run records one end-to-end pipeline invocation.
type Run struct {
	RunID      string     `json:"run_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Detail     *string    `json:"detail"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (s *Store) UpsertBatch(ctx context.Context, date, filename, status string, rows int, errMsg *string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO batches(batch_date, filename, status, rows, last_error, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_date) DO UPDATE SET filename=excluded.filename, status=excluded.status, rows=excluded.rows, last_error=excluded.last_error, updated_at=excluded.updated_at`,
		date, filename, status, rows, errMsg, ts, ts)
	return err
}

func (s *Store) UpsertPeriod(ctx context.Context, p *PeriodRecord, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO periods(period_key, report_type, report_date, status, rows, missing_days, last_error, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_key) DO UPDATE SET status=excluded.status, rows=excluded.rows, missing_days=excluded.missing_days, last_error=excluded.last_error, updated_at=excluded.updated_at`,
		p.Key, p.ReportType, p.ReportDate, p.Status, p.Rows, p.MissingDays, p.LastError, ts, ts)
	return err
}

func (s *Store) RecordJob(ctx context.Context, j *Job) (*Job, error) {
	if j.ParamsJSON == "" {
		j.ParamsJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO jobs(subject, stage, status, params_json, idempotency_key, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		j.Subject, j.Stage, j.Status, j.ParamsJSON, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	j.ID = id
	return j, nil
}

// FetchJobByIdempotency returns existing job if present.
func (s *Store) FetchJobByIdempotency(ctx context.Context, key string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, subject, stage, status, params_json, idempotency_key, created_at, updated_at, started_at, finished_at FROM jobs WHERE idempotency_key=?`, key)
	var j Job
	var started, finished sql.NullTime
	switch err := row.Scan(&j.ID, &j.Subject, &j.Stage, &j.Status, &j.ParamsJSON, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err {
	case nil:
		if started.Valid {
			j.StartedAt = &started.Time
		}
		if finished.Valid {
			j.FinishedAt = &finished.Time
		}
		return &j, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (s *Store) UpdateJobStatus(ctx context.Context, id int64, status string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, updated_at=? WHERE id=?`, status, ts, id)
	return err
}

func (s *Store) MarkJobStarted(ctx context.Context, id int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, started_at=?, updated_at=? WHERE id=?`, "running", ts, ts, id)
	return err
}

func (s *Store) MarkJobFinished(ctx context.Context, id int64, status string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, finished_at=?, updated_at=? WHERE id=?`, status, ts, ts, id)
	return err
}

func (s *Store) AppendJobLog(ctx context.Context, id int64, line string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_logs(job_id, line, created_at) VALUES(?,?,?)`, id, line, ts)
	return err
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT batch_date, filename, status, rows, last_error, created_at, updated_at FROM batches ORDER BY batch_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var b Batch
		var errMsg sql.NullString
		if err := rows.Scan(&b.Date, &b.Filename, &b.Status, &b.Rows, &errMsg, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			b.LastError = &errMsg.String
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) ListPeriods(ctx context.Context, limit int) ([]PeriodRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT period_key, report_type, report_date, status, rows, missing_days, last_error, created_at, updated_at FROM periods ORDER BY report_date DESC, period_key ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []PeriodRecord
	for rows.Next() {
		var p PeriodRecord
		var errMsg sql.NullString
		if err := rows.Scan(&p.Key, &p.ReportType, &p.ReportDate, &p.Status, &p.Rows, &p.MissingDays, &errMsg, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			p.LastError = &errMsg.String
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subject, stage, status, params_json, idempotency_key, created_at, updated_at, started_at, finished_at FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var j Job
		var started, finished sql.NullTime
		if err := rows.Scan(&j.ID, &j.Subject, &j.Stage, &j.Status, &j.ParamsJSON, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err != nil {
			return nil, err
		}
		if started.Valid {
			j.StartedAt = &started.Time
		}
		if finished.Valid {
			j.FinishedAt = &finished.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) JobLogs(ctx context.Context, jobID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM job_logs WHERE job_id=? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

var ErrConflict = errors.New("idempotent job already exists")

// InsertJobIdempotent records a job if idempotency key is new.
func (s *Store) InsertJobIdempotent(ctx context.Context, j *Job) (*Job, error) {
	existing, err := s.FetchJobByIdempotency(ctx, j.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrConflict
	}
	return s.RecordJob(ctx, j)
}

func (s *Store) CreateRun(ctx context.Context, runID, kind string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, kind, status, started_at) VALUES(?, ?, 'running', ?)`, runID, kind, ts)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, detail *string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, detail=?, finished_at=? WHERE run_id=?`, status, detail, ts, runID)
	return err
}

func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id, kind, status, detail, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT 1`)
	var r Run
	var detail sql.NullString
	var finished sql.NullTime
	switch err := row.Scan(&r.RunID, &r.Kind, &r.Status, &detail, &r.StartedAt, &finished); err {
	case nil:
		if detail.Valid {
			r.Detail = &detail.String
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		return &r, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
