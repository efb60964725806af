// Package sqlrepo is the SQL implementation of repository.JobStore. The same
// queries run on PostgreSQL (pgx) and SQLite (modernc) through sqlx.Rebind.
package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/newsroom/internal/broadcast/domain"
	"github.com/romariotrain/newsroom/internal/broadcast/models"
	"github.com/romariotrain/newsroom/internal/broadcast/repository"
)

type Store struct {
	db      *sqlx.DB
	dialect dialect
	clock   func() time.Time
}

var _ repository.JobStore = (*Store)(nil)

func New(db *sqlx.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: d, clock: time.Now}, nil
}

type jobRow struct {
	ID              uuid.UUID      `db:"id"`
	CorrelationID   uuid.UUID      `db:"correlation_id"`
	Status          string         `db:"status"`
	StatusMessage   string         `db:"status_message"`
	ProgressPercent int            `db:"progress_percent"`
	RequestJSON     []byte         `db:"request_json"`
	ScriptJSON      sql.NullString `db:"script_json"`
	OutputVideoPath string         `db:"output_video_path"`
	ErrorMessage    string         `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	Version         int64          `db:"version"`
}

const jobColumns = `id, correlation_id, status, status_message, progress_percent,
	request_json, script_json, output_video_path, error_message,
	created_at, updated_at, completed_at, version`

func toRow(j *models.Job) (jobRow, error) {
	req, err := json.Marshal(j.Request)
	if err != nil {
		return jobRow{}, fmt.Errorf("marshal request: %w", err)
	}
	row := jobRow{
		ID:              j.ID,
		CorrelationID:   j.CorrelationID,
		Status:          string(j.Status),
		StatusMessage:   j.StatusMessage,
		ProgressPercent: j.ProgressPercent,
		RequestJSON:     req,
		OutputVideoPath: j.OutputVideoPath,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt.UTC(),
		UpdatedAt:       j.UpdatedAt.UTC(),
		Version:         j.Version,
	}
	if j.Script != nil {
		raw, err := json.Marshal(j.Script)
		if err != nil {
			return jobRow{}, fmt.Errorf("marshal script: %w", err)
		}
		row.ScriptJSON = sql.NullString{String: string(raw), Valid: true}
	}
	if j.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: j.CompletedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (r jobRow) toJob() (*models.Job, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	j := &models.Job{
		ID:              r.ID,
		CorrelationID:   r.CorrelationID,
		Status:          status,
		StatusMessage:   r.StatusMessage,
		ProgressPercent: r.ProgressPercent,
		OutputVideoPath: r.OutputVideoPath,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		Version:         r.Version,
	}
	if err := json.Unmarshal(r.RequestJSON, &j.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if r.ScriptJSON.Valid {
		var s models.Script
		if err := json.Unmarshal([]byte(r.ScriptJSON.String), &s); err != nil {
			return nil, fmt.Errorf("unmarshal script: %w", err)
		}
		j.Script = &s
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	job.Version = 1
	row, err := toRow(job)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM broadcast_jobs WHERE id = ?`), job.ID)
	if err != nil {
		return fmt.Errorf("job create: %w", err)
	}
	if exists > 0 {
		return models.ErrConflict
	}

	q := `INSERT INTO broadcast_jobs (` + jobColumns + `)
		VALUES (:id, :correlation_id, :status, :status_message, :progress_percent,
			:request_json, :script_json, :output_video_path, :error_message,
			:created_at, :updated_at, :completed_at, :version)`
	if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("job create: %w", err)
	}
	if err := s.addEvent(ctx, tx, models.NewBroadcastStatusChanged("", job)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	var row jobRow
	q := s.db.Rebind(`SELECT ` + jobColumns + ` FROM broadcast_jobs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("job get by id: %w", err)
	}
	return row.toJob()
}

func (s *Store) Update(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current struct {
		Status  string `db:"status"`
		Version int64  `db:"version"`
	}
	q := s.db.Rebind(`SELECT status, version FROM broadcast_jobs WHERE id = ?`)
	if err := tx.GetContext(ctx, &current, q, job.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("job update: %w", err)
	}
	if current.Version != job.Version {
		return fmt.Errorf("%w: version %d, stored %d", models.ErrConflict, job.Version, current.Version)
	}
	from := domain.Status(current.Status)
	if from.IsTerminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, from)
	}

	row, err := toRow(job)
	if err != nil {
		return err
	}
	row.Version = job.Version + 1

	update := `UPDATE broadcast_jobs SET
			status = ?, status_message = ?, progress_percent = ?,
			request_json = ?, script_json = ?, output_video_path = ?, error_message = ?,
			updated_at = ?, completed_at = ?, version = ?
		WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, s.db.Rebind(update),
		row.Status, row.StatusMessage, row.ProgressPercent,
		row.RequestJSON, row.ScriptJSON, row.OutputVideoPath, row.ErrorMessage,
		row.UpdatedAt, row.CompletedAt, row.Version,
		row.ID, job.Version,
	)
	if err != nil {
		return fmt.Errorf("job update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrConflict
	}

	job.Version = row.Version
	if from != job.Status {
		if err := s.addEvent(ctx, tx, models.NewBroadcastStatusChanged(from, job)); err != nil {
			job.Version--
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		job.Version--
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, n int) ([]*models.Job, error) {
	if n <= 0 {
		return []*models.Job{}, nil
	}
	var rows []jobRow
	q := s.db.Rebind(`SELECT ` + jobColumns + ` FROM broadcast_jobs ORDER BY created_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, n); err != nil {
		return nil, fmt.Errorf("job list recent: %w", err)
	}
	out := make([]*models.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
