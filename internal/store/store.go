package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"examgen/internal/model"
)

// ErrProgressConflict is returned by UpdateProgress when the guarded
// write matched zero rows because another writer advanced the
// progress sequence first.
var ErrProgressConflict = errors.New("progress sequence conflict")

// ExamJob mirrors one row of the exam_jobs table.
type ExamJob struct {
	ID              uuid.UUID
	Status          string
	TeacherID       string
	SelectedTopics  json.RawMessage
	ExamConfig      json.RawMessage
	SourceDocuments pqtype.NullRawMessage
	Progress        pqtype.NullRawMessage
	ProgressSeq     int32
	Artifacts       json.RawMessage
	FailedVersions  json.RawMessage
	ErrorMessage    sql.NullString
	CreatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
	FailedAt        sql.NullTime
	UpdatedAt       time.Time
}

const examJobColumns = `id, status, teacher_id, selected_topics, exam_config, source_documents,
	progress, progress_seq, artifacts, failed_versions, error_message,
	created_at, started_at, completed_at, failed_at, updated_at`

// Store wraps access to the exam_jobs table via a shared *sql.DB.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

func scanExamJob(row interface{ Scan(...any) error }) (ExamJob, error) {
	var job ExamJob
	err := row.Scan(
		&job.ID, &job.Status, &job.TeacherID, &job.SelectedTopics, &job.ExamConfig,
		&job.SourceDocuments, &job.Progress, &job.ProgressSeq, &job.Artifacts,
		&job.FailedVersions, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt,
		&job.CompletedAt, &job.FailedAt, &job.UpdatedAt,
	)
	return job, err
}

// CreateExamJob inserts the initial PROCESSING record for a new exam
// generation request.
func (s *Store) CreateExamJob(ctx context.Context, id uuid.UUID, teacherID string, topics []string, cfg model.ExamConfig, sourceDocs []string, progress model.Progress) (ExamJob, error) {
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return ExamJob{}, err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return ExamJob{}, err
	}
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return ExamJob{}, err
	}

	var docs pqtype.NullRawMessage
	if len(sourceDocs) > 0 {
		raw, err := json.Marshal(sourceDocs)
		if err != nil {
			return ExamJob{}, err
		}
		docs = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO exam_jobs (id, status, teacher_id, selected_topics, exam_config, source_documents, progress)
		VALUES ($1, 'PROCESSING', $2, $3, $4, $5, $6)
		RETURNING `+examJobColumns,
		id, teacherID, topicsJSON, cfgJSON, docs, progressJSON,
	)
	return scanExamJob(row)
}

// GetExamJob fetches a job by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetExamJob(ctx context.Context, id uuid.UUID) (ExamJob, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+examJobColumns+` FROM exam_jobs WHERE id = $1`, id)
	return scanExamJob(row)
}

// ListUnclaimedJobs returns up to `limit` PROCESSING jobs that no
// worker has claimed yet, oldest first.
func (s *Store) ListUnclaimedJobs(ctx context.Context, limit int32) ([]ExamJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+examJobColumns+`
		FROM exam_jobs
		WHERE status = 'PROCESSING' AND started_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ExamJob
	for rows.Next() {
		job, err := scanExamJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimExamJob marks a job as started. Returns false when another
// worker claimed it first, which the runner treats as "skip".
func (s *Store) ClaimExamJob(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET started_at = now(), updated_at = now()
		WHERE id = $1 AND started_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateProgress writes the full enriched progress record, guarded by
// the progress sequence so concurrent writers for the same job cannot
// silently clobber each other. On success the stored sequence is
// expectedSeq+1.
func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, progress model.Progress, expectedSeq int32) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET progress = $2, progress_seq = progress_seq + 1, updated_at = now()
		WHERE id = $1 AND progress_seq = $3`, id, progressJSON, expectedSeq)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProgressConflict
	}
	return nil
}

// UpdateProgressMinimal is the degraded fallback write: a trimmed
// progress record with no sequence guard, used when the rich write
// fails. It still bumps the sequence so guarded writers notice.
func (s *Store) UpdateProgressMinimal(ctx context.Context, id uuid.UUID, progress model.Progress) error {
	minimal := model.Progress{
		CurrentStep:       progress.CurrentStep,
		CompletedVersions: progress.CompletedVersions,
		TotalVersions:     progress.TotalVersions,
		Percentage:        progress.Percentage,
		Message:           progress.Message,
		LastUpdated:       progress.LastUpdated,
	}
	progressJSON, err := json.Marshal(minimal)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET progress = $2, progress_seq = progress_seq + 1, updated_at = now()
		WHERE id = $1`, id, progressJSON)
	return err
}

// AppendArtifact appends one artifact descriptor server-side so the
// artifacts list only ever grows.
func (s *Store) AppendArtifact(ctx context.Context, id uuid.UUID, artifact model.Artifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET artifacts = artifacts || jsonb_build_array($2::jsonb), updated_at = now()
		WHERE id = $1`, id, raw)
	return err
}

// RecordFailedVersion appends a version number to failed_versions.
func (s *Store) RecordFailedVersion(ctx context.Context, id uuid.UUID, version int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET failed_versions = failed_versions || to_jsonb($2::int), updated_at = now()
		WHERE id = $1`, id, version)
	return err
}

// CompleteExamJob transitions a PROCESSING job to COMPLETED with its
// final progress. Terminal statuses are never overwritten.
func (s *Store) CompleteExamJob(ctx context.Context, id uuid.UUID, progress model.Progress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET status = 'COMPLETED', progress = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'`, id, progressJSON)
	return err
}

// FailExamJob transitions a PROCESSING job to FAILED with an error
// message.
func (s *Store) FailExamJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE exam_jobs
		SET status = 'FAILED', error_message = $2, failed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'`, id, errMsg)
	return err
}

// ListExamJobs returns jobs newest first for the history endpoint,
// optionally scoped to one teacher.
func (s *Store) ListExamJobs(ctx context.Context, teacherID string, limit, offset int32) ([]ExamJob, error) {
	query := `SELECT ` + examJobColumns + ` FROM exam_jobs`
	args := []any{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, teacherID, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ExamJob
	for rows.Next() {
		job, err := scanExamJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DecodeTopics unmarshals the stored topic list.
func (j ExamJob) DecodeTopics() []string {
	var topics []string
	_ = json.Unmarshal(j.SelectedTopics, &topics)
	return topics
}

// DecodeConfig unmarshals the stored generation config snapshot.
func (j ExamJob) DecodeConfig() (model.ExamConfig, error) {
	var cfg model.ExamConfig
	err := json.Unmarshal(j.ExamConfig, &cfg)
	return cfg, err
}

// DecodeProgress unmarshals the stored progress record, if any.
func (j ExamJob) DecodeProgress() (model.Progress, bool) {
	if !j.Progress.Valid {
		return model.Progress{}, false
	}
	var p model.Progress
	if err := json.Unmarshal(j.Progress.RawMessage, &p); err != nil {
		return model.Progress{}, false
	}
	return p, true
}

// DecodeArtifacts unmarshals the artifact descriptor list.
func (j ExamJob) DecodeArtifacts() []model.Artifact {
	var artifacts []model.Artifact
	_ = json.Unmarshal(j.Artifacts, &artifacts)
	return artifacts
}

// DecodeFailedVersions unmarshals the failed version list.
func (j ExamJob) DecodeFailedVersions() []int {
	var versions []int
	_ = json.Unmarshal(j.FailedVersions, &versions)
	return versions
}
