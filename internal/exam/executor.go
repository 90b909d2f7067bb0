package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"examgen/internal/blob"
	"examgen/internal/jobs"
	"examgen/internal/llm"
	"examgen/internal/metrics"
	"examgen/internal/model"
	"examgen/internal/progress"
	"examgen/internal/store"
)

// Generation percentages: a small initial slice, then the version
// loop spread across most of the bar, then self-assessment.
const (
	pctGeneratingQuestions = 5
	pctVersionSpan         = 85
	pctSelfAssessment      = 92
)

// JobStore is the narrow slice of the job store the executor needs.
// *store.Store satisfies it; tests use fakes.
type JobStore interface {
	GetExamJob(ctx context.Context, id uuid.UUID) (store.ExamJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, p model.Progress, expectedSeq int32) error
	UpdateProgressMinimal(ctx context.Context, id uuid.UUID, p model.Progress) error
	AppendArtifact(ctx context.Context, id uuid.UUID, artifact model.Artifact) error
	RecordFailedVersion(ctx context.Context, id uuid.UUID, version int) error
	CompleteExamJob(ctx context.Context, id uuid.UUID, p model.Progress) error
	FailExamJob(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Executor runs one exam generation job end to end: per-version
// question generation, artifact rendering and upload, progress
// updates, and the terminal status write.
type Executor struct {
	jobs     JobStore
	blobs    blob.Store
	llm      llm.Client
	provider string
	model    string
	logger   *slog.Logger
}

// NewExecutor constructs an Executor. Provider and model are recorded
// in generation metrics only.
func NewExecutor(jobStore JobStore, blobs blob.Store, client llm.Client, provider, model string, logger *slog.Logger) *Executor {
	return &Executor{
		jobs:     jobStore,
		blobs:    blobs,
		llm:      client,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

func (e *Executor) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Executor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

// ExecuteExamJob runs the generation pipeline for one claimed job.
// Versions are generated strictly sequentially; a failed version is
// recorded and skipped, never aborting the job. Only failures outside
// the per-version guard mark the job FAILED.
func (e *Executor) ExecuteExamJob(ctx context.Context, job store.ExamJob) {
	cfg, err := job.DecodeConfig()
	if err != nil {
		e.fail(ctx, job.ID, fmt.Sprintf("malformed exam config: %v", err))
		return
	}

	totalVersions := cfg.Versions
	if totalVersions < 1 {
		totalVersions = 1
	}
	topics := job.DecodeTopics()
	if len(topics) == 0 {
		e.fail(ctx, job.ID, "job record has no selected topics")
		return
	}

	tracker := &progressTracker{
		executor:      e,
		jobID:         job.ID,
		createdAt:     job.CreatedAt,
		totalVersions: totalVersions,
		seq:           job.ProgressSeq,
	}
	if p, ok := job.DecodeProgress(); ok {
		tracker.lastPercentage = p.Percentage
	}

	e.logInfo("exam_job_started",
		"exam_id", job.ID.String(),
		"versions", totalVersions,
		"self_assessment", cfg.IncludeSelfAssessment,
	)

	tracker.update(ctx, "generating_questions", pctGeneratingQuestions, "")

	var failedVersions []int
	for version := 1; version <= totalVersions; version++ {
		if err := e.generateVersion(ctx, job.ID, topics, cfg, version, totalVersions, tracker); err != nil {
			// Partial-failure policy: record, report, continue.
			failedVersions = append(failedVersions, version)
			if storeErr := e.jobs.RecordFailedVersion(ctx, job.ID, version); storeErr != nil {
				e.logWarn("record_failed_version_error",
					"exam_id", job.ID.String(),
					"version", version,
					"error", storeErr.Error(),
				)
			}
			tracker.update(ctx,
				fmt.Sprintf("version_%d_failed", version),
				versionDonePercentage(version, totalVersions),
				fmt.Sprintf("version %d generation failed: %v", version, err),
			)
			e.logWarn("exam_version_failed",
				"exam_id", job.ID.String(),
				"version", version,
				"error", err.Error(),
			)
			continue
		}

		tracker.completedVersions++
		tracker.update(ctx,
			fmt.Sprintf("completed_version_%d", version),
			versionDonePercentage(version, totalVersions),
			"",
		)
	}

	if cfg.IncludeSelfAssessment {
		tracker.update(ctx, "generating_self_assessment", pctSelfAssessment, "")
		if err := e.generateSelfAssessment(ctx, job.ID, topics, cfg); err != nil {
			// Self-assessment is optional; its absence never fails the job.
			e.logWarn("self_assessment_failed",
				"exam_id", job.ID.String(),
				"error", err.Error(),
			)
		}
	}

	final := model.Progress{
		CurrentStep:       "completed",
		CompletedVersions: tracker.completedVersions,
		TotalVersions:     totalVersions,
		Percentage:        100,
		StepDetails: &model.StepDetails{
			StepName:     "Completed",
			StepCategory: "completion",
		},
		LastUpdated: time.Now().UTC(),
	}
	if err := e.jobs.CompleteExamJob(ctx, job.ID, final); err != nil {
		e.fail(ctx, job.ID, fmt.Sprintf("finalize exam job: %v", err))
		return
	}

	metrics.RecordJobFinished(string(jobs.StatusCompleted))
	e.logInfo("exam_job_completed",
		"exam_id", job.ID.String(),
		"completed_versions", tracker.completedVersions,
		"failed_versions", len(failedVersions),
	)
}

// generateVersion produces, renders, and persists both artifacts for
// one exam version. Any error aborts only this version.
func (e *Executor) generateVersion(ctx context.Context, examID uuid.UUID, topics []string, cfg model.ExamConfig, version, totalVersions int, tracker *progressTracker) error {
	tracker.update(ctx,
		fmt.Sprintf("generating_version_%d", version),
		versionStartPercentage(version, totalVersions),
		"",
	)

	content, err := e.llm.Complete(ctx, llm.CompletionRequest{
		System:      questionSystemPrompt,
		Prompt:      BuildQuestionPrompt(topics, cfg, version),
		MaxTokens:   4000,
		Temperature: 0.3,
	})
	metrics.RecordLLMGeneration(e.provider, e.model, err == nil)
	if err != nil {
		return fmt.Errorf("question generation failed: %w", err)
	}

	questions, err := ParseQuestionsPayload(content)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	student := RenderExam(questions, VariantStudent, version, cfg, now)
	if err := e.putArtifact(ctx, examID, model.Artifact{
		Kind:    model.ArtifactStudent,
		Version: version,
		S3Key:   StudentKey(examID, version),
		Format:  "TXT",
	}, student); err != nil {
		return err
	}

	teacher := RenderExam(questions, VariantTeacher, version, cfg, now)
	if err := e.putArtifact(ctx, examID, model.Artifact{
		Kind:    model.ArtifactTeacher,
		Version: version,
		S3Key:   TeacherKey(examID, version),
		Format:  "TXT",
	}, teacher); err != nil {
		return err
	}

	return nil
}

// generateSelfAssessment produces and persists the optional
// self-assessment artifact.
func (e *Executor) generateSelfAssessment(ctx context.Context, examID uuid.UUID, topics []string, cfg model.ExamConfig) error {
	content, err := e.llm.Complete(ctx, llm.CompletionRequest{
		System:      questionSystemPrompt,
		Prompt:      BuildSelfAssessmentPrompt(topics, cfg),
		MaxTokens:   3000,
		Temperature: 0.2,
	})
	metrics.RecordLLMGeneration(e.provider, e.model, err == nil)
	if err != nil {
		return fmt.Errorf("self-assessment generation failed: %w", err)
	}

	questions, err := ParseSelfAssessmentPayload(content)
	if err != nil {
		return err
	}

	rendered := RenderSelfAssessment(questions, time.Now().UTC())
	return e.putArtifact(ctx, examID, model.Artifact{
		Kind:    model.ArtifactSelfAssessment,
		Version: 1,
		S3Key:   SelfAssessmentKey(examID),
		Format:  "TXT",
	}, rendered)
}

// putArtifact uploads the rendered content first and appends the
// descriptor only after the upload succeeds, so a referenced artifact
// is always retrievable.
func (e *Executor) putArtifact(ctx context.Context, examID uuid.UUID, artifact model.Artifact, content string) error {
	if err := e.blobs.Put(ctx, artifact.S3Key, []byte(content), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("upload %s: %w", artifact.S3Key, err)
	}
	if err := e.jobs.AppendArtifact(ctx, examID, artifact); err != nil {
		return fmt.Errorf("record artifact %s: %w", artifact.S3Key, err)
	}
	metrics.RecordArtifact(artifact.Kind)
	return nil
}

func (e *Executor) fail(ctx context.Context, examID uuid.UUID, msg string) {
	if err := e.jobs.FailExamJob(ctx, examID, msg); err != nil {
		e.logWarn("fail_exam_job_error",
			"exam_id", examID.String(),
			"error", err.Error(),
		)
		return
	}
	metrics.RecordJobFinished(string(jobs.StatusFailed))
	e.logInfo("exam_job_failed", "exam_id", examID.String(), "error", msg)
}

func versionStartPercentage(version, total int) int {
	return pctGeneratingQuestions + pctVersionSpan*(version-1)/total
}

func versionDonePercentage(version, total int) int {
	return pctGeneratingQuestions + pctVersionSpan*version/total
}

// progressTracker owns the persisted progress record for one job. It
// feeds the estimator before every write and degrades through the
// fallback chain rich write -> minimal write -> log only, so progress
// persistence can never take the job down.
type progressTracker struct {
	executor          *Executor
	jobID             uuid.UUID
	createdAt         time.Time
	totalVersions     int
	completedVersions int
	lastPercentage    int
	seq               int32
}

func (t *progressTracker) update(ctx context.Context, step string, percentage int, message string) {
	record := t.buildRecord(step, percentage, message)

	err := t.executor.jobs.UpdateProgress(ctx, t.jobID, record, t.seq)
	if errors.Is(err, store.ErrProgressConflict) {
		// Another writer advanced the sequence; re-read and retry once.
		if job, getErr := t.executor.jobs.GetExamJob(ctx, t.jobID); getErr == nil {
			t.seq = job.ProgressSeq
			err = t.executor.jobs.UpdateProgress(ctx, t.jobID, record, t.seq)
		}
	}
	if err == nil {
		t.seq++
		t.lastPercentage = record.Percentage
		return
	}

	// Degraded write: a trimmed record with no estimator output.
	if minErr := t.executor.jobs.UpdateProgressMinimal(ctx, t.jobID, record); minErr == nil {
		t.seq++
		t.lastPercentage = record.Percentage
		return
	}

	t.executor.logWarn("progress_write_failed",
		"exam_id", t.jobID.String(),
		"step", step,
		"error", err.Error(),
	)
}

// buildRecord assembles the enriched progress record. Estimator
// panics are recovered into a bare record so a bad computation never
// crashes the worker.
func (t *progressTracker) buildRecord(step string, percentage int, message string) (record model.Progress) {
	now := time.Now().UTC()

	record = model.Progress{
		CurrentStep:       step,
		CompletedVersions: t.completedVersions,
		TotalVersions:     t.totalVersions,
		Percentage:        percentage,
		Message:           message,
		LastUpdated:       now,
	}
	if record.Percentage < 0 {
		record.Percentage = 0
	}
	if record.Percentage > 100 {
		record.Percentage = 100
	}

	defer func() {
		if r := recover(); r != nil {
			t.executor.logWarn("progress_estimate_panic",
				"exam_id", t.jobID.String(),
				"step", step,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	snapshot := progress.Estimate(progress.Input{
		Now:                now,
		CreatedAt:          t.createdAt,
		PreviousPercentage: t.lastPercentage,
		CurrentPercentage:  percentage,
		TotalVersions:      t.totalVersions,
		CurrentStep:        step,
	})

	record.Percentage = snapshot.Percentage
	record.Velocity = snapshot.Velocity
	eta := snapshot.EstimatedCompletion
	record.EstimatedCompletion = &eta
	details := snapshot.StepDetails
	record.StepDetails = &details

	return record
}
