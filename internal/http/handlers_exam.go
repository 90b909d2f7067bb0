package http

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"examgen/internal/blob"
	"examgen/internal/exam"
	"examgen/internal/jobs"
	"examgen/internal/model"
	"examgen/internal/store"
)

// Artifact download URLs stay valid for this long.
const downloadURLExpiry = time.Hour

// newExamID prefers uuidv7 when available.
func newExamID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// generateExamHandler validates a submission, persists the initial
// PROCESSING record, and returns immediately. The worker picks the
// job up from the queue; nothing on this path blocks on generation.
func generateExamHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	var req GenerateExamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_JSON",
			Error:   "Request body must be valid JSON",
		})
	}

	if len(req.SelectedTopics) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "MISSING_TOPICS",
			Error:   "selectedTopics array is required",
		})
	}
	if req.ExamConfig == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "MISSING_CONFIG",
			Error:   "examConfig is required",
		})
	}
	if err := exam.ValidateConfig(*req.ExamConfig); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_CONFIG",
			Error:   err.Error(),
		})
	}

	teacherID := req.TeacherID
	if teacherID == "" {
		teacherID = "admin"
	}

	examID := newExamID()
	now := time.Now().UTC()
	eta := now.Add(5 * time.Minute)
	initial := model.Progress{
		CurrentStep:         "initializing",
		TotalVersions:       req.ExamConfig.Versions,
		Percentage:          0,
		EstimatedCompletion: &eta,
		LastUpdated:         now,
	}

	job, err := st.CreateExamJob(c.Context(), examID, teacherID, req.SelectedTopics, *req.ExamConfig, req.SourceDocuments, initial)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXAM_CREATE_FAILED",
			Error:   fmt.Sprintf("failed to create exam job: %v", err),
		})
	}

	if logger, ok := c.Locals("logger").(*slog.Logger); ok && logger != nil {
		logger.Info("exam_enqueued",
			"exam_id", examID.String(),
			"topics", len(req.SelectedTopics),
			"versions", req.ExamConfig.Versions,
			"self_assessment", req.ExamConfig.IncludeSelfAssessment,
		)
	}

	progress, _ := job.DecodeProgress()
	return c.JSON(GenerateExamResponse{
		Success:             true,
		ExamID:              examID.String(),
		Status:              string(jobs.StatusProcessing),
		EstimatedCompletion: progress.EstimatedCompletion,
		Progress:            &progress,
	})
}

// examIDFromPath extracts the exam id, trying each transport
// convention in order: the examId route param, a generic id param,
// then the trailing path segment.
func examIDFromPath(c *fiber.Ctx) string {
	if id := c.Params("examId"); id != "" {
		return id
	}
	if id := c.Params("id"); id != "" {
		return id
	}

	path := strings.TrimSuffix(c.Path(), "/")
	if idx := strings.LastIndex(path, "/"); idx != -1 {
		segment := path[idx+1:]
		if segment != "generate" && segment != "exam" {
			return segment
		}
	}
	return ""
}

// examStatusHandler returns the current snapshot for one job. The
// response is marked uncacheable because status changes between
// successive polls.
func examStatusHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	rawID := examIDFromPath(c)
	if rawID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "MISSING_EXAM_ID",
			Error:   "examId is required",
		})
	}

	examID, err := uuid.Parse(rawID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_EXAM_ID",
			Error:   "examId must be a valid UUID",
		})
	}

	job, err := st.GetExamJob(c.Context(), examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "EXAM_NOT_FOUND",
				Error:   "Exam not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXAM_LOOKUP_FAILED",
			Error:   fmt.Sprintf("failed to load exam job: %v", err),
		})
	}

	cfg, err := job.DecodeConfig()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXAM_CONFIG_INVALID",
			Error:   fmt.Sprintf("stored exam config is malformed: %v", err),
		})
	}

	resp := ExamStatusResponse{
		Success:        true,
		ExamID:         job.ID.String(),
		Status:         job.Status,
		SelectedTopics: job.DecodeTopics(),
		ExamConfig:     &cfg,
		CreatedAt:      job.CreatedAt,
	}
	if progress, ok := job.DecodeProgress(); ok {
		resp.Progress = &progress
	}

	switch jobs.Status(job.Status) {
	case jobs.StatusCompleted:
		resp.GeneratedFiles = job.DecodeArtifacts()
		if job.CompletedAt.Valid {
			t := job.CompletedAt.Time
			resp.CompletedAt = &t
		}
		if failed := job.DecodeFailedVersions(); len(failed) > 0 {
			resp.Partial = true
			resp.FailedVersions = failed
		}
	case jobs.StatusFailed:
		if job.ErrorMessage.Valid {
			resp.ErrorMessage = job.ErrorMessage.String
		}
		if job.FailedAt.Valid {
			t := job.FailedAt.Time
			resp.FailedAt = &t
		}
	}

	// Pollers must always see the live status.
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}

// examHistoryHandler lists exam jobs newest first, optionally scoped
// to one teacher.
func examHistoryHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ExamHistoryResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid limit value",
			})
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ExamHistoryResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid offset value",
			})
		}
		offset = n
	}

	items, err := st.ListExamJobs(c.Context(), c.Query("teacherId"), int32(limit), int32(offset))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ExamHistoryResponse{
			Success: false,
			Code:    "HISTORY_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	exams := make([]ExamHistoryItem, 0, len(items))
	for _, job := range items {
		item := ExamHistoryItem{
			ExamID:         job.ID.String(),
			Status:         job.Status,
			TeacherID:      job.TeacherID,
			SelectedTopics: job.DecodeTopics(),
			CreatedAt:      job.CreatedAt,
			ArtifactCount:  len(job.DecodeArtifacts()),
		}
		if job.CompletedAt.Valid {
			t := job.CompletedAt.Time
			item.CompletedAt = &t
		}
		exams = append(exams, item)
	}

	return c.JSON(ExamHistoryResponse{Success: true, Exams: exams})
}

// examDownloadHandler returns a presigned download URL for one
// artifact. The requested key must belong to the job's artifact list.
func examDownloadHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	blobs, _ := c.Locals("blob").(blob.Store)

	rawID := examIDFromPath(c)
	examID, err := uuid.Parse(rawID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_EXAM_ID",
			Error:   "examId must be a valid UUID",
		})
	}

	key := c.Query("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "MISSING_FILE_KEY",
			Error:   "key query parameter is required",
		})
	}

	job, err := st.GetExamJob(c.Context(), examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "EXAM_NOT_FOUND",
				Error:   "Exam not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXAM_LOOKUP_FAILED",
			Error:   fmt.Sprintf("failed to load exam job: %v", err),
		})
	}

	found := false
	for _, artifact := range job.DecodeArtifacts() {
		if artifact.S3Key == key {
			found = true
			break
		}
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "FILE_NOT_FOUND",
			Error:   "Requested file does not belong to this exam",
		})
	}

	if blobs == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "STORAGE_UNAVAILABLE",
			Error:   "artifact storage is not configured",
		})
	}

	url, err := blobs.PresignGet(c.Context(), key, downloadURLExpiry)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "DOWNLOAD_URL_FAILED",
			Error:   fmt.Sprintf("failed to presign download: %v", err),
		})
	}

	return c.JSON(DownloadResponse{
		Success:   true,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(downloadURLExpiry),
	})
}
