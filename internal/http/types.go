package http

import (
	"time"

	"examgen/internal/model"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// GenerateExamRequest is the POST /v1/exam/generate body.
type GenerateExamRequest struct {
	SelectedTopics  []string          `json:"selectedTopics"`
	ExamConfig      *model.ExamConfig `json:"examConfig"`
	TeacherID       string            `json:"teacherId,omitempty"`
	SourceDocuments []string          `json:"sourceDocuments,omitempty"`
}

// GenerateExamResponse is returned synchronously at submission; the
// caller never blocks on generation.
type GenerateExamResponse struct {
	Success             bool            `json:"success"`
	ExamID              string          `json:"examId"`
	Status              string          `json:"status"`
	EstimatedCompletion *time.Time      `json:"estimatedCompletion,omitempty"`
	Progress            *model.Progress `json:"progress,omitempty"`
}

// ExamStatusResponse is the poll snapshot for one job. Artifacts and
// completedAt appear only once the job is COMPLETED; errorMessage and
// failedAt only when FAILED.
type ExamStatusResponse struct {
	Success        bool              `json:"success"`
	ExamID         string            `json:"examId"`
	Status         string            `json:"status"`
	SelectedTopics []string          `json:"selectedTopics"`
	ExamConfig     *model.ExamConfig `json:"examConfig,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Progress       *model.Progress   `json:"progress,omitempty"`
	GeneratedFiles []model.Artifact  `json:"generatedFiles,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	Partial        bool              `json:"partial,omitempty"`
	FailedVersions []int             `json:"failedVersions,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	FailedAt       *time.Time        `json:"failedAt,omitempty"`
}

// ExamHistoryItem is one row of the exam history listing.
type ExamHistoryItem struct {
	ExamID         string     `json:"examId"`
	Status         string     `json:"status"`
	TeacherID      string     `json:"teacherId"`
	SelectedTopics []string   `json:"selectedTopics"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ArtifactCount  int        `json:"artifactCount"`
}

// ExamHistoryResponse is the GET /v1/exam/history payload.
type ExamHistoryResponse struct {
	Success bool              `json:"success"`
	Code    string            `json:"code,omitempty"`
	Error   string            `json:"error,omitempty"`
	Exams   []ExamHistoryItem `json:"exams"`
}

// DownloadResponse carries a presigned artifact download URL.
type DownloadResponse struct {
	Success   bool      `json:"success"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
