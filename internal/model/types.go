package model

import "time"

// Valid values for exam configuration enums. These must match the
// strings accepted on the wire by POST /v1/exam/generate.
var (
	ValidQuestionTypes = []string{"multiple_choice", "true_false", "mixed"}
	ValidDifficulties  = []string{"easy", "medium", "hard"}
)

// ExamConfig is the immutable generation parameter snapshot captured
// at submission time.
type ExamConfig struct {
	QuestionCount         int      `json:"questionCount"`
	QuestionTypes         []string `json:"questionTypes"`
	Difficulty            string   `json:"difficulty"`
	Versions              int      `json:"versions"`
	IncludeSelfAssessment bool     `json:"includeSelfAssessment"`
	Language              string   `json:"language,omitempty"`
}

// Question is one generated exam question as returned by the content
// generator.
type Question struct {
	ID            int      `json:"id"`
	Type          string   `json:"type"`
	Topic         string   `json:"topic"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// SelfAssessmentQuestion carries per-option feedback in addition to
// the question itself.
type SelfAssessmentQuestion struct {
	ID            int               `json:"id"`
	Topic         string            `json:"topic"`
	Question      string            `json:"question"`
	Options       []string          `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	Feedback      map[string]string `json:"feedback"`
}

// Artifact kinds for generated files.
const (
	ArtifactStudent        = "student_version"
	ArtifactTeacher        = "teacher_version"
	ArtifactSelfAssessment = "self_assessment"
)

// Artifact describes one persisted rendered output (student sheet,
// teacher sheet, or self-assessment) tied to a job and version.
type Artifact struct {
	Kind    string `json:"type"`
	Version int    `json:"version"`
	S3Key   string `json:"s3Key"`
	Format  string `json:"format"`
}

// StepDetails is structured, display-oriented metadata about the
// current pipeline step.
type StepDetails struct {
	StepName               string `json:"stepName"`
	StepCategory           string `json:"stepCategory"`
	CurrentVersion         int    `json:"currentVersion,omitempty"`
	PercentagePerVersion   int    `json:"percentagePerVersion,omitempty"`
	CurrentVersionProgress int    `json:"currentVersionProgress,omitempty"`
}

// Progress is the mutable sub-record embedded in an exam job. It is
// owned exclusively by the worker while the job is PROCESSING.
type Progress struct {
	CurrentStep         string       `json:"currentStep"`
	CompletedVersions   int          `json:"completedVersions"`
	TotalVersions       int          `json:"totalVersions"`
	Percentage          int          `json:"percentage"`
	EstimatedCompletion *time.Time   `json:"estimatedCompletion,omitempty"`
	Velocity            float64      `json:"velocity,omitempty"`
	StepDetails         *StepDetails `json:"stepDetails,omitempty"`
	Message             string       `json:"message,omitempty"`
	LastUpdated         time.Time    `json:"lastUpdated"`
}
