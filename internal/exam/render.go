package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"examgen/internal/model"
)

// Artifact variants for RenderExam.
const (
	VariantStudent = "student"
	VariantTeacher = "teacher"
)

// StudentKey returns the deterministic blob locator for a student
// sheet.
func StudentKey(examID uuid.UUID, version int) string {
	return fmt.Sprintf("exams/exam-%s/v%d-student.txt", examID, version)
}

// TeacherKey returns the deterministic blob locator for a teacher
// sheet.
func TeacherKey(examID uuid.UUID, version int) string {
	return fmt.Sprintf("exams/exam-%s/v%d-teacher.txt", examID, version)
}

// SelfAssessmentKey returns the deterministic blob locator for the
// self-assessment sheet.
func SelfAssessmentKey(examID uuid.UUID) string {
	return fmt.Sprintf("exams/exam-%s/self-assessment.txt", examID)
}

// RenderExam formats one exam version as plain text. The student
// variant lists questions and options only; the teacher variant adds
// the correct answer and explanation for every question.
func RenderExam(questions []model.Question, variant string, version int, cfg model.ExamConfig, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "EXAM - Version %d\n", version)
	fmt.Fprintf(&b, "Configuration: %d questions, difficulty: %s\n", cfg.QuestionCount, cfg.Difficulty)
	fmt.Fprintf(&b, "Date: %s UTC\n\n", now.UTC().Format("2006-01-02 15:04:05"))

	if variant == VariantTeacher {
		b.WriteString("=== TEACHER VERSION (WITH ANSWERS) ===\n\n")
	} else {
		b.WriteString("=== STUDENT VERSION ===\n\n")
	}

	for i, q := range questions {
		fmt.Fprintf(&b, "Question %d: %s\n", i+1, q.Question)

		if q.Type == "multiple_choice" {
			for _, option := range q.Options {
				fmt.Fprintf(&b, "  %s\n", option)
			}
		}

		if variant == VariantTeacher {
			fmt.Fprintf(&b, "  CORRECT ANSWER: %s\n", q.CorrectAnswer)
			fmt.Fprintf(&b, "  EXPLANATION: %s\n", q.Explanation)
		}

		b.WriteString("\n")
	}

	return b.String()
}

// RenderSelfAssessment formats the self-assessment block, including
// the per-option feedback text.
func RenderSelfAssessment(questions []model.SelfAssessmentQuestion, now time.Time) string {
	var b strings.Builder

	b.WriteString("SELF-ASSESSMENT\n")
	fmt.Fprintf(&b, "Date: %s UTC\n\n", now.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("=== SELF-ASSESSMENT QUESTIONS WITH FEEDBACK ===\n\n")

	for i, q := range questions {
		fmt.Fprintf(&b, "Question %d: %s\n", i+1, q.Question)

		for _, option := range q.Options {
			fmt.Fprintf(&b, "  %s\n", option)
		}

		b.WriteString("\nFEEDBACK:\n")
		for _, key := range sortedFeedbackKeys(q.Feedback) {
			fmt.Fprintf(&b, "  %s: %s\n", key, q.Feedback[key])
		}

		b.WriteString("\n" + strings.Repeat("=", 50) + "\n\n")
	}

	return b.String()
}

func sortedFeedbackKeys(feedback map[string]string) []string {
	keys := make([]string, 0, len(feedback))
	for _, k := range []string{"A", "B", "C", "D"} {
		if _, ok := feedback[k]; ok {
			keys = append(keys, k)
		}
	}
	// Any non-letter keys follow in map order; feedback maps from the
	// generator use A-D in practice.
	for k := range feedback {
		if k != "A" && k != "B" && k != "C" && k != "D" {
			keys = append(keys, k)
		}
	}
	return keys
}
