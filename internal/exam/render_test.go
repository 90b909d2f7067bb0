package exam

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"examgen/internal/model"
)

var renderTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func sampleQuestions() []model.Question {
	return []model.Question{
		{
			ID:            1,
			Type:          "multiple_choice",
			Topic:         "Algebra",
			Question:      "What is 2+2?",
			Options:       []string{"A) 3", "B) 4", "C) 5", "D) 22"},
			CorrectAnswer: "B",
			Explanation:   "Basic addition.",
		},
		{
			ID:            2,
			Type:          "true_false",
			Topic:         "Algebra",
			Question:      "Zero is an even number.",
			CorrectAnswer: "true",
			Explanation:   "Zero is divisible by two.",
		},
	}
}

func TestRenderExamStudentVariant(t *testing.T) {
	cfg := validConfig()
	out := RenderExam(sampleQuestions(), VariantStudent, 1, cfg, renderTime)

	if !strings.Contains(out, "EXAM - Version 1") {
		t.Fatalf("expected version header, got:\n%s", out)
	}
	if !strings.Contains(out, "=== STUDENT VERSION ===") {
		t.Fatalf("expected student banner, got:\n%s", out)
	}
	if !strings.Contains(out, "Question 1: What is 2+2?") {
		t.Fatalf("expected first question, got:\n%s", out)
	}
	if !strings.Contains(out, "B) 4") {
		t.Fatalf("expected options, got:\n%s", out)
	}
	if strings.Contains(out, "CORRECT ANSWER") || strings.Contains(out, "EXPLANATION") {
		t.Fatalf("student variant must not leak answers:\n%s", out)
	}
}

func TestRenderExamTeacherVariant(t *testing.T) {
	cfg := validConfig()
	out := RenderExam(sampleQuestions(), VariantTeacher, 2, cfg, renderTime)

	if !strings.Contains(out, "EXAM - Version 2") {
		t.Fatalf("expected version header, got:\n%s", out)
	}
	if !strings.Contains(out, "=== TEACHER VERSION (WITH ANSWERS) ===") {
		t.Fatalf("expected teacher banner, got:\n%s", out)
	}
	if !strings.Contains(out, "CORRECT ANSWER: B") {
		t.Fatalf("expected correct answer, got:\n%s", out)
	}
	if !strings.Contains(out, "EXPLANATION: Basic addition.") {
		t.Fatalf("expected explanation, got:\n%s", out)
	}
}

func TestRenderSelfAssessmentIncludesFeedback(t *testing.T) {
	questions := []model.SelfAssessmentQuestion{
		{
			ID:            1,
			Topic:         "Algebra",
			Question:      "What is a variable?",
			Options:       []string{"A) A fixed value", "B) A symbol for an unknown", "C) An operator", "D) A function"},
			CorrectAnswer: "B",
			Feedback: map[string]string{
				"A": "Incorrect. A fixed value is a constant.",
				"B": "Correct! A variable stands for an unknown value.",
				"C": "Incorrect. Operators combine values.",
				"D": "Incorrect. Functions map inputs to outputs.",
			},
		},
	}

	out := RenderSelfAssessment(questions, renderTime)

	if !strings.Contains(out, "SELF-ASSESSMENT") {
		t.Fatalf("expected header, got:\n%s", out)
	}
	if !strings.Contains(out, "FEEDBACK:") {
		t.Fatalf("expected feedback section, got:\n%s", out)
	}
	if !strings.Contains(out, "B: Correct! A variable stands for an unknown value.") {
		t.Fatalf("expected per-option feedback, got:\n%s", out)
	}

	// Feedback options render in A-D order.
	iA := strings.Index(out, "A: Incorrect")
	iB := strings.Index(out, "B: Correct")
	iD := strings.Index(out, "D: Incorrect")
	if iA == -1 || iB == -1 || iD == -1 || !(iA < iB && iB < iD) {
		t.Fatalf("expected feedback ordered A..D, got:\n%s", out)
	}
}

func TestArtifactKeysAreDeterministic(t *testing.T) {
	examID := uuid.MustParse("0198e9aa-71c3-7ccc-8000-0123456789ab")

	if got := StudentKey(examID, 2); got != "exams/exam-0198e9aa-71c3-7ccc-8000-0123456789ab/v2-student.txt" {
		t.Fatalf("unexpected student key %q", got)
	}
	if got := TeacherKey(examID, 2); got != "exams/exam-0198e9aa-71c3-7ccc-8000-0123456789ab/v2-teacher.txt" {
		t.Fatalf("unexpected teacher key %q", got)
	}
	if got := SelfAssessmentKey(examID); got != "exams/exam-0198e9aa-71c3-7ccc-8000-0123456789ab/self-assessment.txt" {
		t.Fatalf("unexpected self-assessment key %q", got)
	}
}
