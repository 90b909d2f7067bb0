package exam

import (
	"encoding/json"
	"fmt"
	"strings"

	"examgen/internal/llm"
	"examgen/internal/model"
)

// Exactly this many self-assessment questions are requested, each
// multiple choice with four options and per-option feedback.
const selfAssessmentQuestionCount = 5

const questionSystemPrompt = "You are an expert academic exam author. Respond only with valid JSON in the requested format and no extra text."

// BuildQuestionPrompt produces the content-generator prompt for one
// exam version. The version number is included as a variation seed so
// different versions of the same exam get different questions.
func BuildQuestionPrompt(topics []string, cfg model.ExamConfig, version int) string {
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d exam questions about the following topics: %s\n\n", cfg.QuestionCount, strings.Join(topics, ", "))
	b.WriteString("EXAM CONFIGURATION:\n")
	fmt.Fprintf(&b, "- Number of questions: %d\n", cfg.QuestionCount)
	fmt.Fprintf(&b, "- Question types: %s\n", strings.Join(cfg.QuestionTypes, ", "))
	fmt.Fprintf(&b, "- Difficulty: %s\n", cfg.Difficulty)
	fmt.Fprintf(&b, "- Version: %d (make sure the questions differ from other versions of this exam)\n", version)
	fmt.Fprintf(&b, "- Language: %s\n\n", language)
	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("- Write clear, specific questions about the listed topics\n")
	b.WriteString("- Multiple-choice questions get exactly 4 options labeled A) through D)\n")
	b.WriteString("- True/false questions are phrased as clear statements\n")
	fmt.Fprintf(&b, "- Keep every question at %s difficulty\n", cfg.Difficulty)
	b.WriteString("- Distribute questions evenly across the topics\n")
	b.WriteString("- Include the correct answer and an explanation for every question\n\n")
	b.WriteString(`Respond ONLY with valid JSON in exactly this format:

{
  "questions": [
    {
      "id": 1,
      "type": "multiple_choice",
      "topic": "Specific topic",
      "question": "Question text",
      "options": ["A) Option 1", "B) Option 2", "C) Option 3", "D) Option 4"],
      "correctAnswer": "A",
      "explanation": "Why this answer is correct"
    },
    {
      "id": 2,
      "type": "true_false",
      "topic": "Specific topic",
      "question": "True or false statement",
      "correctAnswer": "true",
      "explanation": "Why"
    }
  ]
}`)
	return b.String()
}

// BuildSelfAssessmentPrompt produces the prompt for the optional
// self-assessment block.
func BuildSelfAssessmentPrompt(topics []string, cfg model.ExamConfig) string {
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly %d self-assessment questions about the following topics: %s\n\n", selfAssessmentQuestionCount, strings.Join(topics, ", "))
	b.WriteString("CONFIGURATION:\n")
	fmt.Fprintf(&b, "- Number of questions: %d (exactly)\n", selfAssessmentQuestionCount)
	fmt.Fprintf(&b, "- Difficulty: %s\n", cfg.Difficulty)
	fmt.Fprintf(&b, "- Language: %s\n", language)
	b.WriteString("- Include detailed feedback for every answer option\n\n")
	b.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "- Write %d multiple-choice questions with 4 options each\n", selfAssessmentQuestionCount)
	b.WriteString("- Include educational feedback for every option\n")
	b.WriteString("- Questions should help students assess their own understanding\n")
	b.WriteString("- Feedback should reinforce learning\n\n")
	b.WriteString(`Respond ONLY with valid JSON in exactly this format:

{
  "selfAssessment": [
    {
      "id": 1,
      "topic": "Specific topic",
      "question": "Question text",
      "options": ["A) Option 1", "B) Option 2", "C) Option 3", "D) Option 4"],
      "correctAnswer": "A",
      "feedback": {
        "A": "Correct! Detailed explanation...",
        "B": "Incorrect. Why this option is wrong...",
        "C": "Incorrect. Why this option is wrong...",
        "D": "Incorrect. Why this option is wrong..."
      }
    }
  ]
}`)
	return b.String()
}

// ParseQuestionsPayload extracts the {questions:[...]} payload from
// raw content-generator output. An unparseable or empty payload is a
// generation failure for that call.
func ParseQuestionsPayload(content string) ([]model.Question, error) {
	snippet, err := llm.ExtractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("parse generator response: %w", err)
	}

	var payload struct {
		Questions []model.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(snippet), &payload); err != nil {
		return nil, fmt.Errorf("parse generator response: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("generator response contained no questions")
	}
	return payload.Questions, nil
}

// ParseSelfAssessmentPayload extracts the {selfAssessment:[...]}
// payload from raw content-generator output.
func ParseSelfAssessmentPayload(content string) ([]model.SelfAssessmentQuestion, error) {
	snippet, err := llm.ExtractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("parse generator response: %w", err)
	}

	var payload struct {
		SelfAssessment []model.SelfAssessmentQuestion `json:"selfAssessment"`
	}
	if err := json.Unmarshal([]byte(snippet), &payload); err != nil {
		return nil, fmt.Errorf("parse generator response: %w", err)
	}
	if len(payload.SelfAssessment) == 0 {
		return nil, fmt.Errorf("generator response contained no self-assessment questions")
	}
	return payload.SelfAssessment, nil
}
