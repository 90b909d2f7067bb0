package exam

import (
	"fmt"

	"examgen/internal/model"
)

// ValidateConfig checks generation parameters against the accepted
// bounds. The first violation wins; the returned error names the
// offending field in a human-readable message.
func ValidateConfig(cfg model.ExamConfig) error {
	if cfg.QuestionCount < 1 || cfg.QuestionCount > 20 {
		return fmt.Errorf("questionCount must be an integer between 1 and 20")
	}

	if len(cfg.QuestionTypes) == 0 {
		return fmt.Errorf("questionTypes must contain valid types: %v", model.ValidQuestionTypes)
	}
	for _, qt := range cfg.QuestionTypes {
		if !contains(model.ValidQuestionTypes, qt) {
			return fmt.Errorf("questionTypes must contain valid types: %v", model.ValidQuestionTypes)
		}
	}

	if !contains(model.ValidDifficulties, cfg.Difficulty) {
		return fmt.Errorf("difficulty must be one of: %v", model.ValidDifficulties)
	}

	if cfg.Versions < 1 || cfg.Versions > 4 {
		return fmt.Errorf("versions must be an integer between 1 and 4")
	}

	return nil
}

func contains(valid []string, v string) bool {
	for _, s := range valid {
		if s == v {
			return true
		}
	}
	return false
}
