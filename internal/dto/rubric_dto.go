package dto

import (
	"time"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// RubricStepRequest is one scoring step supplied at rubric creation.
type RubricStepRequest struct {
	Description string  `json:"description" validate:"required"`
	Marks       float64 `json:"marks" validate:"required,gt=0"`
}

// RubricCreateRequest freezes a new rubric version for one exam question.
type RubricCreateRequest struct {
	ExamID       string              `json:"exam_id" validate:"required"`
	QuestionID   string              `json:"question_id" validate:"required"`
	QuestionText string              `json:"question_text" validate:"required"`
	ModelAnswer  string              `json:"model_answer" validate:"required"`
	Steps        []RubricStepRequest `json:"steps" validate:"required,min=1,dive"`
	TotalMarks   float64             `json:"total_marks" validate:"required,gt=0"`
}

// RubricResponse describes a frozen rubric pointer, optionally with content.
type RubricResponse struct {
	ExamID     string              `json:"exam_id"`
	QuestionID string              `json:"question_id"`
	Path       string              `json:"path"`
	TotalMarks float64             `json:"total_marks"`
	Checksum   string              `json:"checksum"`
	Version    int                 `json:"version"`
	Steps      []models.RubricStep `json:"steps,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewRubricResponse maps a pointer row (and, when loaded, its content) to
// the API shape.
func NewRubricResponse(ref models.RubricRef, rubric models.Rubric) RubricResponse {
	return RubricResponse{
		ExamID:     ref.ExamID,
		QuestionID: ref.QuestionID,
		Path:       ref.Path,
		TotalMarks: ref.TotalMarks,
		Checksum:   ref.Checksum,
		Version:    ref.Version,
		Steps:      rubric.Steps,
		CreatedAt:  ref.CreatedAt,
	}
}
