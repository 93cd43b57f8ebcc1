package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionEvaluation is the scored outcome for one subjective question of
// one submission. Rows are written exactly once during the evaluation stage
// and are immutable afterwards.
type QuestionEvaluation struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	SubmissionID   string  `gorm:"type:uuid;not null;index" json:"submission_id"`
	QuestionID     string  `gorm:"size:64;not null" json:"question_id"`
	QuestionNumber int     `gorm:"not null" json:"question_number"`
	AnswerText     string  `gorm:"type:text" json:"answer_text"`
	ModelAnswer    string  `gorm:"type:text" json:"model_answer"`
	MaxScore       float64 `gorm:"not null" json:"max_score"`
	Score          float64 `gorm:"not null" json:"score"`
	Feedback       string  `gorm:"type:text" json:"feedback"`

	// Breakdown holds the structured rubric result: per-step marks, matched
	// and missing keywords, strengths.
	Breakdown      datatypes.JSONMap `json:"breakdown,omitempty"`
	Confidence     float64           `json:"confidence"`
	IsFullyCorrect bool              `json:"is_fully_correct"`

	EvaluatedAt time.Time `gorm:"not null" json:"evaluated_at"`
	CreatedAt   time.Time `json:"created_at"`
}
