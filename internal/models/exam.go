package models

import "time"

// Question kinds recognised by the pipeline. Only subjective questions are
// scored here; MCQ results arrive pre-computed with the submission.
const (
	QuestionKindSubjective = "subjective"
	QuestionKindMCQ        = "mcq"
)

// Exam is the minimal catalogue entry the pipeline needs: which questions an
// exam paper has and their mark allocations.
type Exam struct {
	ID        string         `gorm:"size:64;primaryKey" json:"id"`
	Title     string         `gorm:"size:256;not null" json:"title"`
	Subject   string         `gorm:"size:128" json:"subject"`
	Questions []ExamQuestion `gorm:"foreignKey:ExamID" json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ExamQuestion is one question on an exam paper.
type ExamQuestion struct {
	ID       string  `gorm:"size:64;primaryKey" json:"id"`
	ExamID   string  `gorm:"size:64;not null;index" json:"exam_id"`
	Number   int     `gorm:"not null" json:"number"`
	Text     string  `gorm:"type:text" json:"text"`
	Kind     string  `gorm:"size:16;not null" json:"kind"`
	MaxMarks float64 `gorm:"not null" json:"max_marks"`
}

// IsSubjective reports whether the question goes through AI evaluation.
func (q ExamQuestion) IsSubjective() bool {
	return q.Kind == QuestionKindSubjective
}
