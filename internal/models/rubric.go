package models

import "time"

// RubricRef is the SQL pointer to a frozen rubric blob. The canonical rubric
// content lives in object storage at Path; the row only carries denormalised
// totals for fast listing plus a checksum verified on every load.
type RubricRef struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ExamID     string  `gorm:"size:64;not null;uniqueIndex:idx_rubric_version" json:"exam_id"`
	QuestionID string  `gorm:"size:64;not null;uniqueIndex:idx_rubric_version" json:"question_id"`
	Path       string  `gorm:"size:256;not null;uniqueIndex" json:"path"`
	TotalMarks float64 `gorm:"not null" json:"total_marks"`
	Checksum   string  `gorm:"size:64;not null" json:"checksum"`
	Version    int     `gorm:"not null;default:1;uniqueIndex:idx_rubric_version" json:"version"`

	CreatedAt time.Time `json:"created_at"`
}

// RubricStep is one scoring step of a frozen rubric.
type RubricStep struct {
	Description string  `json:"description"`
	Marks       float64 `json:"marks"`
}

// Rubric is the frozen marking scheme for one exam question as stored in the
// blob. Once any evaluation references its path the content never changes;
// grading revisions get a new versioned path.
type Rubric struct {
	QuestionText string       `json:"questionText"`
	ModelAnswer  string       `json:"modelAnswer"`
	Steps        []RubricStep `json:"steps"`
	TotalMarks   float64      `json:"totalMarks"`
}

// StepSum returns the sum of the step mark allocations.
func (r Rubric) StepSum() float64 {
	var sum float64
	for _, step := range r.Steps {
		sum += step.Marks
	}
	return sum
}
