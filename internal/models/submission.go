package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus is the lifecycle state of an answer-sheet submission.
type SubmissionStatus string

const (
	// StatusUploaded indicates all answer-sheet files are durably stored and
	// a processing message has been enqueued.
	StatusUploaded SubmissionStatus = "uploaded"
	// StatusOcrProcessing indicates a worker claimed the submission and text
	// extraction is in progress.
	StatusOcrProcessing SubmissionStatus = "ocr_processing"
	// StatusEvaluating indicates extracted text is being scored against the
	// frozen rubrics.
	StatusEvaluating SubmissionStatus = "evaluating"
	// StatusResultsReady is the terminal success state; totals are frozen.
	StatusResultsReady SubmissionStatus = "results_ready"
	// StatusError is the terminal failure state.
	StatusError SubmissionStatus = "error"
)

// IsTerminal reports whether the status admits no further transition.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusResultsReady || s == StatusError
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step.
// Stages advance one at a time; a retry re-enters the stage that failed,
// which is modelled as a self-transition.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusError || next == s {
		return true
	}

	switch s {
	case StatusUploaded:
		return next == StatusOcrProcessing
	case StatusOcrProcessing:
		return next == StatusEvaluating
	case StatusEvaluating:
		return next == StatusResultsReady
	default:
		return false
	}
}

// Submission tracks one student's answer-sheet upload for one exam through
// the evaluation pipeline. It is created by intake, mutated only by pipeline
// stages, and never deleted.
type Submission struct {
	ID        string           `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID    string           `gorm:"size:64;not null;uniqueIndex:idx_exam_student" json:"exam_id"`
	StudentID string           `gorm:"size:64;not null;uniqueIndex:idx_exam_student" json:"student_id"`
	FileURLs  datatypes.JSON   `json:"file_urls"`
	Status    SubmissionStatus `gorm:"size:32;not null;index" json:"status"`

	ExtractedText string `gorm:"type:text" json:"extracted_text,omitempty"`

	// Aggregate score fields; written once by the finalizer.
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Grade      string  `gorm:"size:4" json:"grade"`

	// Optional MCQ result carried alongside the written answers; the MCQ
	// engine itself lives outside this service.
	McqScore *float64 `json:"mcq_score,omitempty"`
	McqMax   *float64 `json:"mcq_max,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	SubmittedAt     time.Time  `gorm:"not null" json:"submitted_at"`
	OcrStartedAt    *time.Time `json:"ocr_started_at,omitempty"`
	OcrCompletedAt  *time.Time `json:"ocr_completed_at,omitempty"`
	EvalStartedAt   *time.Time `json:"eval_started_at,omitempty"`
	EvalCompletedAt *time.Time `json:"eval_completed_at,omitempty"`
	OcrDurationMs   int64      `json:"ocr_duration_ms"`
	EvalDurationMs  int64      `json:"eval_duration_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
