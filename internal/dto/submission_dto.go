package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// IntakeRequest accompanies the multipart answer-sheet upload.
type IntakeRequest struct {
	ExamID    string   `form:"exam_id" validate:"required"`
	StudentID string   `form:"student_id" validate:"required"`
	McqScore  *float64 `form:"mcq_score" validate:"omitempty,gte=0"`
	McqMax    *float64 `form:"mcq_max" validate:"omitempty,gte=0"`
	Priority  int      `form:"priority" validate:"omitempty,gte=0,lte=9"`
}

// IntakeResponse acknowledges a created submission.
type IntakeResponse struct {
	SubmissionID string                  `json:"submission_id"`
	Status       models.SubmissionStatus `json:"status"`
	SubmittedAt  time.Time               `json:"submitted_at"`
}

// QuestionEvaluationResponse is the per-question breakdown exposed once
// results are ready.
type QuestionEvaluationResponse struct {
	QuestionID     string                 `json:"question_id"`
	QuestionNumber int                    `json:"question_number"`
	Score          float64                `json:"score"`
	MaxScore       float64                `json:"max_score"`
	Feedback       string                 `json:"feedback"`
	Breakdown      map[string]interface{} `json:"breakdown,omitempty"`
	Confidence     float64                `json:"confidence"`
	IsFullyCorrect bool                   `json:"is_fully_correct"`
	EvaluatedAt    time.Time              `json:"evaluated_at"`
}

// StatusResponse is returned by the polling endpoint. Score fields are only
// populated once the submission is terminal.
type StatusResponse struct {
	SubmissionID string                  `json:"submission_id"`
	ExamID       string                  `json:"exam_id"`
	StudentID    string                  `json:"student_id"`
	Status       models.SubmissionStatus `json:"status"`
	SubmittedAt  time.Time               `json:"submitted_at"`

	TotalScore *float64 `json:"total_score,omitempty"`
	MaxScore   *float64 `json:"max_score,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Grade      string   `json:"grade,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	OcrDurationMs  int64 `json:"ocr_duration_ms,omitempty"`
	EvalDurationMs int64 `json:"eval_duration_ms,omitempty"`

	Questions []QuestionEvaluationResponse `json:"questions,omitempty"`
}

// NewStatusResponse maps a submission and its evaluations to the polling
// shape.
func NewStatusResponse(submission models.Submission, evaluations []models.QuestionEvaluation) StatusResponse {
	response := StatusResponse{
		SubmissionID:   submission.ID,
		ExamID:         submission.ExamID,
		StudentID:      submission.StudentID,
		Status:         submission.Status,
		SubmittedAt:    submission.SubmittedAt,
		ErrorMessage:   submission.ErrorMessage,
		RetryCount:     submission.RetryCount,
		OcrDurationMs:  submission.OcrDurationMs,
		EvalDurationMs: submission.EvalDurationMs,
	}

	if submission.Status == models.StatusResultsReady {
		total := submission.TotalScore
		max := submission.MaxScore
		percentage := submission.Percentage
		response.TotalScore = &total
		response.MaxScore = &max
		response.Percentage = &percentage
		response.Grade = submission.Grade

		for _, evaluation := range evaluations {
			response.Questions = append(response.Questions, NewQuestionEvaluationResponse(evaluation))
		}
	}

	return response
}

// NewQuestionEvaluationResponse maps one evaluation row to the API shape.
func NewQuestionEvaluationResponse(evaluation models.QuestionEvaluation) QuestionEvaluationResponse {
	return QuestionEvaluationResponse{
		QuestionID:     evaluation.QuestionID,
		QuestionNumber: evaluation.QuestionNumber,
		Score:          evaluation.Score,
		MaxScore:       evaluation.MaxScore,
		Feedback:       evaluation.Feedback,
		Breakdown:      evaluation.Breakdown,
		Confidence:     evaluation.Confidence,
		IsFullyCorrect: evaluation.IsFullyCorrect,
		EvaluatedAt:    evaluation.EvaluatedAt,
	}
}

// FileURLs decodes the stored file URL list of a submission.
func FileURLs(submission models.Submission) []string {
	var urls []string
	if len(submission.FileURLs) == 0 {
		return urls
	}
	_ = json.Unmarshal(submission.FileURLs, &urls)
	return urls
}
