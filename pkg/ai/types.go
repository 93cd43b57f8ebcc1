package ai

import "context"

// RubricStepInput is one scoring step handed to the scorer.
type RubricStepInput struct {
	Description string
	Marks       float64
}

// ScoringInput contains everything the scorer needs for one question: the
// frozen rubric, the model answer, and the student's extracted text.
type ScoringInput struct {
	QuestionNumber int
	QuestionText   string
	ModelAnswer    string
	Steps          []RubricStepInput
	AnswerText     string
}

// StepResult is the scorer's verdict for a single rubric step. MarksAwarded
// is always within [0, MaxMarks].
type StepResult struct {
	Description  string  `json:"description"`
	Satisfied    bool    `json:"satisfied"`
	MarksAwarded float64 `json:"marksAwarded"`
	MaxMarks     float64 `json:"maxMarks"`
	Feedback     string  `json:"feedback"`
}

// ScoringResult is the structured outcome for one question.
type ScoringResult struct {
	Steps           []StepResult           `json:"steps"`
	Feedback        string                 `json:"feedback"`
	IsFullyCorrect  bool                   `json:"isFullyCorrect"`
	Confidence      float64                `json:"confidence"`
	KeywordsMatched []string               `json:"keywordsMatched,omitempty"`
	KeywordsMissing []string               `json:"keywordsMissing,omitempty"`
	Strengths       []string               `json:"strengths,omitempty"`
	Raw             map[string]interface{} `json:"raw,omitempty"`
}

// EarnedMarks returns the sum of the per-step awards.
func (r ScoringResult) EarnedMarks() float64 {
	var sum float64
	for _, step := range r.Steps {
		sum += step.MarksAwarded
	}
	return sum
}

// Scorer describes an AI model capable of grading a written answer against
// a frozen rubric.
type Scorer interface {
	ScoreAnswer(ctx context.Context, input ScoringInput) (ScoringResult, error)
}
