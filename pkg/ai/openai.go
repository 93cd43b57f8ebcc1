package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "scoring_duration_seconds",
		Help:      "Duration of AI scoring requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "scoring_failures_total",
		Help:      "Number of AI scoring failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI scorer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIScorer implements Scorer against the OpenAI chat completion API.
type OpenAIScorer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIScorer builds a new scorer using the provided configuration.
func NewOpenAIScorer(cfg OpenAIConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIScorer{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gradeflow-api/pkg/ai/openai"),
		logger: logger,
	}, nil
}

// ScoreAnswer sends the scoring request to OpenAI and parses the response.
func (s *OpenAIScorer) ScoreAnswer(parent context.Context, input ScoringInput) (ScoringResult, error) {
	ctx, span := s.tracer.Start(parent, "openai.score_answer", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
		attribute.Int("question.number", input.QuestionNumber),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: scorerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildScoringPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := s.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(s.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoringResult{}, fmt.Errorf("openai score answer: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoringResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := ParseScoringResponse(content, input.Steps)
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoringResult{}, err
	}

	result.Raw = map[string]interface{}{
		"usage": resp.Usage,
	}

	return result, nil
}

func scorerSystemPrompt() string {
	return "You are an examiner grading a handwritten exam answer against a fixed marking rubric. For each rubric step decide " +
		"whether it is satisfied and how many marks to award, never more than that step's allocation. Respond with a JSON objec" +
		"t matching the documented schema: steps (array of {description, satisfied, marksAwarded, feedback}), feedback, isFully" +
		"Correct, confidence (0-1), keywordsMatched, keywordsMissing, strengths."
}

func buildScoringPrompt(input ScoringInput) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("# Question %d\n", input.QuestionNumber))
	builder.WriteString(input.QuestionText)
	builder.WriteString("\n\n## Model Answer\n")
	builder.WriteString(input.ModelAnswer)
	builder.WriteString("\n\n## Marking Rubric\n")
	for i, step := range input.Steps {
		builder.WriteString(fmt.Sprintf("%d. %s (%.1f marks)\n", i+1, step.Description, step.Marks))
	}
	builder.WriteString("\n## Student Answer (full OCR transcript; locate the answer for this question)\n")
	builder.WriteString(input.AnswerText)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

// ParseScoringResponse validates and decodes the scorer's JSON output. Step
// awards are clamped to [0, stepMax] and missing steps score zero, so the
// result always has exactly one entry per rubric step.
func ParseScoringResponse(content string, steps []RubricStepInput) (ScoringResult, error) {
	if err := validateScoringPayload(content); err != nil {
		return ScoringResult{}, err
	}

	type stepPayload struct {
		Description  string  `json:"description"`
		Satisfied    bool    `json:"satisfied"`
		MarksAwarded float64 `json:"marksAwarded"`
		Feedback     string  `json:"feedback"`
	}

	type payload struct {
		Steps           []stepPayload `json:"steps"`
		Feedback        string        `json:"feedback"`
		IsFullyCorrect  bool          `json:"isFullyCorrect"`
		Confidence      float64       `json:"confidence"`
		KeywordsMatched []string      `json:"keywordsMatched"`
		KeywordsMissing []string      `json:"keywordsMissing"`
		Strengths       []string      `json:"strengths"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return ScoringResult{}, fmt.Errorf("parse scoring json: %w", err)
	}

	results := make([]StepResult, len(steps))
	for i, step := range steps {
		result := StepResult{
			Description: step.Description,
			MaxMarks:    step.Marks,
		}

		if i < len(data.Steps) {
			awarded := data.Steps[i].MarksAwarded
			if awarded < 0 {
				awarded = 0
			}
			if awarded > step.Marks {
				awarded = step.Marks
			}
			result.Satisfied = data.Steps[i].Satisfied
			result.MarksAwarded = awarded
			result.Feedback = data.Steps[i].Feedback
		}

		results[i] = result
	}

	confidence := data.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return ScoringResult{
		Steps:           results,
		Feedback:        data.Feedback,
		IsFullyCorrect:  data.IsFullyCorrect,
		Confidence:      confidence,
		KeywordsMatched: data.KeywordsMatched,
		KeywordsMissing: data.KeywordsMissing,
		Strengths:       data.Strengths,
	}, nil
}
