package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/middleware"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/observability"
	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/pkg/ai"
	"github.com/noah-isme/gradeflow-api/pkg/ocr"
)

// ErrAggregationInvariant indicates earned marks exceed the declared
// maximum. This is a data integrity failure; it is never clamped away.
var ErrAggregationInvariant = errors.New("earned marks exceed maximum marks")

const rubricUnavailableFeedback = "rubric unavailable: this question could not be scored"

// PipelineConfig bounds the pipeline's retries and external calls.
type PipelineConfig struct {
	RetryCeiling int
	BackoffBase  time.Duration
	OcrTimeout   time.Duration
	ScoreTimeout time.Duration
	ScoreRetries int
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.OcrTimeout <= 0 {
		c.OcrTimeout = 60 * time.Second
	}
	if c.ScoreTimeout <= 0 {
		c.ScoreTimeout = 60 * time.Second
	}
	if c.ScoreRetries <= 0 {
		c.ScoreRetries = 2
	}
	return c
}

// PipelineService drives one submission through OCR, evaluation, and
// finalization. Process is invoked by a queue worker and owns the
// submission's state machine for the duration of the delivery.
type PipelineService interface {
	Process(ctx context.Context, msg queue.Message) error
	Finalize(ctx context.Context, submissionID string) error
}

type pipelineService struct {
	submissions repository.SubmissionRepository
	evaluations repository.EvaluationRepository
	exams       repository.ExamRepository
	rubrics     RubricService
	extractor   ocr.Extractor
	scorer      ai.Scorer
	publisher   queue.Publisher
	cfg         PipelineConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewPipelineService constructs a PipelineService instance.
func NewPipelineService(
	subRepo repository.SubmissionRepository,
	evalRepo repository.EvaluationRepository,
	examRepo repository.ExamRepository,
	rubrics RubricService,
	extractor ocr.Extractor,
	scorer ai.Scorer,
	publisher queue.Publisher,
	cfg PipelineConfig,
	logger zerolog.Logger,
) PipelineService {
	return &pipelineService{
		submissions: subRepo,
		evaluations: evalRepo,
		exams:       examRepo,
		rubrics:     rubrics,
		extractor:   extractor,
		scorer:      scorer,
		publisher:   publisher,
		cfg:         cfg.withDefaults(),
		logger:      logger.With().Str("component", "pipeline_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gradeflow-api/internal/service/pipeline"),
		now:         time.Now,
	}
}

// Process handles one queue delivery end to end. The queue is at-least-once,
// so every step is guarded by the submission's current status: a redelivery
// for a terminal submission is a no-op, and a retry re-enters the stage that
// failed rather than starting over.
func (s *pipelineService) Process(ctx context.Context, msg queue.Message) error {
	ctx = middleware.ContextWithCorrelation(ctx, msg.CorrelationID)
	ctx, span := s.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("submission.id", msg.SubmissionID),
		attribute.Int("message.retry_count", msg.RetryCount),
	))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, msg.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Str("submission_id", msg.SubmissionID).Msg("dropping message for unknown submission")
			return nil
		}
		return err
	}

	if submission.Status.IsTerminal() {
		s.logger.Debug().Str("submission_id", submission.ID).Str("status", string(submission.Status)).Msg("ignoring redelivery for terminal submission")
		return nil
	}

	// The message's retry count is authoritative for this delivery; the row
	// only mirrors the highest value seen, so concurrent redeliveries cannot
	// double-increment it.
	if msg.RetryCount > submission.RetryCount {
		submission.RetryCount = msg.RetryCount
	}

	if submission.Status == models.StatusUploaded || submission.Status == models.StatusOcrProcessing {
		if err := s.runOCR(ctx, &submission, msg); err != nil {
			return s.handleStageFailure(ctx, &submission, msg, "ocr", err)
		}
	}

	if submission.Status == models.StatusEvaluating {
		if err := s.runEvaluation(ctx, &submission); err != nil {
			if errors.Is(err, ErrAggregationInvariant) {
				return s.failTerminally(ctx, &submission, "evaluation", err)
			}
			return s.handleStageFailure(ctx, &submission, msg, "evaluation", err)
		}

		if err := s.finalize(ctx, &submission); err != nil {
			if errors.Is(err, ErrAggregationInvariant) {
				return s.failTerminally(ctx, &submission, "aggregation", err)
			}
			return s.handleStageFailure(ctx, &submission, msg, "aggregation", err)
		}
	}

	return nil
}

// Finalize recomputes nothing for an already-final submission; it exists so
// the aggregation step can be re-driven safely by hand or by a redelivery.
func (s *pipelineService) Finalize(ctx context.Context, submissionID string) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}

	return s.finalize(ctx, &submission)
}

func (s *pipelineService) runOCR(ctx context.Context, submission *models.Submission, msg queue.Message) error {
	if err := s.transition(ctx, submission, models.StatusOcrProcessing); err != nil {
		return err
	}

	started := s.now().UTC()
	submission.OcrStartedAt = &started

	files := msg.FilePaths
	if len(files) == 0 {
		return fmt.Errorf("message carries no file paths")
	}

	pages := make([]string, 0, len(files))
	for _, fileURL := range files {
		text, err := s.extractPage(ctx, fileURL)
		if err != nil {
			return fmt.Errorf("extract %s: %w", fileURL, err)
		}
		if text != "" {
			pages = append(pages, text)
		}
	}

	combined := strings.TrimSpace(strings.Join(pages, "\n\n"))
	if combined == "" {
		return fmt.Errorf("ocr produced no text")
	}

	completed := s.now().UTC()
	submission.ExtractedText = combined
	submission.OcrCompletedAt = &completed
	submission.OcrDurationMs = completed.Sub(started).Milliseconds()

	observability.StageDuration().WithLabelValues("ocr").Observe(completed.Sub(started).Seconds())

	if err := s.transition(ctx, submission, models.StatusEvaluating); err != nil {
		return err
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Int("pages", len(pages)).
		Int64("duration_ms", submission.OcrDurationMs).
		Msg("ocr completed")

	return nil
}

func (s *pipelineService) extractPage(ctx context.Context, fileURL string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OcrTimeout)
	defer cancel()

	return s.extractor.Extract(callCtx, fileURL)
}

func (s *pipelineService) runEvaluation(ctx context.Context, submission *models.Submission) error {
	started := s.now().UTC()
	submission.EvalStartedAt = &started
	if err := s.submissions.Update(ctx, submission); err != nil {
		return err
	}

	questions, err := s.exams.SubjectiveQuestions(ctx, submission.ExamID)
	if err != nil {
		return err
	}

	for _, question := range questions {
		// Redelivery guard: rows are immutable once written.
		exists, err := s.evaluations.ExistsForQuestion(ctx, submission.ID, question.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		evaluation, err := s.evaluateQuestion(ctx, submission, question)
		if err != nil {
			return err
		}

		if err := s.evaluations.Create(ctx, &evaluation); err != nil {
			return err
		}
	}

	completed := s.now().UTC()
	submission.EvalCompletedAt = &completed
	submission.EvalDurationMs = completed.Sub(started).Milliseconds()
	if err := s.submissions.Update(ctx, submission); err != nil {
		return err
	}

	observability.StageDuration().WithLabelValues("evaluation").Observe(completed.Sub(started).Seconds())

	s.logger.Info().
		Str("submission_id", submission.ID).
		Int("questions", len(questions)).
		Int64("duration_ms", submission.EvalDurationMs).
		Msg("evaluation completed")

	return nil
}

// evaluateQuestion scores one question. Rubric or provider trouble is
// isolated at question granularity: the question records zero marks with an
// explanatory feedback and the submission keeps going.
func (s *pipelineService) evaluateQuestion(ctx context.Context, submission *models.Submission, question models.ExamQuestion) (models.QuestionEvaluation, error) {
	evaluation := models.QuestionEvaluation{
		SubmissionID:   submission.ID,
		QuestionID:     question.ID,
		QuestionNumber: question.Number,
		AnswerText:     submission.ExtractedText,
		MaxScore:       question.MaxMarks,
		EvaluatedAt:    s.now().UTC(),
	}

	rubric, ref, err := s.rubrics.LoadLatest(ctx, submission.ExamID, question.ID)
	if err != nil {
		if errors.Is(err, ErrRubricUnavailable) || errors.Is(err, ErrRubricChecksum) {
			s.logger.Warn().
				Str("submission_id", submission.ID).
				Str("question_id", question.ID).
				Err(err).
				Msg("scoring question as zero: rubric unavailable")
			evaluation.Feedback = rubricUnavailableFeedback
			return evaluation, nil
		}
		return models.QuestionEvaluation{}, err
	}

	evaluation.ModelAnswer = rubric.ModelAnswer
	evaluation.MaxScore = ref.TotalMarks

	input := ai.ScoringInput{
		QuestionNumber: question.Number,
		QuestionText:   rubric.QuestionText,
		ModelAnswer:    rubric.ModelAnswer,
		AnswerText:     submission.ExtractedText,
	}
	for _, step := range rubric.Steps {
		input.Steps = append(input.Steps, ai.RubricStepInput{
			Description: step.Description,
			Marks:       step.Marks,
		})
	}

	result, err := s.scoreWithRetry(ctx, input)
	if err != nil {
		// Mirrors the rubric-unavailable path: zero marks, keep going.
		s.logger.Warn().
			Str("submission_id", submission.ID).
			Str("question_id", question.ID).
			Err(err).
			Msg("scoring question as zero: provider retries exhausted")
		evaluation.Feedback = fmt.Sprintf("evaluation unavailable: %v", err)
		return evaluation, nil
	}

	earned := result.EarnedMarks()
	if earned > ref.TotalMarks {
		return models.QuestionEvaluation{}, fmt.Errorf("%w: question %s earned %.2f of %.2f", ErrAggregationInvariant, question.ID, earned, ref.TotalMarks)
	}

	steps := make([]interface{}, 0, len(result.Steps))
	for _, step := range result.Steps {
		steps = append(steps, map[string]interface{}{
			"description":   step.Description,
			"satisfied":     step.Satisfied,
			"marks_awarded": step.MarksAwarded,
			"max_marks":     step.MaxMarks,
			"feedback":      step.Feedback,
		})
	}

	evaluation.Score = earned
	evaluation.Feedback = result.Feedback
	evaluation.Confidence = result.Confidence
	evaluation.IsFullyCorrect = result.IsFullyCorrect
	evaluation.Breakdown = datatypes.JSONMap{
		"steps":            steps,
		"keywords_matched": result.KeywordsMatched,
		"keywords_missing": result.KeywordsMissing,
		"strengths":        result.Strengths,
	}

	return evaluation, nil
}

func (s *pipelineService) scoreWithRetry(ctx context.Context, input ai.ScoringInput) (ai.ScoringResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ScoreRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ai.ScoringResult{}, ctx.Err()
			case <-time.After(s.cfg.BackoffBase << (attempt - 1)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ScoreTimeout)
		result, err := s.scorer.ScoreAnswer(callCtx, input)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return ai.ScoringResult{}, lastErr
}

// finalize sums the per-question scores with any carried MCQ result and
// writes the terminal state. Idempotent: a submission that is already
// results_ready is left untouched.
func (s *pipelineService) finalize(ctx context.Context, submission *models.Submission) error {
	if submission.Status == models.StatusResultsReady {
		return nil
	}

	evaluations, err := s.evaluations.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return err
	}

	var earned, max float64
	for _, evaluation := range evaluations {
		earned += evaluation.Score
		max += evaluation.MaxScore
	}

	if submission.McqScore != nil && submission.McqMax != nil {
		earned += *submission.McqScore
		max += *submission.McqMax
	}

	if earned > max {
		return fmt.Errorf("%w: submission %s earned %.2f of %.2f", ErrAggregationInvariant, submission.ID, earned, max)
	}

	submission.TotalScore = earned
	submission.MaxScore = max
	submission.Percentage = Percentage(earned, max)
	submission.Grade = LetterGrade(submission.Percentage)

	if err := s.transition(ctx, submission, models.StatusResultsReady); err != nil {
		return err
	}

	observability.SubmissionsFinalized().WithLabelValues(string(models.StatusResultsReady)).Inc()

	s.logger.Info().
		Str("submission_id", submission.ID).
		Float64("total_score", earned).
		Float64("max_score", max).
		Str("grade", submission.Grade).
		Msg("submission finalized")

	return nil
}

// handleStageFailure applies the bounded-retry policy: below the ceiling the
// message goes back on the queue with backoff and the submission stays in
// the failed stage; at the ceiling the submission moves to the terminal
// error state and the message is consumed (poison-message policy).
func (s *pipelineService) handleStageFailure(ctx context.Context, submission *models.Submission, msg queue.Message, stage string, cause error) error {
	attempts := msg.RetryCount + 1
	submission.RetryCount = attempts
	submission.ErrorMessage = fmt.Sprintf("%s stage failed: %v", stage, cause)

	if attempts >= s.cfg.RetryCeiling {
		observability.StageFailures().WithLabelValues(stage, "true").Inc()
		return s.failTerminally(ctx, submission, stage, cause)
	}

	observability.StageFailures().WithLabelValues(stage, "false").Inc()

	if err := s.submissions.Update(ctx, submission); err != nil {
		return err
	}

	retry := msg
	retry.RetryCount = attempts
	backoff := s.cfg.BackoffBase << (attempts - 1)
	s.publisher.PublishAfter(retry, backoff)

	s.logger.Warn().
		Str("submission_id", submission.ID).
		Str("stage", stage).
		Int("retry_count", attempts).
		Dur("backoff", backoff).
		Err(cause).
		Msg("stage failed, message requeued")

	return nil
}

func (s *pipelineService) failTerminally(ctx context.Context, submission *models.Submission, stage string, cause error) error {
	submission.ErrorMessage = fmt.Sprintf("%s stage failed: %v", stage, cause)

	if err := s.transition(ctx, submission, models.StatusError); err != nil {
		return err
	}

	observability.SubmissionsFinalized().WithLabelValues(string(models.StatusError)).Inc()

	s.logger.Error().
		Str("submission_id", submission.ID).
		Str("stage", stage).
		Int("retry_count", submission.RetryCount).
		Err(cause).
		Msg("submission moved to terminal error state")

	return nil
}

// transition enforces the state machine and persists the submission in one
// step. Self-transitions persist pending field changes without moving state.
func (s *pipelineService) transition(ctx context.Context, submission *models.Submission, next models.SubmissionStatus) error {
	if !submission.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for submission %s", submission.Status, next, submission.ID)
	}

	submission.Status = next

	return s.submissions.Update(ctx, submission)
}
