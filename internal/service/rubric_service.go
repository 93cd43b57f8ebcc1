package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/pkg/blob"
)

// ErrRubricUnavailable indicates the rubric blob could not be loaded.
var ErrRubricUnavailable = errors.New("rubric unavailable")

// ErrRubricChecksum indicates stored rubric content no longer matches the
// checksum recorded when it was frozen.
var ErrRubricChecksum = errors.New("rubric content does not match frozen checksum")

// ErrRubricStepSum indicates the declared total differs from the sum of the
// step allocations.
var ErrRubricStepSum = errors.New("rubric total marks must equal sum of step marks")

// ErrRubricPathTaken indicates the target blob path already holds content;
// frozen rubric content is never overwritten in place.
var ErrRubricPathTaken = errors.New("rubric path already frozen")

// RubricService owns the frozen-rubric contract: creation validates and
// freezes content into blob storage, loading resolves the stored path and
// verifies integrity. The blob is the single source of truth; SQL only
// carries the pointer.
type RubricService interface {
	Create(ctx context.Context, payload dto.RubricCreateRequest) (dto.RubricResponse, error)
	LoadLatest(ctx context.Context, examID, questionID string) (models.Rubric, models.RubricRef, error)
	ListByExam(ctx context.Context, examID string) ([]dto.RubricResponse, error)
}

type rubricService struct {
	refs      repository.RubricRepository
	store     blob.Store
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewRubricService constructs a RubricService instance.
func NewRubricService(refs repository.RubricRepository, store blob.Store, validate *validator.Validate, logger zerolog.Logger) RubricService {
	return &rubricService{
		refs:      refs,
		store:     store,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "rubric_service").Logger(),
	}
}

// RubricPath builds the canonical blob path for a rubric version. The first
// version uses the bare convention; revisions carry a version suffix so
// already-referenced content is never touched.
func RubricPath(examID, questionID string, version int) string {
	if version <= 1 {
		return fmt.Sprintf("paper-%s/question-%s.json", examID, questionID)
	}
	return fmt.Sprintf("paper-%s/question-%s-v%d.json", examID, questionID, version)
}

func (s *rubricService) Create(ctx context.Context, payload dto.RubricCreateRequest) (dto.RubricResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RubricResponse{}, err
	}

	rubric := models.Rubric{
		QuestionText: strings.TrimSpace(s.sanitizer.Sanitize(payload.QuestionText)),
		ModelAnswer:  strings.TrimSpace(s.sanitizer.Sanitize(payload.ModelAnswer)),
		TotalMarks:   payload.TotalMarks,
	}

	for _, step := range payload.Steps {
		description := strings.TrimSpace(s.sanitizer.Sanitize(step.Description))
		if description == "" {
			return dto.RubricResponse{}, fmt.Errorf("rubric step description must not be empty")
		}
		if step.Marks <= 0 {
			return dto.RubricResponse{}, fmt.Errorf("rubric step marks must be positive")
		}
		rubric.Steps = append(rubric.Steps, models.RubricStep{
			Description: description,
			Marks:       step.Marks,
		})
	}

	if rubric.StepSum() != rubric.TotalMarks {
		return dto.RubricResponse{}, ErrRubricStepSum
	}

	version := 1
	count, err := s.refs.CountVersions(ctx, payload.ExamID, payload.QuestionID)
	if err != nil {
		return dto.RubricResponse{}, err
	}
	version += int(count)

	path := RubricPath(payload.ExamID, payload.QuestionID, version)

	taken, err := s.store.Exists(ctx, path)
	if err != nil {
		return dto.RubricResponse{}, err
	}
	if taken {
		return dto.RubricResponse{}, ErrRubricPathTaken
	}

	data, err := json.Marshal(rubric)
	if err != nil {
		return dto.RubricResponse{}, fmt.Errorf("encode rubric: %w", err)
	}

	if err := s.store.Put(ctx, path, data); err != nil {
		return dto.RubricResponse{}, fmt.Errorf("freeze rubric blob: %w", err)
	}

	ref := models.RubricRef{
		ExamID:     payload.ExamID,
		QuestionID: payload.QuestionID,
		Path:       path,
		TotalMarks: rubric.TotalMarks,
		Checksum:   checksum(data),
		Version:    version,
	}

	if err := s.refs.Create(ctx, &ref); err != nil {
		return dto.RubricResponse{}, err
	}

	s.logger.Info().
		Str("exam_id", ref.ExamID).
		Str("question_id", ref.QuestionID).
		Str("path", ref.Path).
		Int("version", ref.Version).
		Msg("rubric frozen")

	return dto.NewRubricResponse(ref, rubric), nil
}

// LoadLatest resolves the newest rubric version for a question, reads the
// frozen blob, and verifies the checksum recorded at creation time.
func (s *rubricService) LoadLatest(ctx context.Context, examID, questionID string) (models.Rubric, models.RubricRef, error) {
	ref, err := s.refs.GetLatest(ctx, examID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Rubric{}, models.RubricRef{}, ErrRubricUnavailable
		}
		return models.Rubric{}, models.RubricRef{}, err
	}

	data, err := s.store.Get(ctx, ref.Path)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return models.Rubric{}, models.RubricRef{}, ErrRubricUnavailable
		}
		return models.Rubric{}, models.RubricRef{}, fmt.Errorf("%w: %s", ErrRubricUnavailable, err)
	}

	if checksum(data) != ref.Checksum {
		s.logger.Error().
			Str("path", ref.Path).
			Msg("frozen rubric content was mutated in place")
		return models.Rubric{}, models.RubricRef{}, ErrRubricChecksum
	}

	var rubric models.Rubric
	if err := json.Unmarshal(data, &rubric); err != nil {
		return models.Rubric{}, models.RubricRef{}, fmt.Errorf("%w: decode: %s", ErrRubricUnavailable, err)
	}

	return rubric, ref, nil
}

func (s *rubricService) ListByExam(ctx context.Context, examID string) ([]dto.RubricResponse, error) {
	refs, err := s.refs.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.RubricResponse, 0, len(refs))
	for _, ref := range refs {
		responses = append(responses, dto.NewRubricResponse(ref, models.Rubric{}))
	}

	return responses, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
