package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/repository"
)

// ErrSubmissionNotFound indicates a submission could not be found.
var ErrSubmissionNotFound = errors.New("submission not found")

// ResultService serves status polling. Terminal results never change, so
// they are cached; in-flight submissions always hit the database.
type ResultService interface {
	Get(ctx context.Context, submissionID string) (dto.StatusResponse, error)
}

type resultService struct {
	submissions repository.SubmissionRepository
	evaluations repository.EvaluationRepository
	redis       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewResultService constructs a ResultService instance. The redis client is
// optional; without it every poll reads the database.
func NewResultService(subRepo repository.SubmissionRepository, evalRepo repository.EvaluationRepository, redisClient *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) ResultService {
	return &resultService{
		submissions: subRepo,
		evaluations: evalRepo,
		redis:       redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger.With().Str("component", "result_service").Logger(),
	}
}

func resultCacheKey(submissionID string) string {
	return fmt.Sprintf("gradeflow:result:%s", submissionID)
}

func (s *resultService) Get(ctx context.Context, submissionID string) (dto.StatusResponse, error) {
	if cached, ok := s.fromCache(ctx, submissionID); ok {
		return cached, nil
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StatusResponse{}, ErrSubmissionNotFound
		}
		return dto.StatusResponse{}, err
	}

	var evaluations []models.QuestionEvaluation
	if submission.Status == models.StatusResultsReady {
		evaluations, err = s.evaluations.ListBySubmission(ctx, submissionID)
		if err != nil {
			return dto.StatusResponse{}, err
		}
	}

	response := dto.NewStatusResponse(submission, evaluations)

	if submission.Status == models.StatusResultsReady {
		s.toCache(ctx, submissionID, response)
	}

	return response, nil
}

func (s *resultService) fromCache(ctx context.Context, submissionID string) (dto.StatusResponse, bool) {
	if s.redis == nil {
		return dto.StatusResponse{}, false
	}

	raw, err := s.redis.Get(ctx, resultCacheKey(submissionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("result cache read failed")
		}
		return dto.StatusResponse{}, false
	}

	var response dto.StatusResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		s.logger.Warn().Err(err).Msg("result cache entry malformed")
		return dto.StatusResponse{}, false
	}

	return response, true
}

func (s *resultService) toCache(ctx context.Context, submissionID string, response dto.StatusResponse) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, resultCacheKey(submissionID), data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("result cache write failed")
	}
}
