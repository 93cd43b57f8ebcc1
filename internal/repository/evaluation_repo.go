package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// EvaluationRepository defines data operations for question evaluations.
// Rows are insert-only; re-evaluation of a question is not permitted.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.QuestionEvaluation) error
	ListBySubmission(ctx context.Context, submissionID string) ([]models.QuestionEvaluation, error)
	ExistsForQuestion(ctx context.Context, submissionID, questionID string) (bool, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.QuestionEvaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.QuestionEvaluation, error) {
	var evaluations []models.QuestionEvaluation
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("question_number ASC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (r *evaluationRepository) ExistsForQuestion(ctx context.Context, submissionID, questionID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.QuestionEvaluation{}).
		Where("submission_id = ?", submissionID).
		Where("question_id = ?", questionID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
