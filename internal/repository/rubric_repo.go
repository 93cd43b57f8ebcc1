package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// RubricRepository defines data operations for rubric pointer rows. The
// rows only reference frozen blob content; they never carry the rubric body.
type RubricRepository interface {
	Create(ctx context.Context, ref *models.RubricRef) error
	GetLatest(ctx context.Context, examID, questionID string) (models.RubricRef, error)
	GetByPath(ctx context.Context, path string) (models.RubricRef, error)
	CountVersions(ctx context.Context, examID, questionID string) (int64, error)
	ListByExam(ctx context.Context, examID string) ([]models.RubricRef, error)
}

type rubricRepository struct {
	db *gorm.DB
}

// NewRubricRepository instantiates the repository.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepository{db: db}
}

func (r *rubricRepository) Create(ctx context.Context, ref *models.RubricRef) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *rubricRepository) GetLatest(ctx context.Context, examID, questionID string) (models.RubricRef, error) {
	var ref models.RubricRef
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Where("question_id = ?", questionID).
		Order("version DESC").
		First(&ref).Error; err != nil {
		return models.RubricRef{}, err
	}

	return ref, nil
}

func (r *rubricRepository) GetByPath(ctx context.Context, path string) (models.RubricRef, error) {
	var ref models.RubricRef
	if err := r.db.WithContext(ctx).First(&ref, "path = ?", path).Error; err != nil {
		return models.RubricRef{}, err
	}

	return ref, nil
}

func (r *rubricRepository) CountVersions(ctx context.Context, examID, questionID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RubricRef{}).
		Where("exam_id = ?", examID).
		Where("question_id = ?", questionID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *rubricRepository) ListByExam(ctx context.Context, examID string) ([]models.RubricRef, error) {
	var refs []models.RubricRef
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("question_id ASC, version DESC").
		Find(&refs).Error; err != nil {
		return nil, err
	}

	return refs, nil
}
