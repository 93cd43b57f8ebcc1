package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

// ExamRepository defines read/seed operations for the exam catalogue.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id string) (models.Exam, error)
	SubjectiveQuestions(ctx context.Context, examID string) ([]models.ExamQuestion, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates the repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) GetByID(ctx context.Context, id string) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).
		First(&exam, "id = ?", id).Error; err != nil {
		return models.Exam{}, err
	}

	return exam, nil
}

func (r *examRepository) SubjectiveQuestions(ctx context.Context, examID string) ([]models.ExamQuestion, error) {
	var questions []models.ExamQuestion
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Where("kind = ?", models.QuestionKindSubjective).
		Order("number ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}
