package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Exam{},
		&models.ExamQuestion{},
		&models.Submission{},
		&models.QuestionEvaluation{},
		&models.RubricRef{},
	))

	return db
}

func newSubmission(id, examID, studentID string) models.Submission {
	return models.Submission{
		ID:          id,
		ExamID:      examID,
		StudentID:   studentID,
		Status:      models.StatusUploaded,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestSubmissionUniquePerExamAndStudent(t *testing.T) {
	db := setupTestDB(t, "repo_sub_unique")
	repo := NewSubmissionRepository(db)

	first := newSubmission("sub-1", "phy-101", "s-1")
	require.NoError(t, repo.Create(context.Background(), &first))

	duplicate := newSubmission("sub-2", "phy-101", "s-1")
	err := repo.Create(context.Background(), &duplicate)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	// Same student, different exam is fine.
	other := newSubmission("sub-3", "chem-101", "s-1")
	require.NoError(t, repo.Create(context.Background(), &other))
}

func TestSubmissionGetByExamAndStudent(t *testing.T) {
	db := setupTestDB(t, "repo_sub_lookup")
	repo := NewSubmissionRepository(db)

	submission := newSubmission("sub-1", "phy-101", "s-1")
	require.NoError(t, repo.Create(context.Background(), &submission))

	found, err := repo.GetByExamAndStudent(context.Background(), "phy-101", "s-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", found.ID)

	_, err = repo.GetByExamAndStudent(context.Background(), "phy-101", "s-2")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSubmissionListByStatus(t *testing.T) {
	db := setupTestDB(t, "repo_sub_list")
	repo := NewSubmissionRepository(db)

	uploaded := newSubmission("sub-1", "phy-101", "s-1")
	require.NoError(t, repo.Create(context.Background(), &uploaded))

	graded := newSubmission("sub-2", "phy-101", "s-2")
	graded.Status = models.StatusResultsReady
	require.NoError(t, repo.Create(context.Background(), &graded))

	pending, err := repo.ListByStatus(context.Background(), models.StatusUploaded)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "sub-1", pending[0].ID)
}

func TestEvaluationListOrderedByQuestionNumber(t *testing.T) {
	db := setupTestDB(t, "repo_eval_order")
	repo := NewEvaluationRepository(db)

	for _, number := range []int{3, 1, 2} {
		evaluation := models.QuestionEvaluation{
			SubmissionID:   "sub-1",
			QuestionID:     fmt.Sprintf("q%d", number),
			QuestionNumber: number,
			MaxScore:       10,
			EvaluatedAt:    time.Now().UTC(),
		}
		require.NoError(t, repo.Create(context.Background(), &evaluation))
	}

	rows, err := repo.ListBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Equal(t, i+1, row.QuestionNumber)
	}
}

func TestEvaluationExistsForQuestion(t *testing.T) {
	db := setupTestDB(t, "repo_eval_exists")
	repo := NewEvaluationRepository(db)

	evaluation := models.QuestionEvaluation{
		SubmissionID:   "sub-1",
		QuestionID:     "q1",
		QuestionNumber: 1,
		EvaluatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	exists, err := repo.ExistsForQuestion(context.Background(), "sub-1", "q1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsForQuestion(context.Background(), "sub-1", "q2")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRubricGetLatestPicksHighestVersion(t *testing.T) {
	db := setupTestDB(t, "repo_rubric_latest")
	repo := NewRubricRepository(db)

	for version := 1; version <= 3; version++ {
		ref := models.RubricRef{
			ExamID:     "phy-101",
			QuestionID: "q1",
			Path:       fmt.Sprintf("paper-phy-101/question-q1-v%d.json", version),
			TotalMarks: 10,
			Checksum:   fmt.Sprintf("%064d", version),
			Version:    version,
		}
		require.NoError(t, repo.Create(context.Background(), &ref))
	}

	latest, err := repo.GetLatest(context.Background(), "phy-101", "q1")
	require.NoError(t, err)
	require.Equal(t, 3, latest.Version)

	count, err := repo.CountVersions(context.Background(), "phy-101", "q1")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestRubricRejectsDuplicateVersion(t *testing.T) {
	db := setupTestDB(t, "repo_rubric_dup")
	repo := NewRubricRepository(db)

	ref := models.RubricRef{
		ExamID:     "phy-101",
		QuestionID: "q1",
		Path:       "paper-phy-101/question-q1.json",
		TotalMarks: 10,
		Checksum:   fmt.Sprintf("%064d", 1),
		Version:    1,
	}
	require.NoError(t, repo.Create(context.Background(), &ref))

	clash := models.RubricRef{
		ExamID:     "phy-101",
		QuestionID: "q1",
		Path:       "paper-phy-101/question-q1-other.json",
		TotalMarks: 10,
		Checksum:   fmt.Sprintf("%064d", 2),
		Version:    1,
	}
	err := repo.Create(context.Background(), &clash)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestExamSubjectiveQuestionsFilterAndOrder(t *testing.T) {
	db := setupTestDB(t, "repo_exam_questions")
	repo := NewExamRepository(db)

	exam := models.Exam{
		ID:    "phy-101",
		Title: "Physics Midterm",
		Questions: []models.ExamQuestion{
			{ID: "q2", Number: 2, Kind: models.QuestionKindSubjective, MaxMarks: 5},
			{ID: "q3", Number: 3, Kind: models.QuestionKindMCQ, MaxMarks: 1},
			{ID: "q1", Number: 1, Kind: models.QuestionKindSubjective, MaxMarks: 10},
		},
	}
	require.NoError(t, repo.Create(context.Background(), &exam))

	questions, err := repo.SubjectiveQuestions(context.Background(), "phy-101")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	require.Equal(t, "q1", questions[0].ID)
	require.Equal(t, "q2", questions[1].ID)

	loaded, err := repo.GetByID(context.Background(), "phy-101")
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 3)
	require.Equal(t, 1, loaded.Questions[0].Number)
}
