package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/repository"
)

type recordingUploader struct {
	mu      sync.Mutex
	uploads int
}

func (u *recordingUploader) UploadPage(_ context.Context, examID, studentID string, page int, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads++
	return fmt.Sprintf("https://cdn.test/%s/%s/page-%d", examID, studentID, page), nil
}

func intakeFixture(t *testing.T, name string) (IntakeService, *capturePublisher, repository.SubmissionRepository) {
	t.Helper()

	db := setupServiceDB(t, name)
	seedExam(t, db, "phy-101",
		models.ExamQuestion{ID: "q1", Number: 1, Kind: models.QuestionKindSubjective, MaxMarks: 10},
	)

	publisher := &capturePublisher{}
	subRepo := repository.NewSubmissionRepository(db)
	svc := NewIntakeService(subRepo, repository.NewExamRepository(db), publisher, &recordingUploader{}, validate(), testLogger())

	return svc, publisher, subRepo
}

func TestIntakeCreatesSubmissionAndEnqueues(t *testing.T) {
	svc, publisher, subRepo := intakeFixture(t, "intake_create")

	response, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 2))
	require.NoError(t, err)
	require.NotEmpty(t, response.SubmissionID)
	require.Equal(t, models.StatusUploaded, response.Status)

	submission, err := subRepo.GetByID(context.Background(), response.SubmissionID)
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, submission.Status)
	require.Len(t, dto.FileURLs(submission), 2)

	require.Equal(t, 1, publisher.publishedCount())
	msg := publisher.published[0]
	require.Equal(t, response.SubmissionID, msg.SubmissionID)
	require.Equal(t, "phy-101", msg.ExamID)
	require.Len(t, msg.FilePaths, 2)
	require.Zero(t, msg.RetryCount)
}

func TestIntakeRejectsDuplicate(t *testing.T) {
	svc, publisher, _ := intakeFixture(t, "intake_duplicate")

	_, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Equal(t, 1, publisher.publishedCount())
}

func TestIntakeRejectsDuplicateAfterResults(t *testing.T) {
	svc, publisher, subRepo := intakeFixture(t, "intake_duplicate_final")

	response, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.NoError(t, err)

	submission, err := subRepo.GetByID(context.Background(), response.SubmissionID)
	require.NoError(t, err)
	submission.Status = models.StatusResultsReady
	require.NoError(t, subRepo.Update(context.Background(), &submission))

	// A re-upload after grading must not restart the pipeline.
	_, err = svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Equal(t, 1, publisher.publishedCount())
}

func TestIntakeRejectsUnknownExam(t *testing.T) {
	svc, _, _ := intakeFixture(t, "intake_unknown_exam")

	_, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "missing", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.ErrorIs(t, err, ErrExamNotFound)
}

func TestIntakeRequiresFiles(t *testing.T) {
	svc, _, _ := intakeFixture(t, "intake_no_files")

	_, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, nil)
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestIntakeRejectsUnsupportedFileType(t *testing.T) {
	svc, publisher, _ := intakeFixture(t, "intake_bad_type")

	_, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, textFiles(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file type")
	require.Zero(t, publisher.publishedCount())
}

func TestIntakeMarksErrorWhenEnqueueFails(t *testing.T) {
	db := setupServiceDB(t, "intake_enqueue_fail")
	seedExam(t, db, "phy-101",
		models.ExamQuestion{ID: "q1", Number: 1, Kind: models.QuestionKindSubjective, MaxMarks: 10},
	)

	publisher := &capturePublisher{failures: 2}
	subRepo := repository.NewSubmissionRepository(db)
	svc := NewIntakeService(subRepo, repository.NewExamRepository(db), publisher, &recordingUploader{}, validate(), testLogger())

	_, err := svc.Create(context.Background(), dto.IntakeRequest{ExamID: "phy-101", StudentID: "s-1"}, answerSheetFiles(t, 1))
	require.Error(t, err)

	submission, err := subRepo.GetByExamAndStudent(context.Background(), "phy-101", "s-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusError, submission.Status)
	require.Contains(t, submission.ErrorMessage, "enqueue")
}

func TestIntakeCarriesMcqResult(t *testing.T) {
	svc, _, subRepo := intakeFixture(t, "intake_mcq")

	score, max := 7.0, 10.0
	response, err := svc.Create(context.Background(), dto.IntakeRequest{
		ExamID:    "phy-101",
		StudentID: "s-1",
		McqScore:  &score,
		McqMax:    &max,
	}, answerSheetFiles(t, 1))
	require.NoError(t, err)

	submission, err := subRepo.GetByID(context.Background(), response.SubmissionID)
	require.NoError(t, err)
	require.NotNil(t, submission.McqScore)
	require.InDelta(t, 7.0, *submission.McqScore, 1e-9)
}
