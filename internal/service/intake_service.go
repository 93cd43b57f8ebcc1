package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/middleware"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/internal/repository"
)

// ErrDuplicateSubmission indicates a submission already exists for the
// (exam, student) pair.
var ErrDuplicateSubmission = errors.New("submission already exists for this exam and student")

// ErrExamNotFound indicates the referenced exam is not in the catalogue.
var ErrExamNotFound = errors.New("exam not found")

// ErrNoFiles indicates intake was called without any answer-sheet files.
var ErrNoFiles = errors.New("at least one answer sheet file is required")

// AnswerSheetUploader persists uploaded pages durably and returns their
// URLs.
type AnswerSheetUploader interface {
	UploadPage(ctx context.Context, examID, studentID string, page int, reader io.Reader) (string, error)
}

// IntakeService accepts answer-sheet uploads and starts the evaluation
// pipeline. A successful call leaves exactly one submission row and at least
// one enqueued message.
type IntakeService interface {
	Create(ctx context.Context, payload dto.IntakeRequest, files []*multipart.FileHeader) (dto.IntakeResponse, error)
}

type intakeService struct {
	submissions repository.SubmissionRepository
	exams       repository.ExamRepository
	publisher   queue.Publisher
	uploader    AnswerSheetUploader
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewIntakeService constructs an IntakeService instance.
func NewIntakeService(subRepo repository.SubmissionRepository, examRepo repository.ExamRepository, publisher queue.Publisher, uploader AnswerSheetUploader, validate *validator.Validate, logger zerolog.Logger) IntakeService {
	return &intakeService{
		submissions: subRepo,
		exams:       examRepo,
		publisher:   publisher,
		uploader:    uploader,
		validator:   validate,
		logger:      logger.With().Str("component", "intake_service").Logger(),
		now:         time.Now,
	}
}

func (s *intakeService) Create(ctx context.Context, payload dto.IntakeRequest, files []*multipart.FileHeader) (dto.IntakeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.IntakeResponse{}, err
	}

	if len(files) == 0 {
		return dto.IntakeResponse{}, ErrNoFiles
	}

	if _, err := s.exams.GetByID(ctx, payload.ExamID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IntakeResponse{}, ErrExamNotFound
		}
		return dto.IntakeResponse{}, err
	}

	if _, err := s.submissions.GetByExamAndStudent(ctx, payload.ExamID, payload.StudentID); err == nil {
		return dto.IntakeResponse{}, ErrDuplicateSubmission
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.IntakeResponse{}, err
	}

	for _, file := range files {
		if err := validateAnswerSheetType(file); err != nil {
			return dto.IntakeResponse{}, err
		}
	}

	// Files must be durably stored before the submission row exists.
	urls := make([]string, 0, len(files))
	for i, file := range files {
		reader, err := file.Open()
		if err != nil {
			return dto.IntakeResponse{}, fmt.Errorf("failed to open file: %w", err)
		}

		url, err := s.uploader.UploadPage(ctx, payload.ExamID, payload.StudentID, i+1, reader)
		reader.Close()
		if err != nil {
			return dto.IntakeResponse{}, fmt.Errorf("failed to store answer sheet: %w", err)
		}

		urls = append(urls, url)
	}

	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return dto.IntakeResponse{}, fmt.Errorf("encode file urls: %w", err)
	}

	submittedAt := s.now().UTC()
	submission := models.Submission{
		ID:          uuid.NewString(),
		ExamID:      payload.ExamID,
		StudentID:   payload.StudentID,
		FileURLs:    datatypes.JSON(urlsJSON),
		Status:      models.StatusUploaded,
		McqScore:    payload.McqScore,
		McqMax:      payload.McqMax,
		SubmittedAt: submittedAt,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		// The unique index is the backstop for concurrent duplicate intake.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.IntakeResponse{}, ErrDuplicateSubmission
		}
		return dto.IntakeResponse{}, err
	}

	message := queue.Message{
		SubmissionID:  submission.ID,
		ExamID:        submission.ExamID,
		StudentID:     submission.StudentID,
		FilePaths:     urls,
		SubmittedAt:   submittedAt,
		Priority:      payload.Priority,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
	}

	// The uploaded state is only stable once the message is on the queue.
	if err := s.publisher.Publish(ctx, message); err != nil {
		if retryErr := s.publisher.Publish(ctx, message); retryErr != nil {
			submission.Status = models.StatusError
			submission.ErrorMessage = fmt.Sprintf("failed to enqueue submission: %v", retryErr)
			if updateErr := s.submissions.Update(ctx, &submission); updateErr != nil {
				s.logger.Error().Err(updateErr).Str("submission_id", submission.ID).Msg("failed to record enqueue failure")
			}
			return dto.IntakeResponse{}, fmt.Errorf("failed to enqueue submission: %w", retryErr)
		}
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("exam_id", submission.ExamID).
		Str("student_id", submission.StudentID).
		Int("files", len(urls)).
		Msg("submission created and enqueued")

	return dto.IntakeResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		SubmittedAt:  submission.SubmittedAt,
	}, nil
}

func validateAnswerSheetType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return fmt.Errorf("unsupported file type: %s", mime.String())
}
