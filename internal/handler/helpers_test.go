package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/config"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/internal/repository"
	"github.com/noah-isme/gradeflow-api/internal/router"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/pkg/blob"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) PublishAfter(queue.Message, time.Duration) {}

type fakeUploader struct{}

func (fakeUploader) UploadPage(_ context.Context, examID, studentID string, page int, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.test/%s/%s/page-%d", examID, studentID, page), nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeBlobStore) Put(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	return data, nil
}

func (s *fakeBlobStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok, nil
}

func setupApp(t *testing.T, name string) (*fiber.App, *gorm.DB, *fakePublisher) {
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

	exam := models.Exam{ID: "phy-101", Title: "Physics Midterm", Subject: "physics"}
	require.NoError(t, db.Create(&exam).Error)
	question := models.ExamQuestion{ID: "q1", ExamID: "phy-101", Number: 1, Kind: models.QuestionKindSubjective, MaxMarks: 10}
	require.NoError(t, db.Create(&question).Error)

	logger := zerolog.New(io.Discard)
	validate := validator.New()
	publisher := &fakePublisher{}

	subRepo := repository.NewSubmissionRepository(db)
	evalRepo := repository.NewEvaluationRepository(db)
	examRepo := repository.NewExamRepository(db)
	rubricRepo := repository.NewRubricRepository(db)

	intakeSvc := service.NewIntakeService(subRepo, examRepo, publisher, fakeUploader{}, validate, logger)
	resultSvc := service.NewResultService(subRepo, evalRepo, nil, time.Minute, logger)
	rubricSvc := service.NewRubricService(rubricRepo, &fakeBlobStore{}, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "gradeflow-api", AppEnv: "test"}, router.Dependencies{
		IntakeHandler: handler.NewIntakeHandler(intakeSvc, validate, logger),
		ResultHandler: handler.NewResultHandler(resultSvc, logger),
		RubricHandler: handler.NewRubricHandler(rubricSvc, validate, logger),
	})

	return app, db, publisher
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) apiEnvelope {
	t.Helper()
	defer resp.Body.Close()

	var payload apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

// intakeRequest builds a multipart upload with PNG page scans.
func intakeRequest(t *testing.T, fields map[string]string, pages int) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for i := 0; i < pages; i++ {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("page-%d.png", i+1))
		require.NoError(t, err)
		_, err = part.Write([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'})
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
