package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gradeflow-api/internal/models"
	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/pkg/ai"
	"github.com/noah-isme/gradeflow-api/pkg/blob"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T, name string) *gorm.DB {
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

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}}
}

func (s *memBlobStore) Put(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

func (s *memBlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok, nil
}

type capturePublisher struct {
	mu        sync.Mutex
	published []queue.Message
	delayed   []queue.Message
	failures  int
}

func (p *capturePublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("queue unavailable")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *capturePublisher) PublishAfter(msg queue.Message, _ time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delayed = append(p.delayed, msg)
}

func (p *capturePublisher) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type stubExtractor struct {
	mu    sync.Mutex
	calls int
	fn    func(fileURL string) (string, error)
}

func (e *stubExtractor) Extract(_ context.Context, fileURL string) (string, error) {
	e.mu.Lock()
	e.calls++
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(fileURL)
	}
	return "Answer 1: the measured value is 42.\n\nAnswer 2: forces act in pairs.", nil
}

func (e *stubExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubScorer struct {
	mu    sync.Mutex
	calls int
	fn    func(input ai.ScoringInput) (ai.ScoringResult, error)
}

func (s *stubScorer) ScoreAnswer(_ context.Context, input ai.ScoringInput) (ai.ScoringResult, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		return fn(input)
	}
	return fullMarksResult(input), nil
}

// fullMarksResult awards every rubric step in full.
func fullMarksResult(input ai.ScoringInput) ai.ScoringResult {
	result := ai.ScoringResult{
		Feedback:       "matches the model answer",
		IsFullyCorrect: true,
		Confidence:     0.95,
	}
	for _, step := range input.Steps {
		result.Steps = append(result.Steps, ai.StepResult{
			Description:  step.Description,
			Satisfied:    true,
			MarksAwarded: step.Marks,
			MaxMarks:     step.Marks,
		})
	}
	return result
}

func seedExam(t *testing.T, db *gorm.DB, examID string, questions ...models.ExamQuestion) {
	t.Helper()

	exam := models.Exam{ID: examID, Title: "Physics Midterm", Subject: "physics"}
	require.NoError(t, db.Create(&exam).Error)
	for i := range questions {
		questions[i].ExamID = examID
		require.NoError(t, db.Create(&questions[i]).Error)
	}
}

// answerSheetFiles builds real multipart file headers carrying PNG content.
func answerSheetFiles(t *testing.T, pages int) []*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i := 0; i < pages; i++ {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("page-%d.png", i+1))
		require.NoError(t, err)
		_, err = part.Write(pngBytes())
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["files"]
}

func textFiles(t *testing.T) []*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text, not an answer sheet scan"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["files"]
}

func pngBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
}

func validate() *validator.Validate {
	return validator.New()
}
