package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/handler"
	"github.com/noah-isme/gradeflow-api/internal/models"
)

type stubResultService struct {
	response dto.StatusResponse
}

func (s stubResultService) Get(context.Context, string) (dto.StatusResponse, error) {
	return s.response, nil
}

func TestSubmissionStatusContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "submission_status.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	total := 13.0
	max := 15.0
	percentage := 86.67
	response := dto.StatusResponse{
		SubmissionID:   "sub-1",
		ExamID:         "phy-101",
		StudentID:      "student-9",
		Status:         models.StatusResultsReady,
		SubmittedAt:    now.Add(-5 * time.Minute),
		TotalScore:     &total,
		MaxScore:       &max,
		Percentage:     &percentage,
		Grade:          "A",
		RetryCount:     0,
		OcrDurationMs:  2150,
		EvalDurationMs: 8400,
		Questions: []dto.QuestionEvaluationResponse{
			{
				QuestionID:     "q1",
				QuestionNumber: 1,
				Score:          8,
				MaxScore:       10,
				Feedback:       "Correct derivation, arithmetic slip in the last step.",
				Breakdown:      map[string]interface{}{"steps": []interface{}{}},
				Confidence:     0.92,
				IsFullyCorrect: false,
				EvaluatedAt:    now,
			},
			{
				QuestionID:     "q2",
				QuestionNumber: 2,
				Score:          5,
				MaxScore:       5,
				Feedback:       "Complete answer.",
				Confidence:     0.97,
				IsFullyCorrect: true,
				EvaluatedAt:    now,
			},
		},
	}

	resultHandler := handler.NewResultHandler(stubResultService{response: response}, zerolog.Nop())

	app := fiber.New()
	resultHandler.Register(app.Group("/api/v1/submissions"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/sub-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
